package tracks

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/flux"
	"github.com/paleotronic/trackm8/nibble"
)

func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

func formatted(t *testing.T, zone *ZoneFormat, skey disk.SectorKey, bufLen int) (*Engine, *flux.FluxCells) {
	t.Helper()
	e := NewEngine(false)
	cells, err := e.FormatTrack(skey, bufLen, zone, nil)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return e, cells
}

func TestFormatThenReadZeros(t *testing.T) {
	zone := Apple52516(0)
	skey := disk.A2525(254, 3)
	e, cells := formatted(t, &zone, skey, disk.TRACK_NIBBLE_LENGTH)
	want, _ := zone.TrackBitCount()
	if cells.BitCount() != want {
		t.Fatalf("bit count %d, expected %d", cells.BitCount(), want)
	}
	for sec := 0; sec < 16; sec++ {
		dat, err := e.ReadSector(cells, skey, byte(sec), &zone)
		if err != nil {
			t.Fatalf("sector %d: %v", sec, err)
		}
		if !bytes.Equal(dat, make([]byte, 256)) {
			t.Fatalf("sector %d is not blank", sec)
		}
	}
}

func TestWrongTrack(t *testing.T) {
	zone := Apple52516(0)
	e, cells := formatted(t, &zone, disk.A2525(254, 3), disk.TRACK_NIBBLE_LENGTH)
	_, err := e.ReadSector(cells, disk.A2525(254, 4), 0, &zone)
	if !errors.Is(err, nibble.ErrSectorNotFound) {
		t.Fatalf("expected sector not found, got %v", err)
	}
	zone.VerifyTrack = false
	if _, err := e.ReadSector(cells, disk.A2525(254, 4), 0, &zone); err != nil {
		t.Fatalf("track check is off but read failed: %v", err)
	}
}

func TestBlankTrack(t *testing.T) {
	zone := Apple52516(0)
	cells, err := flux.New(make([]byte, disk.TRACK_NIBBLE_LENGTH), disk.TRACK_NIBBLE_LENGTH*8, zone.Resolution())
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewEngine(false).ReadSector(cells, disk.A2525(254, 0), 0, &zone)
	if !errors.Is(err, nibble.ErrBadTrack) {
		t.Fatalf("expected bad track, got %v", err)
	}
}

func TestWriteReadSector(t *testing.T) {
	zone := Apple52516(0)
	skey := disk.A2525(254, 3)
	e, cells := formatted(t, &zone, skey, disk.TRACK_NIBBLE_LENGTH)
	if err := e.WriteSector(cells, skey, 7, &zone, pattern(256)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := e.ReadSector(cells, skey, 7, &zone)
	if err != nil || !bytes.Equal(got, pattern(256)) {
		t.Fatalf("read back failed (%v)", err)
	}
	got, err = e.ReadSector(cells, skey, 8, &zone)
	if err != nil || !bytes.Equal(got, make([]byte, 256)) {
		t.Fatalf("neighbouring sector disturbed (%v)", err)
	}

	// survive a trip through the track buffer
	buf, count := cells.ToOutputBuffer(disk.TRACK_NIBBLE_LENGTH, e.Pad())
	reloaded, err := flux.New(buf, count, zone.Resolution())
	if err != nil {
		t.Fatal(err)
	}
	got, err = e.ReadSector(reloaded, skey, 7, &zone)
	if err != nil || !bytes.Equal(got, pattern(256)) {
		t.Fatalf("read after reload failed (%v)", err)
	}
}

func TestShortPayloadIsPadded(t *testing.T) {
	zone := Apple52516(0)
	skey := disk.A2525(254, 0)
	e, cells := formatted(t, &zone, skey, disk.TRACK_NIBBLE_LENGTH)
	if err := e.WriteSector(cells, skey, 2, &zone, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	got, err := e.ReadSector(cells, skey, 2, &zone)
	if err != nil || len(got) != 256 || got[2] != 3 || got[3] != 0 {
		t.Fatalf("unexpected payload % x (%v)", got[:8], err)
	}
}

func TestDamagedDataField(t *testing.T) {
	cases := []struct {
		name   string
		damage func(t *testing.T, cells *flux.FluxCells, zone *ZoneFormat)
		want   error
	}{
		{
			// sync over the gap, the data prolog and the start of the field
			name: "missing data prolog",
			damage: func(t *testing.T, cells *flux.FluxCells, zone *ZoneFormat) {
				writeBytes(cells, bytes.Repeat([]byte{0xff}, 64))
			},
		},
		{
			name: "bad data checksum",
			damage: func(t *testing.T, cells *flux.FluxCells, zone *ZoneFormat) {
				if !findMarker(cells, zone.Markers[DataProlog], dataPrologSearch) {
					t.Fatalf("no data prolog after the address")
				}
				cells.ReadLatch(zone.dataHeaderLen() * zone.DataCode.Width())
				nib, n := cells.ReadLatch(1)
				cells.RevBits(n)
				other := byte(0x96)
				if nib[0] == other {
					other = 0x97
				}
				writeBytes(cells, []byte{other})
			},
			want: nibble.ErrBadChecksum,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			zone := Apple52516(0)
			skey := disk.A2525(254, 0)
			e, cells := formatted(t, &zone, skey, disk.TRACK_NIBBLE_LENGTH)
			if err := e.WriteSector(cells, skey, 5, &zone, pattern(256)); err != nil {
				t.Fatal(err)
			}
			if _, err := e.FindSector(cells, skey, 5, &zone); err != nil {
				t.Fatal(err)
			}
			tc.damage(t, cells, &zone)
			got, err := e.ReadSector(cells, skey, 5, &zone)
			if tc.want != nil {
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
				return
			}
			if err != nil || !bytes.Equal(got, make([]byte, 256)) {
				t.Fatalf("expected a blank sector, got % x... (%v)", got[:min(len(got), 8)], err)
			}
		})
	}
}

func TestThirteenSector(t *testing.T) {
	zone := Apple52513(0)
	skey := disk.A2525(254, 17)
	e, cells := formatted(t, &zone, skey, disk.TRACK_NIBBLE_LENGTH)
	if err := e.WriteSector(cells, skey, 5, &zone, pattern(256)); err != nil {
		t.Fatal(err)
	}
	for sec := 0; sec < 13; sec++ {
		got, err := e.ReadSector(cells, skey, byte(sec), &zone)
		if err != nil {
			t.Fatalf("sector %d: %v", sec, err)
		}
		want := make([]byte, 256)
		if sec == 5 {
			want = pattern(256)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("sector %d has the wrong contents", sec)
		}
	}
}

func TestNibTrack(t *testing.T) {
	zone := Apple52516(8)
	skey := disk.A2525(254, 1)
	e := NewEngine(true)
	cells, err := e.FormatTrack(skey, disk.TRACK_NIBBLE_LENGTH, &zone, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.WriteSector(cells, skey, 15, &zone, pattern(256)); err != nil {
		t.Fatal(err)
	}
	buf, _ := cells.ToOutputBuffer(disk.TRACK_NIBBLE_LENGTH, e.Pad())
	if len(buf) != disk.TRACK_NIBBLE_LENGTH || buf[len(buf)-1] != 0xff {
		t.Fatalf("nib track should be padded with sync bytes")
	}
	reloaded, err := flux.New(buf, len(buf)*8, zone.Resolution())
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.ReadSector(reloaded, skey, 15, &zone)
	if err != nil || !bytes.Equal(got, pattern(256)) {
		t.Fatalf("nib read back failed (%v)", err)
	}
}

func TestThreeAndAHalf(t *testing.T) {
	zone := Apple35(0, 2, 2)
	skey := disk.A235(5, 1)
	e, cells := formatted(t, &zone, skey, disk.TRACK_35_LENGTH)
	if err := e.WriteSector(cells, skey, 11, &zone, pattern(524)); err != nil {
		t.Fatal(err)
	}
	got, err := e.ReadSector(cells, skey, 11, &zone)
	if err != nil || !bytes.Equal(got, pattern(524)) {
		t.Fatalf("tagged sector read back failed (%v)", err)
	}
	if _, err := e.ReadSector(cells, disk.A235(5, 0), 11, &zone); !errors.Is(err, nibble.ErrSectorNotFound) {
		t.Fatalf("wrong side should not match, got %v", err)
	}
}

func TestFormatTooLong(t *testing.T) {
	zone := Apple52516(0)
	_, err := NewEngine(false).FormatTrack(disk.A2525(254, 0), 4096, &zone, nil)
	if !errors.Is(err, nibble.ErrBadTrack) {
		t.Fatalf("expected bad track, got %v", err)
	}
}

func TestChssMap(t *testing.T) {
	zone := Apple52513(0)
	e, cells := formatted(t, &zone, disk.A2525(254, 9), disk.TRACK_NIBBLE_LENGTH)
	secs, err := e.ChssMap(cells, &zone)
	if err != nil {
		t.Fatal(err)
	}
	if len(secs) != 13 {
		t.Fatalf("found %d sectors", len(secs))
	}
	for i, s := range secs {
		if s.Cyl != 9 || s.Head != 0 || s.Sec != disk.DOS32_PHYSICAL[i] || s.Capacity != 256 {
			t.Errorf("sector %d: %+v", i, s)
		}
	}
	sol := zone.TrackSolution(36, 0, 4, secs)
	if sol.Cylinder != 9 || sol.Fraction[0] != 0 || sol.SectorCount() != 13 || sol.Capacities()[12] != 256 {
		t.Fatalf("unexpected solution %s", sol)
	}
}

func TestChssMapTagged(t *testing.T) {
	zone := Apple35(1, 2, 2)
	e, cells := formatted(t, &zone, disk.A235(20, 1), disk.TRACK_35_LENGTH)
	secs, err := e.ChssMap(cells, &zone)
	if err != nil {
		t.Fatal(err)
	}
	if len(secs) != 11 {
		t.Fatalf("found %d sectors", len(secs))
	}
	for _, s := range secs {
		if s.Cyl != 20 || s.Head != 1 || s.Capacity != 524 {
			t.Errorf("unexpected %+v", s)
		}
	}
}

func TestMnemonics(t *testing.T) {
	zone := Apple52516(0)
	e, cells := formatted(t, &zone, disk.A2525(254, 3), disk.TRACK_NIBBLE_LENGTH)
	nibs := e.ToNibbles(cells, &zone, 0)
	if nibs[0] != 0xd5 || nibs[1] != 0xaa || nibs[2] != 0x96 {
		t.Fatalf("nibbles should start at an address prolog, got % x", nibs[:3])
	}
	m := zone.Mnemonics(nibs)
	if len(m) != len(nibs) {
		t.Fatalf("%d mnemonics for %d nibbles", len(m), len(nibs))
	}
	if !strings.HasPrefix(m, "(A:fe0300fd:A)>") {
		t.Fatalf("unexpected mnemonics %q", m[:20])
	}
	if strings.Count(m, "(D:") != 16 || strings.Count(m, ":D)") != 16 {
		t.Fatalf("expected 16 data fields in %q", m)
	}
}

func TestInterleave(t *testing.T) {
	got := Interleave(12, 2)
	want := []int{0, 6, 1, 7, 2, 8, 3, 9, 4, 10, 5, 11}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("interleave %v", got)
		}
	}
}
