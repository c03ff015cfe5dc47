package tracks

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/paleotronic/trackm8/disk"
)

func TestExprEval(t *testing.T) {
	vars := map[string]int{"vol": 254, "cyl": 17, "sec": 3, "head": 1, "a0": 0x21, "a1": 0x02}
	cases := []struct {
		src  string
		want int
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"1<<4|1", 17},
		{"vol^cyl^sec", 254 ^ 17 ^ 3},
		{"7//2", 3},
		{"8/2", 4},
		{"cyl%16", 1},
		{"head*32+cyl//64", 32},
		{"(a0^a1)&63", 0x23},
		{"~0&255", 255},
		{"-3+5", 2},
		{"0x10+0b11", 19},
		{"a0+(a1&31)*64", 0x21 + 2*64},
	}
	for _, tc := range cases {
		e, err := ParseExpr(tc.src)
		if err != nil {
			t.Fatalf("%s: %v", tc.src, err)
		}
		got, err := e.Eval(vars)
		if err != nil || got != tc.want {
			t.Errorf("%s = %d, expected %d (%v)", tc.src, got, tc.want, err)
		}
	}
}

func TestExprErrors(t *testing.T) {
	vars := map[string]int{"vol": 254, "cyl": 3}
	for _, src := range []string{"vol^", "(cyl", "cyl $ 2", "3/2", "1//0", "vol+2", "-1", "nope", "1<<99"} {
		e, err := ParseExpr(src)
		if err == nil {
			_, err = e.EvalByte(vars)
		}
		if !errors.Is(err, disk.ErrMetadataMismatch) {
			t.Errorf("%s: expected metadata mismatch, got %v", src, err)
		}
	}
}

func TestExprVars(t *testing.T) {
	e, err := ParseExpr("(a0^a1^a2)&cyl")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(e.Vars(), []string{"a0", "a1", "a2", "cyl"}) {
		t.Fatalf("vars %v", e.Vars())
	}
	if !e.Uses(isTrackVar) || !e.Uses(isObservedVar) {
		t.Fatalf("usage not detected")
	}
}

func TestSeekingSkipsChecksum(t *testing.T) {
	zone := Apple52516(0)
	skey := disk.A2525(254, 3)
	observed := []byte{254, 3, 5, 0x42}
	diff, err := zone.DiffAddress(skey, 5, observed)
	if err != nil || diff[3] == 0 {
		t.Fatalf("bad checksum should show in diff % x (%v)", diff, err)
	}
	zone.VerifyChecksum = false
	diff, err = zone.DiffAddress(skey, 5, observed)
	if err != nil || !allZero(diff) {
		t.Fatalf("checksum should be ignored, diff % x (%v)", diff, err)
	}
}

func TestSeekExpressionsParsedOnce(t *testing.T) {
	zone := Apple52516(0)
	if err := zone.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, src := range zone.AddrSeekExpr {
		compiledMu.Lock()
		first, ok := compiledExprs[src]
		compiledMu.Unlock()
		if !ok {
			t.Fatalf("%q not compiled by Validate", src)
		}
		again, err := compiled(src)
		if err != nil || again != first {
			t.Fatalf("%q parsed a second time (%v)", src, err)
		}
	}
	if _, err := zone.DiffAddress(disk.A2525(254, 3), 5, []byte{254, 3, 5, 254 ^ 3 ^ 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := compiled("cyl $ 2"); err == nil {
		t.Fatalf("bad expression compiled")
	}
	compiledMu.Lock()
	_, cached := compiledExprs["cyl $ 2"]
	compiledMu.Unlock()
	if cached {
		t.Fatalf("failed parse was cached")
	}
}

func TestZoneFor(t *testing.T) {
	d := DiskApple35(2, 2)
	z, err := d.ZoneFor(40, 1)
	if err != nil || z.SectorCount() != 10 {
		t.Fatalf("cylinder 40 should be in a 10 sector zone (%v)", err)
	}
	if _, err := d.ZoneFor(80, 0); !errors.Is(err, disk.ErrSectorAccess) {
		t.Fatalf("expected sector access error, got %v", err)
	}
	if _, err := DiskApple35(1, 2).ZoneFor(3, 1); !errors.Is(err, disk.ErrSectorAccess) {
		t.Fatalf("single sided disk has no head 1")
	}
	if n := len(DiskApple52516(0).MotorAndHeads()); n != 35 {
		t.Fatalf("%d coordinates for a 5.25 disk", n)
	}
	if n := len(d.MotorAndHeads()); n != 160 {
		t.Fatalf("%d coordinates for an 800K disk", n)
	}
}

func TestCapacityWraps(t *testing.T) {
	z := Apple52516(0)
	z.Capacities = []int{256}
	if z.Capacity(12) != 256 {
		t.Fatalf("single capacity should serve every sector")
	}
}

func TestValidate(t *testing.T) {
	z := Apple52516(0)
	z.Capacities = nil
	if err := z.Validate(); !errors.Is(err, disk.ErrMetadataMismatch) {
		t.Errorf("empty capacity accepted")
	}
	z = Apple52516(0)
	z.Capacities = []int{300}
	if err := z.Validate(); !errors.Is(err, disk.ErrMetadataMismatch) {
		t.Errorf("300 byte 6&2 sector accepted")
	}
	z = Apple52516(0)
	z.MotorStart = 200
	if err := z.Validate(); !errors.Is(err, disk.ErrMetadataMismatch) {
		t.Errorf("inverted motor range accepted")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	for _, d := range []*DiskFormat{DiskApple52513(0), DiskApple52516(8), DiskApple35(2, 2)} {
		js, err := d.MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		back, err := ParseDiskFormat(js)
		if err != nil {
			t.Fatalf("%s: %v", js, err)
		}
		if len(back.Zones) != len(d.Zones) {
			t.Fatalf("zone count %d, expected %d", len(back.Zones), len(d.Zones))
		}
		for i := range d.Zones {
			a, b := &d.Zones[i], &back.Zones[i]
			if !reflect.DeepEqual(a.Capacities, b.Capacities) ||
				!reflect.DeepEqual(a.Markers, b.Markers) ||
				!reflect.DeepEqual(a.AddrSeekExpr, b.AddrSeekExpr) ||
				!reflect.DeepEqual(a.PhysicalOrder, b.PhysicalOrder) ||
				a.SpeedKbps != b.SpeedKbps || a.DataCode != b.DataCode || a.MotorEnd != b.MotorEnd {
				t.Fatalf("zone %d changed in transit", i)
			}
			for g := range a.Gaps {
				if a.Gaps[g].String() != b.Gaps[g].String() {
					t.Fatalf("zone %d gap %d changed in transit", i, g)
				}
			}
		}
	}
}

const userFormat = `{
	"format_type": "format",
	"version": "1.0.0",
	"zones": [{
		"flux_code": "GCR",
		"addr_nibs": "4&4",
		"data_nibs": "6&2",
		"motor_range": [0, 140, 4],
		"heads": [0],
		"addr_fmt_expr": ["vol", "cyl", "sec", "vol^cyl^sec"],
		"addr_seek_expr": ["a0", "cyl", "sec", "a0^a1^a2"],
		"data_expr": ["dat"],
		"markers": ["d5aa96", "deaaeb", "d5aaad", "deaaeb"],
		"marker_masks": ["ffffff", "ffff00", "ffffff", "ffff00"],
		"sync_trk_beg": [["1111111100", 40]],
		"sync_sec_end": [["1111111100", 10]],
		"sync_dat_end": ["1111111100", ["1111111100", 19]],
		"capacity": [[256, 15], 256],
		"swap_nibs": [["ff", "96"]]
	}]
}`

func TestParseUserFormat(t *testing.T) {
	d, err := ParseDiskFormat([]byte(userFormat))
	if err != nil {
		t.Fatal(err)
	}
	z := d.Zones[0]
	if z.SectorCount() != 16 || z.Gaps[GapDataEnd].Len() != 200 || z.SpeedKbps != 250 {
		t.Fatalf("unexpected zone %+v", z)
	}
	if !z.VerifyTrack || !z.VerifyChecksum {
		t.Fatalf("verification should default on")
	}
	if len(z.Swaps) != 1 || z.Swaps[0].Special != 0xff || z.Swaps[0].Normal != 0x96 {
		t.Fatalf("swaps %v", z.Swaps)
	}
}

func TestParseUserFormatErrors(t *testing.T) {
	bad := []string{
		strings.Replace(userFormat, `"format_type": "format"`, `"format_type": "disk"`, 1),
		strings.Replace(userFormat, `[[256, 15], 256]`, `[[256, 1000]]`, 1),
		strings.Replace(userFormat, `[[256, 15], 256]`, `[]`, 1),
		strings.Replace(userFormat, `"d5aa96", `, ``, 1),
		strings.Replace(userFormat, `[0, 140, 4]`, `[0, 140]`, 1),
		strings.Replace(userFormat, `"1111111100", 19`, `"1111121100", 19`, 1),
		strings.Replace(userFormat, `"vol^cyl^sec"`, `"vol^cyl^"`, 1),
		`{"format_type": "format", "version": "1.0"}`,
		`not json`,
	}
	for i, js := range bad {
		if _, err := ParseDiskFormat([]byte(js)); !errors.Is(err, disk.ErrMetadataMismatch) {
			t.Errorf("case %d: expected metadata mismatch, got %v", i, err)
		}
	}
}

func TestFormatForKind(t *testing.T) {
	for _, k := range disk.Kinds() {
		d, err := FormatForKind(k, false)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if err := d.Validate(); err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		for _, z := range d.Zones {
			bits, _ := z.TrackBitCount()
			if bits > k.TrackBytes*8 {
				t.Fatalf("%s: %d bits overflow a %d byte track", k, bits, k.TrackBytes)
			}
		}
	}
}
