package disk

import (
	"errors"
	"testing"
)

func TestKeyConversions(t *testing.T) {
	cases := []struct {
		kind  DiskKind
		key   TrackKey
		motor int
		head  int
		track int
	}{
		{A2DOS33, Track(3), 12, 0, 3},
		{A2DOS33, CH(34, 0), 136, 0, 34},
		{A2DOS33, Motor(8, 0), 8, 0, 2},
		{A2800K, Track(5), 2, 1, 5},
		{A2800K, CH(79, 1), 79, 1, 159},
		{A2800K, Motor(40, 0), 40, 0, 80},
	}
	for _, tc := range cases {
		m, h, err := tc.kind.MotorHead(tc.key)
		if err != nil || m != tc.motor || h != tc.head {
			t.Errorf("%s %s: motor %d head %d (%v)", tc.kind, tc.key, m, h, err)
		}
		tr, err := tc.kind.Track(tc.key)
		if err != nil || tr != tc.track {
			t.Errorf("%s %s: track %d (%v)", tc.kind, tc.key, tr, err)
		}
	}
}

func TestOutOfRange(t *testing.T) {
	bad := []struct {
		kind DiskKind
		key  TrackKey
	}{
		{A2DOS33, Track(35)},
		{A2DOS33, CH(0, 1)},
		{A2DOS33, Motor(140, 0)},
		{A2400K, CH(10, 1)},
	}
	for _, tc := range bad {
		if _, _, err := tc.kind.MotorHead(tc.key); !errors.Is(err, ErrTrackCountMismatch) {
			t.Errorf("%s %s: expected track count mismatch, got %v", tc.kind, tc.key, err)
		}
	}
	if _, err := A2DOS33.Track(Motor(5, 0)); !errors.Is(err, ErrTrackCountMismatch) {
		t.Errorf("quarter track has no index, got %v", err)
	}
}

func TestJump(t *testing.T) {
	k, err := Motor(8, 0).Jump(2, -1, 4)
	if err != nil || k.Motor != 16 || k.Head != 0 {
		t.Fatalf("motor jump gave %s (%v)", k, err)
	}
	k, err = CH(3, 0).Jump(-1, 1, 1)
	if err != nil || k.Cyl != 2 || k.Head != 1 {
		t.Fatalf("ch jump gave %s (%v)", k, err)
	}
	if _, err := CH(0, 0).Jump(-1, -1, 1); err == nil {
		t.Fatalf("jump below cylinder 0 should fail")
	}
	if _, err := Track(1).Jump(1, -1, 1); err == nil {
		t.Fatalf("track index should not jump")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.Name)
		if err != nil || got != k {
			t.Errorf("%s did not parse (%v)", k.Name, err)
		}
	}
	if _, err := ParseKind("8in-ibm-sssd"); !errors.Is(err, ErrUnknownDiskKind) {
		t.Errorf("expected unknown kind, got %v", err)
	}
}

func TestSkewTables(t *testing.T) {
	inv := Invert(DOS_33_SECTOR_ORDER)
	for i, p := range DOS33_LOGICAL_TO_PHYSICAL {
		if DOS_33_SECTOR_ORDER[p] != i || inv[i] != p {
			t.Fatalf("logical %d -> physical %d is not inverse", i, p)
		}
	}
	if DOS33_LOGICAL_TO_PHYSICAL[1] != 13 {
		t.Fatalf("logical 1 should sit at physical 13")
	}
	seen := map[int]bool{}
	for _, s := range DOS32_PHYSICAL {
		seen[s] = true
	}
	if len(seen) != 13 {
		t.Fatalf("DOS 3.2 skew is not a permutation")
	}
}

func TestSeekVars(t *testing.T) {
	v := A2525(254, 17).SeekVars(3, []byte{0xfe, 0x11})
	if v["vol"] != 254 || v["cyl"] != 17 || v["sec"] != 3 || v["a0"] != 0xfe || v["a1"] != 0x11 {
		t.Fatalf("unexpected vars %v", v)
	}
}

func TestParseTrackKey(t *testing.T) {
	cases := map[string]TrackKey{
		"17":    Track(17),
		"40/1":  CH(40, 1),
		"m68":   Motor(68, 0),
		"M2/1 ": Motor(2, 1),
	}
	for src, want := range cases {
		got, err := ParseTrackKey(src)
		if err != nil || got != want {
			t.Errorf("%q gave %s (%v)", src, got, err)
		}
	}
	for _, src := range []string{"", "x", "1/2/3", "-4", "m"} {
		if _, err := ParseTrackKey(src); !errors.Is(err, ErrSectorAccess) {
			t.Errorf("%q: expected sector access error, got %v", src, err)
		}
	}
}

func Test2MG(t *testing.T) {
	payload := make([]byte, 1600*512)
	payload[0] = 0x42
	file := Build2MG(F2MG_PRODOS, 0, payload)
	h, data, err := Parse2MG(file)
	if err != nil {
		t.Fatal(err)
	}
	if h.GetCreatorID() != CREATOR_2MG || h.GetProDOSBlocks() != 1600 || len(data) != len(payload) || data[0] != 0x42 {
		t.Fatalf("header %q blocks %d, %d bytes", h.GetCreatorID(), h.GetProDOSBlocks(), len(data))
	}
	h, _, err = Parse2MG(Build2MG(F2MG_DOS, 17, make([]byte, STD_DISK_BYTES)))
	if err != nil {
		t.Fatal(err)
	}
	if vol, ok := h.GetVolume(); !ok || vol != 17 {
		t.Fatalf("volume %d (%v)", vol, ok)
	}
	if _, _, err := Parse2MG([]byte("not a 2mg file at all, just some text padding it out to 64 bytes")); !errors.Is(err, ErrImageTypeMismatch) {
		t.Fatalf("expected image type mismatch, got %v", err)
	}
}
