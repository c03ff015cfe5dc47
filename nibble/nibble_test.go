package nibble

import (
	"bytes"
	"errors"
	"testing"
)

func TestCodeRoundTrip(t *testing.T) {
	for v := 0; v < 256; v++ {
		n := Encode44(byte(v))
		got, err := Decode44(n)
		if err != nil || got != byte(v) {
			t.Fatalf("4&4 %02x -> %02x %02x -> %02x (%v)", v, n[0], n[1], got, err)
		}
		if n[0]&0x80 == 0 || n[1]&0x80 == 0 {
			t.Fatalf("4&4 %02x produced a byte without the high bit", v)
		}
	}
	for v := 0; v < 32; v++ {
		got, err := Decode53(Encode53(byte(v)))
		if err != nil || got != byte(v) {
			t.Fatalf("5&3 %02x -> %02x (%v)", v, got, err)
		}
	}
	for v := 0; v < 64; v++ {
		got, err := Decode62(Encode62(byte(v)))
		if err != nil || got != byte(v) {
			t.Fatalf("6&2 %02x -> %02x (%v)", v, got, err)
		}
	}
}

func TestInvalidBytes(t *testing.T) {
	if _, err := Decode62(0xd5); !errors.Is(err, ErrInvalidByte) {
		t.Errorf("0xd5 is reserved, got %v", err)
	}
	if _, err := Decode53(0xaa); !errors.Is(err, ErrInvalidByte) {
		t.Errorf("0xaa is reserved, got %v", err)
	}
	if _, err := Decode44([2]byte{0x00, 0xff}); !errors.Is(err, ErrInvalidByte) {
		t.Errorf("missing clock bits should fail, got %v", err)
	}
}

func TestParseCode(t *testing.T) {
	for _, c := range []Code{Code44, Code53, Code62, CodeNone} {
		got, err := ParseCode(c.String())
		if err != nil || got != c {
			t.Errorf("%s parsed as %s (%v)", c, got, err)
		}
	}
	if _, err := ParseCode("G64-5:4"); !errors.Is(err, ErrNibbleType) {
		t.Errorf("expected nibble type error, got %v", err)
	}
}

func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i/3)
	}
	return out
}

func TestSectorRoundTrip(t *testing.T) {
	swaps := []SwapPair{{Special: 0xd5, Normal: 0xff}}
	cases := []struct {
		name string
		code Code
		size int
		nibs int
		seed [3]byte
	}{
		{"5&3", Code53, 256, 411, [3]byte{0, 0, 0}},
		{"5&3 seeded", Code53, 256, 411, [3]byte{0x15, 0, 0}},
		{"6&2", Code62, 256, 343, [3]byte{0, 0, 0}},
		{"6&2 tagged", Code62, 524, 703, [3]byte{0, 0, 0}},
		{"6&2 tagged seeded", Code62, 524, 703, [3]byte{0x12, 0x34, 0x56}},
		{"4&4", Code44, 256, 512, [3]byte{0, 0, 0}},
	}
	for _, tc := range cases {
		for _, sw := range [][]SwapPair{nil, swaps} {
			dat := pattern(tc.size)
			nibs, err := EncodeSector(tc.code, dat, tc.seed, sw)
			if err != nil {
				t.Fatalf("%s: encode: %v", tc.name, err)
			}
			if len(nibs) != tc.nibs {
				t.Fatalf("%s: %d nibbles, expected %d", tc.name, len(nibs), tc.nibs)
			}
			if n, _ := NibbleCount(tc.code, tc.size); n != tc.nibs {
				t.Fatalf("%s: NibbleCount gave %d", tc.name, n)
			}
			got, err := DecodeSector(tc.code, nibs, tc.seed, true, sw)
			if err != nil {
				t.Fatalf("%s: decode: %v", tc.name, err)
			}
			if !bytes.Equal(got, dat) {
				t.Fatalf("%s: round trip mismatch", tc.name)
			}
		}
	}
}

func TestSwapsAppearOnDisk(t *testing.T) {
	dat := make([]byte, 256)
	for i := range dat {
		dat[i] = 0xff
	}
	swaps := []SwapPair{{Special: 0xd5, Normal: 0xff}}
	nibs, err := EncodeSector62(dat, [3]byte{}, swaps)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.IndexByte(nibs, 0xff) >= 0 {
		t.Fatalf("normal byte 0xff should have been replaced")
	}
	if _, err := DecodeSector62(nibs, [3]byte{}, true, nil); !errors.Is(err, ErrInvalidByte) {
		t.Fatalf("reading without swaps should hit the special byte, got %v", err)
	}
}

// otherValid returns a different disk byte from the same alphabet.
func otherValid(c Code, b byte) byte {
	for i := 1; i < 256; i++ {
		cand := b + byte(i)
		if Valid(c, cand) {
			return cand
		}
	}
	return b
}

func TestChecksumCorruption(t *testing.T) {
	cases := []struct {
		name string
		code Code
		size int
	}{
		{"5&3", Code53, 256},
		{"6&2", Code62, 256},
		{"6&2 tagged", Code62, 524},
	}
	for _, tc := range cases {
		dat := pattern(tc.size)
		nibs, err := EncodeSector(tc.code, dat, [3]byte{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		last := len(nibs) - 1
		nibs[last] = otherValid(tc.code, nibs[last])

		if _, err := DecodeSector(tc.code, nibs, [3]byte{}, true, nil); !errors.Is(err, ErrBadChecksum) {
			t.Errorf("%s: expected bad checksum, got %v", tc.name, err)
		}
		got, err := DecodeSector(tc.code, nibs, [3]byte{}, false, nil)
		if err != nil {
			t.Errorf("%s: unverified decode failed: %v", tc.name, err)
		}
		if len(got) != tc.size {
			t.Errorf("%s: unverified decode gave %d bytes", tc.name, len(got))
		}
	}
}

func TestWrongSizes(t *testing.T) {
	if _, err := EncodeSector53(make([]byte, 255), 0, nil); !errors.Is(err, ErrNibbleType) {
		t.Errorf("255 bytes should not encode as 5&3: %v", err)
	}
	if _, err := EncodeSector62(make([]byte, 512), [3]byte{}, nil); !errors.Is(err, ErrNibbleType) {
		t.Errorf("512 bytes should not encode as 6&2: %v", err)
	}
	if _, err := DecodeSector62(make([]byte, 400), [3]byte{}, true, nil); !errors.Is(err, ErrNibbleType) {
		t.Errorf("400 nibbles should not decode: %v", err)
	}
	if _, err := NibbleCount(Code53, 524); !errors.Is(err, ErrNibbleType) {
		t.Errorf("524 bytes has no 5&3 form: %v", err)
	}
	for n, want := range map[int]int{411: 256, 414: 256} {
		if got, err := CapacityFromCount(Code53, n); err != nil || got != want {
			t.Errorf("5&3 %d nibbles -> %d (%v)", n, got, err)
		}
	}
	if got, _ := CapacityFromCount(Code62, 705); got != 524 {
		t.Errorf("705 6&2 nibbles should be a tagged sector, got %d", got)
	}
}
