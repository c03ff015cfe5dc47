// Package nibble translates between data bytes and the self-clocking disk
// bytes written on Apple GCR tracks.
package nibble

import (
	"fmt"
	"strings"
)

// Code selects the translation used for one field of a sector.
type Code int

const (
	CodeNone Code = iota
	Code44
	Code53
	Code62
)

func (c Code) String() string {
	switch c {
	case Code44:
		return "4&4"
	case Code53:
		return "5&3"
	case Code62:
		return "6&2"
	}
	return "none"
}

func ParseCode(s string) (Code, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "4&4", "44":
		return Code44, nil
	case "5&3", "53":
		return Code53, nil
	case "6&2", "62":
		return Code62, nil
	case "none", "":
		return CodeNone, nil
	}
	return CodeNone, fmt.Errorf("%w: unknown nibble code %q", ErrNibbleType, s)
}

// Width is the number of disk bytes used for one header byte of this code.
func (c Code) Width() int {
	if c == Code44 {
		return 2
	}
	return 1
}

const invalid = 0xff

var NIBBLE_53 = [32]byte{
	0xab, 0xad, 0xae, 0xaf, 0xb5, 0xb6, 0xb7, 0xba,
	0xbb, 0xbd, 0xbe, 0xbf, 0xd6, 0xd7, 0xda, 0xdb,
	0xdd, 0xde, 0xdf, 0xea, 0xeb, 0xed, 0xee, 0xef,
	0xf5, 0xf6, 0xf7, 0xfa, 0xfb, 0xfd, 0xfe, 0xff,
}

var NIBBLE_62 = [64]byte{
	0x96, 0x97, 0x9a, 0x9b, 0x9d, 0x9e, 0x9f, 0xa6,
	0xa7, 0xab, 0xac, 0xad, 0xae, 0xaf, 0xb2, 0xb3,
	0xb4, 0xb5, 0xb6, 0xb7, 0xb9, 0xba, 0xbb, 0xbc,
	0xbd, 0xbe, 0xbf, 0xcb, 0xcd, 0xce, 0xcf, 0xd3,
	0xd6, 0xd7, 0xd9, 0xda, 0xdb, 0xdc, 0xdd, 0xde,
	0xdf, 0xe5, 0xe6, 0xe7, 0xe9, 0xea, 0xeb, 0xec,
	0xed, 0xee, 0xef, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6,
	0xf7, 0xf9, 0xfa, 0xfb, 0xfc, 0xfd, 0xfe, 0xff,
}

var rev53, rev62 [256]byte

func init() {
	for i := range rev53 {
		rev53[i] = invalid
		rev62[i] = invalid
	}
	for v, b := range NIBBLE_53 {
		rev53[b] = byte(v)
	}
	for v, b := range NIBBLE_62 {
		rev62[b] = byte(v)
	}
}

// Encode44 splits a byte into odd and even bits, each padded with clock bits.
func Encode44(v byte) [2]byte {
	return [2]byte{(v >> 1) | 0xaa, v | 0xaa}
}

func Decode44(nibs [2]byte) (byte, error) {
	if nibs[0]&0xaa != 0xaa || nibs[1]&0xaa != 0xaa {
		return 0, ErrInvalidByte
	}
	return ((nibs[0] << 1) | 1) & nibs[1], nil
}

func Encode53(v byte) byte {
	return NIBBLE_53[v&0x1f]
}

func Decode53(nib byte) (byte, error) {
	v := rev53[nib]
	if v == invalid {
		return 0, ErrInvalidByte
	}
	return v, nil
}

func Encode62(v byte) byte {
	return NIBBLE_62[v&0x3f]
}

func Decode62(nib byte) (byte, error) {
	v := rev62[nib]
	if v == invalid {
		return 0, ErrInvalidByte
	}
	return v, nil
}

// EncodeByte gives the disk bytes for one header byte. Header bytes of the
// 5&3 and 6&2 codes are masked to the code width.
func EncodeByte(c Code, v byte) ([]byte, error) {
	switch c {
	case Code44:
		n := Encode44(v)
		return n[:], nil
	case Code53:
		return []byte{Encode53(v)}, nil
	case Code62:
		return []byte{Encode62(v)}, nil
	}
	return nil, ErrNibbleType
}

// DecodeByte reverses EncodeByte; nibs must hold c.Width() disk bytes.
func DecodeByte(c Code, nibs []byte) (byte, error) {
	if len(nibs) < c.Width() {
		return 0, ErrNibbleType
	}
	switch c {
	case Code44:
		return Decode44([2]byte{nibs[0], nibs[1]})
	case Code53:
		return Decode53(nibs[0])
	case Code62:
		return Decode62(nibs[0])
	}
	return 0, ErrNibbleType
}

// Valid reports whether the disk byte belongs to the alphabet of c.
func Valid(c Code, nib byte) bool {
	switch c {
	case Code44:
		return nib&0xaa == 0xaa
	case Code53:
		return rev53[nib] != invalid
	case Code62:
		return rev62[nib] != invalid
	}
	return false
}

// SwapPair substitutes a special disk byte for a normal one. Reading maps
// Special to Normal, writing maps Normal to Special.
type SwapPair struct {
	Special byte
	Normal  byte
}

func swapRead(nib byte, swaps []SwapPair) byte {
	for _, s := range swaps {
		if nib == s.Special {
			return s.Normal
		}
	}
	return nib
}

func swapWrite(nib byte, swaps []SwapPair) byte {
	for _, s := range swaps {
		if nib == s.Normal {
			return s.Special
		}
	}
	return nib
}
