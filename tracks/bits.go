package tracks

import (
	"fmt"
	"strings"

	"github.com/paleotronic/trackm8/disk"
)

// Bits is a short run of raw track bits, packed MSB first. Sync gaps are
// kept this way because their length need not be a whole number of bytes.
type Bits struct {
	packed []byte
	n      int
}

// SyncBits builds count self-sync bytes of width bits each: eight ones
// followed by width-8 zeros.
func SyncBits(count, width int) Bits {
	var b Bits
	for i := 0; i < count*width; i++ {
		b.Push(i%width < 8)
	}
	return b
}

func ParseBits(s string) (Bits, error) {
	var b Bits
	for i, c := range s {
		switch c {
		case '0':
			b.Push(false)
		case '1':
			b.Push(true)
		default:
			return Bits{}, fmt.Errorf("%w: %q is not binary at %d", disk.ErrMetadataMismatch, s, i)
		}
	}
	return b, nil
}

func (b Bits) Len() int {
	return b.n
}

// Bytes returns the packed bits; trailing bits of the last byte are zero.
func (b Bits) Bytes() []byte {
	return b.packed
}

func (b Bits) At(i int) bool {
	return b.packed[i>>3]&(0x80>>(i&7)) != 0
}

func (b *Bits) Push(v bool) {
	if b.n%8 == 0 {
		b.packed = append(b.packed, 0)
	}
	if v {
		b.packed[b.n>>3] |= 0x80 >> (b.n & 7)
	}
	b.n++
}

func (b *Bits) Append(o Bits) {
	for i := 0; i < o.n; i++ {
		b.Push(o.At(i))
	}
}

func (b Bits) String() string {
	var sb strings.Builder
	for i := 0; i < b.n; i++ {
		if b.At(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Runs splits the bits into a repeated unit where possible, so a sync gap
// prints as a single [pattern, count] pair.
func (b Bits) Runs() (unit string, count int) {
	s := b.String()
	for w := 8; w <= 10 && w <= len(s); w++ {
		if len(s)%w != 0 {
			continue
		}
		if strings.Repeat(s[:w], len(s)/w) == s {
			return s[:w], len(s) / w
		}
	}
	return s, 1
}
