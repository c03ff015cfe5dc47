// Package flux holds the cyclic stream a read/write head sees as the disk
// turns. The stream is stored at flux-cell resolution and read or written one
// bit cell at a time; the cursor wraps at the end of the revolution.
package flux

import (
	"errors"
	"fmt"
)

var (
	ErrCapacity   = errors.New("buffer cannot hold requested bits")
	ErrResolution = errors.New("flux cells cannot be wider than bit cells")
)

// Resolution gives the width of a flux cell and of a bit cell as powers of
// two of the tick. A tick is 125 ns on a 5.25 inch disk.
type Resolution struct {
	FShift uint
	BShift uint
}

var (
	Bits525 = Resolution{FShift: 5, BShift: 5}
	Flux525 = Resolution{FShift: 3, BShift: 5}
	Bits35  = Resolution{FShift: 4, BShift: 4}
	Flux35  = Resolution{FShift: 2, BShift: 4}
)

func (r Resolution) String() string {
	return fmt.Sprintf("%d/%d", r.FShift, r.BShift)
}

type FluxCells struct {
	stream []byte
	count  int
	ptr    int
	time   uint64
	fshift uint
	bshift uint
}

// New wraps bitCount bit cells taken MSB first from buf. A bit stream
// (FShift == BShift) maps one to one onto flux cells, a finer resolution pads
// each bit cell with empty flux cells.
func New(buf []byte, bitCount int, res Resolution) (*FluxCells, error) {
	if res.FShift > res.BShift {
		return nil, ErrResolution
	}
	if bitCount <= 0 || bitCount > len(buf)*8 {
		return nil, fmt.Errorf("%w: %d bits in %d bytes", ErrCapacity, bitCount, len(buf))
	}
	up := res.BShift - res.FShift
	count := bitCount << up
	c := &FluxCells{
		stream: make([]byte, (count+7)/8),
		count:  count,
		fshift: res.FShift,
		bshift: res.BShift,
	}
	if up == 0 {
		copy(c.stream, buf[:len(c.stream)])
		return c, nil
	}
	for i := 0; i < bitCount; i++ {
		if buf[i>>3]&(0x80>>(i&7)) != 0 {
			c.setCell(i<<up, true)
		}
	}
	return c, nil
}

// NewFromFlux decodes the run length form produced by ToOutputBuffer: each
// byte is a tick delta to the next transition, 255 continues the run.
func NewFromFlux(buf []byte, byteCount int, res Resolution) (*FluxCells, error) {
	if res.FShift > res.BShift {
		return nil, ErrResolution
	}
	if byteCount <= 0 || byteCount > len(buf) {
		return nil, fmt.Errorf("%w: %d flux bytes in %d", ErrCapacity, byteCount, len(buf))
	}
	total := 0
	for _, b := range buf[:byteCount] {
		total += int(b)
	}
	cell := 1 << res.FShift
	count := (total + cell - 1) / cell
	if count == 0 {
		return nil, fmt.Errorf("%w: empty flux track", ErrCapacity)
	}
	c := &FluxCells{
		stream: make([]byte, (count+7)/8),
		count:  count,
		fshift: res.FShift,
		bshift: res.BShift,
	}
	ticks := 0
	for _, b := range buf[:byteCount] {
		ticks += int(b)
		if b == 255 {
			continue
		}
		idx := (ticks+cell-1)/cell - 1
		if idx < 0 {
			idx = 0
		}
		c.setCell(idx%count, true)
	}
	return c, nil
}

func (c *FluxCells) cell(i int) bool {
	return c.stream[i>>3]&(0x80>>(i&7)) != 0
}

func (c *FluxCells) setCell(i int, v bool) {
	if v {
		c.stream[i>>3] |= 0x80 >> (i & 7)
	} else {
		c.stream[i>>3] &^= 0x80 >> (i & 7)
	}
}

func (c *FluxCells) revTicks() int {
	return c.count << c.fshift
}

func (c *FluxCells) subCells() int {
	return 1 << (c.bshift - c.fshift)
}

func (c *FluxCells) Resolution() Resolution {
	return Resolution{FShift: c.fshift, BShift: c.bshift}
}

// BitCount is the number of bit cells in one revolution.
func (c *FluxCells) BitCount() int {
	return (c.revTicks() + (1 << c.bshift) - 1) >> c.bshift
}

// FluxCount is the number of flux cells in one revolution.
func (c *FluxCells) FluxCount() int {
	return c.count
}

// Ptr is the cursor in ticks.
func (c *FluxCells) Ptr() int {
	return c.ptr
}

// BitPtr is the cursor in bit cells.
func (c *FluxCells) BitPtr() int {
	return c.ptr >> c.bshift
}

// SetBitPtr moves the cursor to a bit cell, wrapping as needed.
func (c *FluxCells) SetBitPtr(bit int) {
	c.ptr = mod(bit<<c.bshift, c.revTicks())
}

// Time is the number of ticks that have passed under the head.
func (c *FluxCells) Time() uint64 {
	return c.time
}

func (c *FluxCells) TicksSince(t uint64) uint64 {
	return c.time - t
}

func (c *FluxCells) Reset() {
	c.ptr = 0
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// Fwd rotates the disk ahead.
func (c *FluxCells) Fwd(ticks int) {
	c.ptr = mod(c.ptr+ticks, c.revTicks())
	c.time += uint64(ticks)
}

// Rev rotates the disk back; elapsed time is not rewound.
func (c *FluxCells) Rev(ticks int) {
	c.ptr = mod(c.ptr-ticks, c.revTicks())
}

// FwdBits and RevBits move by whole bit cells.
func (c *FluxCells) FwdBits(n int) {
	c.Fwd(n << c.bshift)
}

func (c *FluxCells) RevBits(n int) {
	c.Rev(n << c.bshift)
}

// ReadBit returns 1 if any flux cell under the current bit cell holds a
// transition, then advances one bit cell.
func (c *FluxCells) ReadBit() byte {
	start := c.ptr >> c.fshift
	var val byte
	for k := 0; k < c.subCells(); k++ {
		if c.cell((start + k) % c.count) {
			val = 1
			break
		}
	}
	c.Fwd(1 << c.bshift)
	return val
}

// WriteBit puts v in the leading flux cell of the bit cell and clears the
// others, then advances one bit cell.
func (c *FluxCells) WriteBit(v byte) {
	start := c.ptr >> c.fshift
	c.setCell(start%c.count, v != 0)
	for k := 1; k < c.subCells(); k++ {
		c.setCell((start+k)%c.count, false)
	}
	c.Fwd(1 << c.bshift)
}

// Read unpacks nbits bit cells into MSB first bytes.
func (c *FluxCells) Read(nbits int) []byte {
	out := make([]byte, (nbits+7)/8)
	for i := 0; i < nbits; i++ {
		if c.ReadBit() == 1 {
			out[i>>3] |= 0x80 >> (i & 7)
		}
	}
	return out
}

// Write packs the first nbits bits of data (MSB first) onto the track.
func (c *FluxCells) Write(data []byte, nbits int) {
	if nbits > len(data)*8 {
		nbits = len(data) * 8
	}
	for i := 0; i < nbits; i++ {
		c.WriteBit((data[i>>3] >> (7 - uint(i&7))) & 1)
	}
}

// ReadLatch assembles n bytes through a soft latch: zero bits are skipped
// until a 1 arrives, which becomes the high bit, then 7 more bits are
// shifted in. The number of bit cells consumed is returned with the bytes.
func (c *FluxCells) ReadLatch(n int) ([]byte, int) {
	out := make([]byte, n)
	consumed := 0
	limit := c.BitCount()
	for i := range out {
		for try := 0; try < limit; try++ {
			consumed++
			if c.ReadBit() == 1 {
				break
			}
		}
		val := byte(1)
		for b := 0; b < 7; b++ {
			val = val<<1 | c.ReadBit()
		}
		consumed += 7
		out[i] = val
	}
	return out, consumed
}

// ChangeResolution resamples the stream to a new flux cell width. Going finer
// is exact, going coarser ORs the merged cells. The cursor lands on the flux
// cell that contains it. Widths beyond the bit cell are clamped.
func (c *FluxCells) ChangeResolution(fshift uint) {
	if fshift > c.bshift {
		fshift = c.bshift
	}
	if fshift == c.fshift {
		return
	}
	var count int
	var stream []byte
	if fshift < c.fshift {
		k := 1 << (c.fshift - fshift)
		count = c.count * k
		stream = make([]byte, (count+7)/8)
		for i := 0; i < c.count; i++ {
			if c.cell(i) {
				j := i * k
				stream[j>>3] |= 0x80 >> (j & 7)
			}
		}
	} else {
		k := 1 << (fshift - c.fshift)
		count = (c.count + k - 1) / k
		stream = make([]byte, (count+7)/8)
		for i := 0; i < c.count; i++ {
			if c.cell(i) {
				j := i / k
				stream[j>>3] |= 0x80 >> (j & 7)
			}
		}
	}
	c.stream = stream
	c.count = count
	c.fshift = fshift
	c.ptr = mod(c.ptr>>fshift<<fshift, c.revTicks())
}

// SyncToOtherTrack carries the angle of other over to this track, as happens
// when the head steps: the cursor goes to the flux cell nearest the same
// fraction of a revolution, and elapsed time continues from other.
func (c *FluxCells) SyncToOtherTrack(other *FluxCells) {
	orev := other.revTicks()
	if orev == 0 || c.count == 0 {
		return
	}
	num := 2*int64(other.ptr)*int64(c.count) + int64(orev)
	idx := int(num / (2 * int64(orev)))
	c.ptr = (idx % c.count) << c.fshift
	c.time = other.time
}

// ToOutputBuffer serializes the track into at least bufLen bytes, padding
// with pad. Bit streams come out as packed bits and the count is in bits.
// Flux streams come out as run lengths starting after the last transition,
// so no run is split, and the count is in bytes.
func (c *FluxCells) ToOutputBuffer(bufLen int, pad byte) ([]byte, int) {
	if c.fshift == c.bshift {
		n := len(c.stream)
		out := make([]byte, max(bufLen, n))
		copy(out, c.stream)
		for i := n; i < len(out); i++ {
			out[i] = pad
		}
		return out, c.count
	}
	last := -1
	for i := c.count - 1; i >= 0; i-- {
		if c.cell(i) {
			last = i
			break
		}
	}
	var runs []byte
	if last >= 0 {
		cell := 1 << c.fshift
		ticks := 0
		for i := 1; i <= c.count; i++ {
			ticks += cell
			if c.cell((last + i) % c.count) {
				for ticks >= 255 {
					runs = append(runs, 255)
					ticks -= 255
				}
				runs = append(runs, byte(ticks))
				ticks = 0
			}
		}
	}
	out := make([]byte, max(bufLen, len(runs)))
	copy(out, runs)
	for i := len(runs); i < len(out); i++ {
		out[i] = pad
	}
	return out, len(runs)
}
