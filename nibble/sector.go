package nibble

import "fmt"

const (
	chunk53 = 0x33
	chunk62 = 0x56

	// 524 byte sectors: 12 tag bytes followed by 512 data bytes
	taggedSize  = 524
	taggedChunk = 175
	taggedData  = 699
	taggedNibs  = taggedData + 4
)

// NibbleCount is the number of disk bytes in the data field for a payload
// of the given capacity, checksum included.
func NibbleCount(c Code, capacity int) (int, error) {
	switch {
	case c == Code44 && capacity > 0:
		return 2 * capacity, nil
	case c == Code53 && capacity == 256:
		return 411, nil
	case c == Code62 && capacity == 256:
		return 343, nil
	case c == Code62 && capacity == taggedSize:
		return taggedNibs, nil
	}
	return 0, fmt.Errorf("%w: %d bytes as %s", ErrNibbleType, capacity, c)
}

// CapacityFromCount infers the payload size from the number of disk bytes
// found between the data prolog and epilog. A few stray header nibbles are
// tolerated for the 5&3 and 6&2 codes.
func CapacityFromCount(c Code, n int) (int, error) {
	switch {
	case c == Code44:
		return n / 2, nil
	case c == Code53 && n >= 411 && n < 415:
		return 256, nil
	case c == Code62 && n >= 343 && n < 347:
		return 256, nil
	case c == Code62 && n >= taggedNibs && n < taggedNibs+4:
		return taggedSize, nil
	}
	return 0, fmt.Errorf("%w: %d nibbles of %s", ErrNibbleType, n, c)
}

func enc53(v byte, swaps []SwapPair) byte {
	return swapWrite(Encode53(v), swaps)
}

func dec53(nib byte, swaps []SwapPair) (byte, error) {
	return Decode53(swapRead(nib, swaps))
}

func enc62(v byte, swaps []SwapPair) byte {
	return swapWrite(Encode62(v), swaps)
}

func dec62(nib byte, swaps []SwapPair) (byte, error) {
	return Decode62(swapRead(nib, swaps))
}

// EncodeSector dispatches on the data field code. Only the first seed byte
// is used except for 524 byte sectors.
func EncodeSector(c Code, dat []byte, seed [3]byte, swaps []SwapPair) ([]byte, error) {
	switch c {
	case Code44:
		return EncodeSector44(dat, swaps), nil
	case Code53:
		return EncodeSector53(dat, seed[0], swaps)
	case Code62:
		return EncodeSector62(dat, seed, swaps)
	}
	return nil, ErrNibbleType
}

func DecodeSector(c Code, nibs []byte, seed [3]byte, verify bool, swaps []SwapPair) ([]byte, error) {
	switch c {
	case Code44:
		return DecodeSector44(nibs, swaps)
	case Code53:
		return DecodeSector53(nibs, seed[0], verify, swaps)
	case Code62:
		return DecodeSector62(nibs, seed, verify, swaps)
	}
	return nil, ErrNibbleType
}

// EncodeSector44 writes each byte as an odd/even pair; there is no checksum.
func EncodeSector44(dat []byte, swaps []SwapPair) []byte {
	out := make([]byte, 0, 2*len(dat))
	for _, b := range dat {
		n := Encode44(b)
		out = append(out, swapWrite(n[0], swaps), swapWrite(n[1], swaps))
	}
	return out
}

func DecodeSector44(nibs []byte, swaps []SwapPair) ([]byte, error) {
	if len(nibs)%2 != 0 {
		return nil, fmt.Errorf("%w: odd 4&4 nibble count %d", ErrNibbleType, len(nibs))
	}
	out := make([]byte, len(nibs)/2)
	for i := range out {
		v, err := Decode44([2]byte{swapRead(nibs[2*i], swaps), swapRead(nibs[2*i+1], swaps)})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeSector53 turns 256 bytes into 411 disk bytes. The bytes are split
// into 5 bit tops and 3 bit remainders, the remainders of each group of five
// bytes folded into three values, then all of it is chained through a
// rolling XOR that starts from seed and ends with the checksum.
func EncodeSector53(dat []byte, seed byte, swaps []SwapPair) ([]byte, error) {
	if len(dat) != 256 {
		return nil, fmt.Errorf("%w: %d bytes for 5&3", ErrNibbleType, len(dat))
	}
	var top [256]byte
	var threes [154]byte
	for i := 0; i < chunk53; i++ {
		off := chunk53 - 1 - i
		d := dat[i*5 : i*5+5]
		top[off] = d[0] >> 3
		top[off+chunk53] = d[1] >> 3
		top[off+chunk53*2] = d[2] >> 3
		top[off+chunk53*3] = d[3] >> 3
		top[off+chunk53*4] = d[4] >> 3
		threes[off] = (d[0]&7)<<2 | (d[3]&4)>>1 | (d[4]&4)>>2
		threes[off+chunk53] = (d[1]&7)<<2 | (d[3] & 2) | (d[4]&2)>>1
		threes[off+chunk53*2] = (d[2]&7)<<2 | (d[3]&1)<<1 | (d[4] & 1)
	}
	top[255] = dat[255] >> 3
	threes[153] = dat[255] & 7

	out := make([]byte, 0, 411)
	chk := seed
	for i := len(threes) - 1; i >= 0; i-- {
		out = append(out, enc53(threes[i]^chk, swaps))
		chk = threes[i]
	}
	for _, t := range top {
		out = append(out, enc53(t^chk, swaps))
		chk = t
	}
	out = append(out, enc53(chk, swaps))
	return out, nil
}

func DecodeSector53(nibs []byte, seed byte, verify bool, swaps []SwapPair) ([]byte, error) {
	if len(nibs) != 411 {
		return nil, fmt.Errorf("%w: %d nibbles for 5&3", ErrNibbleType, len(nibs))
	}
	var base [256]byte
	var threes [154]byte
	chk := seed
	idx := 0
	for i := len(threes) - 1; i >= 0; i-- {
		v, err := dec53(nibs[idx], swaps)
		if err != nil {
			return nil, err
		}
		chk ^= v
		threes[i] = chk
		idx++
	}
	for i := range base {
		v, err := dec53(nibs[idx], swaps)
		if err != nil {
			return nil, err
		}
		chk ^= v
		base[i] = chk << 3
		idx++
	}
	v, err := dec53(nibs[idx], swaps)
	if err != nil {
		return nil, err
	}
	chk ^= v
	if verify && chk != 0 {
		return nil, ErrBadChecksum
	}

	out := make([]byte, 0, 256)
	for i := chunk53 - 1; i >= 0; i-- {
		t1 := threes[i]
		t2 := threes[chunk53+i]
		t3 := threes[chunk53*2+i]
		t4 := (t1&2)<<1 | (t2 & 2) | (t3&2)>>1
		t5 := (t1&1)<<2 | (t2&1)<<1 | (t3 & 1)
		out = append(out,
			base[i]|((t1>>2)&7),
			base[chunk53+i]|((t2>>2)&7),
			base[chunk53*2+i]|((t3>>2)&7),
			base[chunk53*3+i]|(t4&7),
			base[chunk53*4+i]|(t5&7),
		)
	}
	out = append(out, base[255]|(threes[153]&7))
	return out, nil
}

// EncodeSector62 handles both 256 byte sectors (343 disk bytes) and 524 byte
// tagged sectors (703 disk bytes).
func EncodeSector62(dat []byte, seed [3]byte, swaps []SwapPair) ([]byte, error) {
	switch len(dat) {
	case 256:
		return encode62(dat, seed[0], swaps), nil
	case taggedSize:
		return encode62Tagged(dat, seed, swaps), nil
	}
	return nil, fmt.Errorf("%w: %d bytes for 6&2", ErrNibbleType, len(dat))
}

func DecodeSector62(nibs []byte, seed [3]byte, verify bool, swaps []SwapPair) ([]byte, error) {
	switch len(nibs) {
	case 343:
		return decode62(nibs, seed[0], verify, swaps)
	case taggedNibs:
		return decode62Tagged(nibs, seed, verify, swaps)
	}
	return nil, fmt.Errorf("%w: %d nibbles for 6&2", ErrNibbleType, len(nibs))
}

func encode62(dat []byte, seed byte, swaps []SwapPair) []byte {
	var top [256]byte
	var twos [chunk62]byte
	shift := uint(0)
	pos := chunk62 - 1
	for i, v := range dat {
		top[i] = v >> 2
		twos[pos] |= ((v&1)<<1 | (v&2)>>1) << shift
		if pos == 0 {
			pos = chunk62
			shift += 2
		}
		pos--
	}

	out := make([]byte, 0, 343)
	chk := seed
	for i := chunk62 - 1; i >= 0; i-- {
		out = append(out, enc62(twos[i]^chk, swaps))
		chk = twos[i]
	}
	for _, t := range top {
		out = append(out, enc62(t^chk, swaps))
		chk = t
	}
	out = append(out, enc62(chk, swaps))
	return out
}

func decode62(nibs []byte, seed byte, verify bool, swaps []SwapPair) ([]byte, error) {
	var twos [chunk62 * 3]byte
	chk := seed
	idx := 0
	for i := 0; i < chunk62; i++ {
		v, err := dec62(nibs[idx], swaps)
		if err != nil {
			return nil, err
		}
		chk ^= v
		twos[i] = (chk&1)<<1 | (chk&2)>>1
		twos[i+chunk62] = (chk&4)>>1 | (chk&8)>>3
		twos[i+chunk62*2] = (chk&0x10)>>3 | (chk&0x20)>>5
		idx++
	}
	out := make([]byte, 256)
	for i := range out {
		v, err := dec62(nibs[idx], swaps)
		if err != nil {
			return nil, err
		}
		chk ^= v
		out[i] = chk<<2 | twos[i]
		idx++
	}
	v, err := dec62(nibs[idx], swaps)
	if err != nil {
		return nil, err
	}
	chk ^= v
	if verify && chk != 0 {
		return nil, ErrBadChecksum
	}
	return out, nil
}

// encode62Tagged runs three byte-wide accumulators over the sector. chk0
// rotates left each step, and the carry out of each accumulator feeds the
// next one in the chain chk0 -> chk2 -> chk1 -> chk0.
func encode62Tagged(dat []byte, seed [3]byte, swaps []SwapPair) []byte {
	var part0, part1, part2 [taggedChunk]byte
	chk0, chk1, chk2 := int(seed[0]), int(seed[1]), int(seed[2])

	i, s := 0, 0
	for {
		chk0 = (chk0 & 0xff) << 1
		if chk0&0x100 != 0 {
			chk0++
		}
		val := int(dat[s])
		chk2 += val
		if chk0&0x100 != 0 {
			chk2++
			chk0 &= 0xff
		}
		part0[i] = byte(val ^ chk0)

		val = int(dat[s+1])
		chk1 += val
		if chk2 > 0xff {
			chk1++
			chk2 &= 0xff
		}
		part1[i] = byte(val ^ chk2)

		if s+2 >= taggedSize {
			chk0 &= 0xff
			chk1 &= 0xff
			chk2 &= 0xff
			break
		}

		val = int(dat[s+2])
		chk0 += val
		if chk1 > 0xff {
			chk0++
			chk1 &= 0xff
		}
		part2[i] = byte(val ^ chk1)
		i++
		s += 3
	}

	out := make([]byte, taggedNibs)
	for i := 0; i < taggedChunk; i++ {
		twos := (part0[i]&0xc0)>>2 | (part1[i]&0xc0)>>4 | (part2[i]&0xc0)>>6
		out[i*4] = enc62(twos, swaps)
		out[i*4+1] = enc62(part0[i]&0x3f, swaps)
		out[i*4+2] = enc62(part1[i]&0x3f, swaps)
		if i*4+3 < taggedNibs {
			out[i*4+3] = enc62(part2[i]&0x3f, swaps)
		}
	}

	twos := byte((chk0&0xc0)>>6 | (chk1&0xc0)>>4 | (chk2&0xc0)>>2)
	out[taggedData] = enc62(twos, swaps)
	out[taggedData+1] = enc62(byte(chk2)&0x3f, swaps)
	out[taggedData+2] = enc62(byte(chk1)&0x3f, swaps)
	out[taggedData+3] = enc62(byte(chk0)&0x3f, swaps)
	return out
}

func decode62Tagged(nibs []byte, seed [3]byte, verify bool, swaps []SwapPair) ([]byte, error) {
	var part0, part1, part2 [taggedChunk]byte
	idx := 0
	for i := 0; i < taggedChunk; i++ {
		twos, err := dec62(nibs[idx], swaps)
		if err != nil {
			return nil, err
		}
		n0, err := dec62(nibs[idx+1], swaps)
		if err != nil {
			return nil, err
		}
		n1, err := dec62(nibs[idx+2], swaps)
		if err != nil {
			return nil, err
		}
		idx += 3
		var n2 byte
		if i != taggedChunk-1 {
			n2, err = dec62(nibs[idx], swaps)
			if err != nil {
				return nil, err
			}
			idx++
		}
		part0[i] = n0 | ((twos << 2) & 0xc0)
		part1[i] = n1 | ((twos << 4) & 0xc0)
		part2[i] = n2 | ((twos << 6) & 0xc0)
	}

	out := make([]byte, 0, taggedSize)
	chk0, chk1, chk2 := int(seed[0]), int(seed[1]), int(seed[2])
	for i := 0; ; i++ {
		chk0 = (chk0 & 0xff) << 1
		if chk0&0x100 != 0 {
			chk0++
		}
		val := byte(int(part0[i]) ^ chk0)
		chk2 += int(val)
		if chk0&0x100 != 0 {
			chk2++
			chk0 &= 0xff
		}
		out = append(out, val)

		val = byte(int(part1[i]) ^ chk2)
		chk1 += int(val)
		if chk2 > 0xff {
			chk1++
			chk2 &= 0xff
		}
		out = append(out, val)

		if len(out) >= taggedSize {
			chk0 &= 0xff
			chk1 &= 0xff
			chk2 &= 0xff
			break
		}

		val = byte(int(part2[i]) ^ chk1)
		chk0 += int(val)
		if chk1 > 0xff {
			chk0++
			chk1 &= 0xff
		}
		out = append(out, val)
	}

	var rd [4]byte
	for k := range rd {
		v, err := dec62(nibs[taggedData+k], swaps)
		if err != nil {
			return nil, err
		}
		rd[k] = v
	}
	twos, n2, n1, n0 := rd[0], rd[1], rd[2], rd[3]
	rdchk0 := int(n0 | ((twos << 6) & 0xc0))
	rdchk1 := int(n1 | ((twos << 4) & 0xc0))
	rdchk2 := int(n2 | ((twos << 2) & 0xc0))
	if chk0 != rdchk0 || chk1 != rdchk1 || chk2 != rdchk2 {
		if verify {
			return nil, fmt.Errorf("%w: expected %02x%02x%02x got %02x%02x%02x",
				ErrBadChecksum, chk0, chk1, chk2, rdchk0, rdchk1, rdchk2)
		}
	}
	return out, nil
}
