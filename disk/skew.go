package disk

// DOS_33_SECTOR_ORDER maps a physical sector to its position in a DOS
// ordered image.
var DOS_33_SECTOR_ORDER = []int{
	0x00, 0x07, 0x0E, 0x06, 0x0D, 0x05, 0x0C, 0x04,
	0x0B, 0x03, 0x0A, 0x02, 0x09, 0x01, 0x08, 0x0F,
}

// PRODOS_SECTOR_ORDER maps a physical sector to its position in a ProDOS
// ordered image.
var PRODOS_SECTOR_ORDER = []int{
	0x00, 0x08, 0x01, 0x09, 0x02, 0x0a, 0x03, 0x0b,
	0x04, 0x0c, 0x05, 0x0d, 0x06, 0x0e, 0x07, 0x0f,
}

// DOS32_PHYSICAL is the order in which DOS 3.2 lays sector ids around the
// track when it formats; the skew lives on the disk itself.
var DOS32_PHYSICAL = []int{
	0, 10, 7, 4, 1, 11, 8, 5, 2, 12, 9, 6, 3,
}

// DOS33_LOGICAL_TO_PHYSICAL is the software skew DOS 3.3 applies on top of
// physically ordered tracks.
var DOS33_LOGICAL_TO_PHYSICAL = Invert(DOS_33_SECTOR_ORDER)

// Linear is the identity order of n sectors.
func Linear(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Invert returns the inverse permutation of order.
func Invert(order []int) []int {
	out := make([]int, len(order))
	for i, v := range order {
		if v >= 0 && v < len(out) {
			out[v] = i
		}
	}
	return out
}
