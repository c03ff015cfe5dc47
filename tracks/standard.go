package tracks

import (
	"fmt"
	"strconv"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/nibble"
)

func marker(key ...byte) []byte {
	return key
}

func repeatInt(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Apple52513 is the DOS 3.2 track. syncBits is 9 for a real disk, or 8 for
// images that drop the zero bits of sync bytes (NIB).
func Apple52513(syncBits int) ZoneFormat {
	if syncBits != 8 {
		syncBits = 9
	}
	return ZoneFormat{
		FluxCode:     FluxGCR,
		AddrCode:     nibble.Code44,
		DataCode:     nibble.Code53,
		SpeedKbps:    250,
		MotorStart:   0,
		MotorEnd:     140,
		MotorStep:    4,
		Heads:        []int{0},
		AddrFmtExpr:  []string{"vol", "cyl", "sec", "vol^cyl^sec"},
		AddrSeekExpr: []string{"a0", "cyl", "sec", "a0^a1^a2"},
		DataExpr:     []string{"dat"},
		CHSExpr:      []string{"a1", "0", "a2"},
		Markers: [4]Marker{
			NewMarker(marker(0xd5, 0xaa, 0xb5), marker(0xff, 0xff, 0xff)),
			NewMarker(marker(0xde, 0xaa, 0xeb), marker(0xff, 0xff, 0x00)),
			NewMarker(marker(0xd5, 0xaa, 0xad), marker(0xff, 0xff, 0xff)),
			NewMarker(marker(0xde, 0xaa, 0xeb), marker(0xff, 0xff, 0x00)),
		},
		Gaps: [3]Bits{
			SyncBits(40, syncBits),
			SyncBits(10, syncBits),
			SyncBits(20, syncBits),
		},
		Capacities:     repeatInt(disk.STD_BYTES_PER_SECTOR, disk.STD_SECTORS_PER_TRACK_OLD),
		VerifyTrack:    true,
		VerifyChecksum: true,
		PhysicalOrder:  append([]int(nil), disk.DOS32_PHYSICAL...),
	}
}

// Apple52516 is the DOS 3.3 / ProDOS track. syncBits is 10, or 8 for NIB.
func Apple52516(syncBits int) ZoneFormat {
	if syncBits != 8 {
		syncBits = 10
	}
	z := Apple52513(8)
	z.DataCode = nibble.Code62
	z.Markers[AddrProlog] = NewMarker(marker(0xd5, 0xaa, 0x96), marker(0xff, 0xff, 0xff))
	z.Gaps = [3]Bits{
		SyncBits(40, syncBits),
		SyncBits(10, syncBits),
		SyncBits(20, syncBits),
	}
	z.Capacities = repeatInt(disk.STD_BYTES_PER_SECTOR, disk.STD_SECTORS_PER_TRACK)
	z.PhysicalOrder = nil
	return z
}

// Interleave lays out n sector ids so that consecutive ids sit factor
// slots apart.
func Interleave(n, factor int) []int {
	out := make([]int, n)
	used := make([]bool, n)
	if factor < 1 {
		factor = 1
	}
	pos := 0
	for s := 0; s < n; s++ {
		for used[pos] {
			pos = (pos + 1) % n
		}
		out[pos] = s
		used[pos] = true
		pos = (pos + factor) % n
	}
	return out
}

// Apple35 is one speed zone of a 3.5 inch GCR disk. Zone z covers
// cylinders 16z to 16z+15 and holds 12-z tagged sectors per side.
func Apple35(zone, sides, interleave int) ZoneFormat {
	zone = min(max(zone, 0), 4)
	sides = min(max(sides, 1), 2)
	interleave = min(max(interleave, 0), 31)
	format := strconv.Itoa(interleave + (sides-1)*32)
	sectors := 12 - zone
	heads := []int{0}
	if sides == 2 {
		heads = []int{0, 1}
	}
	z := ZoneFormat{
		FluxCode:     FluxGCR,
		AddrCode:     nibble.Code62,
		DataCode:     nibble.Code62,
		SpeedKbps:    500,
		MotorStart:   zone * 16,
		MotorEnd:     zone*16 + 16,
		MotorStep:    1,
		Heads:        heads,
		AddrFmtExpr:  []string{"cyl%64", "sec", "head*32+cyl//64", format, "(cyl^sec^(head*32+cyl//64)^" + format + ")&63"},
		AddrSeekExpr: []string{"cyl%64", "sec", "head*32+cyl//64", format, "(a0^a1^a2^a3)&63"},
		DataExpr:     []string{"sec", "dat"},
		CHSExpr:      []string{"a0+(a2&31)*64", "a2>>5", "a1"},
		Markers: [4]Marker{
			NewMarker(marker(0xd5, 0xaa, 0x96), marker(0xff, 0xff, 0xff)),
			// the last bit of the address epilog is unreliable
			NewMarker(marker(0xde, 0xaa), marker(0xff, 0xfe)),
			NewMarker(marker(0xd5, 0xaa, 0xad), marker(0xff, 0xff, 0xff)),
			NewMarker(marker(0xde, 0xaa), marker(0xff, 0xff)),
		},
		Gaps: [3]Bits{
			SyncBits(36, 10),
			SyncBits(6, 10),
			SyncBits(36, 10),
		},
		Capacities:     repeatInt(disk.TAGGED_BYTES_PER_SECTOR, sectors),
		VerifyTrack:    true,
		VerifyChecksum: true,
	}
	if interleave > 1 {
		z.PhysicalOrder = Interleave(sectors, interleave)
	}
	return z
}

func DiskApple52513(syncBits int) *DiskFormat {
	return &DiskFormat{Zones: []ZoneFormat{Apple52513(syncBits)}}
}

func DiskApple52516(syncBits int) *DiskFormat {
	return &DiskFormat{Zones: []ZoneFormat{Apple52516(syncBits)}}
}

func DiskApple35(sides, interleave int) *DiskFormat {
	d := &DiskFormat{}
	for zone := 0; zone < 5; zone++ {
		d.Zones = append(d.Zones, Apple35(zone, sides, interleave))
	}
	return d
}

// FormatForKind gives the standard format of a disk kind. nib selects the
// 8-bit sync variants used by NIB images.
func FormatForKind(kind disk.DiskKind, nib bool) (*DiskFormat, error) {
	sync := 0
	if nib {
		sync = 8
	}
	switch kind.Name {
	case disk.A2DOS32.Name:
		return DiskApple52513(sync), nil
	case disk.A2DOS33.Name:
		return DiskApple52516(sync), nil
	case disk.A2400K.Name:
		return DiskApple35(1, 2), nil
	case disk.A2800K.Name:
		return DiskApple35(2, 2), nil
	}
	return nil, fmt.Errorf("%w: no standard format for %s", disk.ErrUnknownDiskKind, kind.Name)
}
