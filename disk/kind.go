package disk

import (
	"fmt"
	"strings"
)

const STD_BYTES_PER_SECTOR = 256
const STD_TRACKS_PER_DISK = 35
const STD_SECTORS_PER_TRACK = 16
const STD_SECTORS_PER_TRACK_OLD = 13
const STD_DISK_BYTES = STD_TRACKS_PER_DISK * STD_SECTORS_PER_TRACK * STD_BYTES_PER_SECTOR
const STD_DISK_BYTES_OLD = STD_TRACKS_PER_DISK * STD_SECTORS_PER_TRACK_OLD * STD_BYTES_PER_SECTOR
const TAGGED_BYTES_PER_SECTOR = 524

const TRACK_NIBBLE_LENGTH = 0x1A00
const DISK_NIBBLE_LENGTH = TRACK_NIBBLE_LENGTH * STD_TRACKS_PER_DISK

// 3.5 inch tracks hold up to 12 tagged sectors, comfortably inside 19 blocks.
const TRACK_35_LENGTH = 19 * 512

const STD_VOLUME = 254

// DiskKind describes the physical geometry of a family of disks.
type DiskKind struct {
	Name             string
	Package          string
	Cylinders        int
	Heads            int
	MotorStepsPerCyl int
	// nominal sectors per track, zero when the count varies by zone
	SectorsPerTrack int
	SectorSize      int
	TrackBytes      int
}

var (
	A2DOS32 = DiskKind{
		Name:             "5.25in-apple-13",
		Package:          "5.25",
		Cylinders:        STD_TRACKS_PER_DISK,
		Heads:            1,
		MotorStepsPerCyl: 4,
		SectorsPerTrack:  STD_SECTORS_PER_TRACK_OLD,
		SectorSize:       STD_BYTES_PER_SECTOR,
		TrackBytes:       TRACK_NIBBLE_LENGTH,
	}
	A2DOS33 = DiskKind{
		Name:             "5.25in-apple-16",
		Package:          "5.25",
		Cylinders:        STD_TRACKS_PER_DISK,
		Heads:            1,
		MotorStepsPerCyl: 4,
		SectorsPerTrack:  STD_SECTORS_PER_TRACK,
		SectorSize:       STD_BYTES_PER_SECTOR,
		TrackBytes:       TRACK_NIBBLE_LENGTH,
	}
	A2400K = DiskKind{
		Name:             "3.5in-apple-400",
		Package:          "3.5",
		Cylinders:        80,
		Heads:            1,
		MotorStepsPerCyl: 1,
		SectorSize:       TAGGED_BYTES_PER_SECTOR,
		TrackBytes:       TRACK_35_LENGTH,
	}
	A2800K = DiskKind{
		Name:             "3.5in-apple-800",
		Package:          "3.5",
		Cylinders:        80,
		Heads:            2,
		MotorStepsPerCyl: 1,
		SectorSize:       TAGGED_BYTES_PER_SECTOR,
		TrackBytes:       TRACK_35_LENGTH,
	}
)

var kinds = []DiskKind{A2DOS32, A2DOS33, A2400K, A2800K}

// Kinds lists the known disk kinds.
func Kinds() []DiskKind {
	return append([]DiskKind(nil), kinds...)
}

func ParseKind(name string) (DiskKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range kinds {
		if k.Name == name {
			return k, nil
		}
	}
	switch name {
	case "dos32", "13":
		return A2DOS32, nil
	case "dos33", "16":
		return A2DOS33, nil
	case "400k":
		return A2400K, nil
	case "800k":
		return A2800K, nil
	}
	return DiskKind{}, fmt.Errorf("%w: %q", ErrUnknownDiskKind, name)
}

func (k DiskKind) String() string {
	return k.Name
}

func (k DiskKind) TrackCount() int {
	return k.Cylinders * k.Heads
}

func (k DiskKind) Is525() bool {
	return k.Package == "5.25"
}

func (k DiskKind) outOfRange(tkey TrackKey) error {
	return fmt.Errorf("%w: %s on %s", ErrTrackCountMismatch, tkey, k.Name)
}

// MotorHead converts any track key into a motor position and head.
func (k DiskKind) MotorHead(tkey TrackKey) (motor, head int, err error) {
	steps := max(k.MotorStepsPerCyl, 1)
	switch tkey.Type {
	case KeyTrack:
		if tkey.Index < 0 || tkey.Index >= k.TrackCount() {
			return 0, 0, k.outOfRange(tkey)
		}
		return (tkey.Index / k.Heads) * steps, tkey.Index % k.Heads, nil
	case KeyCH:
		if tkey.Cyl < 0 || tkey.Cyl >= k.Cylinders || tkey.Head < 0 || tkey.Head >= k.Heads {
			return 0, 0, k.outOfRange(tkey)
		}
		return tkey.Cyl * steps, tkey.Head, nil
	case KeyMotor:
		if tkey.Motor < 0 || tkey.Motor >= k.Cylinders*steps || tkey.Head < 0 || tkey.Head >= k.Heads {
			return 0, 0, k.outOfRange(tkey)
		}
		return tkey.Motor, tkey.Head, nil
	}
	return 0, 0, k.outOfRange(tkey)
}

// CylHead converts a track key into a cylinder and head. Motor positions
// between cylinders are refused.
func (k DiskKind) CylHead(tkey TrackKey) (cyl, head int, err error) {
	motor, head, err := k.MotorHead(tkey)
	if err != nil {
		return 0, 0, err
	}
	steps := max(k.MotorStepsPerCyl, 1)
	if motor%steps != 0 {
		return 0, 0, fmt.Errorf("%w: %s is between cylinders", ErrTrackCountMismatch, tkey)
	}
	return motor / steps, head, nil
}

// Track converts a track key into a flat index.
func (k DiskKind) Track(tkey TrackKey) (int, error) {
	cyl, head, err := k.CylHead(tkey)
	if err != nil {
		return 0, err
	}
	return cyl*k.Heads + head, nil
}

// SectorKey builds the standard address values for the track under the head.
// Motor positions are rounded to the nearest cylinder.
func (k DiskKind) SectorKey(vol byte, motor, head int) SectorKey {
	steps := max(k.MotorStepsPerCyl, 1)
	cyl := (motor + steps/2) / steps
	if k.Is525() {
		return A2525(vol, byte(cyl))
	}
	return A235(byte(cyl), byte(head))
}
