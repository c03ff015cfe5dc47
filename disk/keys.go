package disk

import (
	"fmt"
	"strconv"
	"strings"
)

type TrackKeyType int

const (
	KeyTrack TrackKeyType = iota
	KeyCH
	KeyMotor
)

// TrackKey names a physical track one of three ways: a flat index
// (usually cyl*heads+head), a cylinder and head, or a stepper motor position
// and head. Motor positions are needed for quarter tracks.
type TrackKey struct {
	Type  TrackKeyType
	Index int
	Cyl   int
	Motor int
	Head  int
}

func Track(index int) TrackKey {
	return TrackKey{Type: KeyTrack, Index: index}
}

func CH(cyl, head int) TrackKey {
	return TrackKey{Type: KeyCH, Cyl: cyl, Head: head}
}

func Motor(motor, head int) TrackKey {
	return TrackKey{Type: KeyMotor, Motor: motor, Head: head}
}

func (k TrackKey) String() string {
	switch k.Type {
	case KeyCH:
		return fmt.Sprintf("cyl %d head %d", k.Cyl, k.Head)
	case KeyMotor:
		return fmt.Sprintf("motor-pos %d head %d", k.Motor, k.Head)
	}
	return fmt.Sprintf("track %d", k.Index)
}

// Jump moves the key by whole cylinders. A newHead below zero keeps the
// current head. Flat track indices cannot jump.
func (k TrackKey) Jump(cyls int, newHead int, stepsPerCyl int) (TrackKey, error) {
	switch k.Type {
	case KeyCH:
		k.Cyl += cyls
		if k.Cyl < 0 {
			return k, fmt.Errorf("%w: jump to cylinder %d", ErrTrackCountMismatch, k.Cyl)
		}
	case KeyMotor:
		k.Motor += cyls * stepsPerCyl
		if k.Motor < 0 {
			return k, fmt.Errorf("%w: jump to motor position %d", ErrTrackCountMismatch, k.Motor)
		}
	default:
		return k, fmt.Errorf("%w: cannot jump from %s", ErrSectorAccess, k)
	}
	if newHead >= 0 {
		k.Head = newHead
	}
	return k, nil
}

// ParseTrackKey reads a track key as typed by a user: "17" is a flat
// track, "17/1" a cylinder and head, and "m68" or "m68/1" a motor position.
func ParseTrackKey(s string) (TrackKey, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	motor := strings.HasPrefix(s, "m")
	s = strings.TrimPrefix(s, "m")
	parts := strings.Split(s, "/")
	if len(parts) > 2 {
		return TrackKey{}, fmt.Errorf("%w: bad track key %q", ErrSectorAccess, s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return TrackKey{}, fmt.Errorf("%w: bad track key %q", ErrSectorAccess, s)
		}
		nums[i] = v
	}
	head := 0
	if len(nums) == 2 {
		head = nums[1]
	}
	switch {
	case motor:
		return Motor(nums[0], head), nil
	case len(nums) == 2:
		return CH(nums[0], head), nil
	}
	return Track(nums[0]), nil
}

// SectorKey holds the standard values that go into a sector address. The
// sector number is supplied per call.
type SectorKey struct {
	Vol  byte
	Cyl  byte
	Head byte
	Aux  byte
}

func A2525(vol, trk byte) SectorKey {
	return SectorKey{Vol: vol, Cyl: trk}
}

func A235(cyl, head byte) SectorKey {
	return SectorKey{Cyl: cyl, Head: head}
}

func (s SectorKey) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", s.Vol, s.Cyl, s.Head, s.Aux)
}

// Vars is the variable environment for formatting expressions.
func (s SectorKey) Vars(sec byte) map[string]int {
	return map[string]int{
		"vol":  int(s.Vol),
		"cyl":  int(s.Cyl),
		"head": int(s.Head),
		"sec":  int(sec),
		"aux":  int(s.Aux),
	}
}

// SeekVars adds a0, a1, ... bound to the address bytes actually read.
func (s SectorKey) SeekVars(sec byte, actual []byte) map[string]int {
	vars := s.Vars(sec)
	for i, b := range actual {
		vars["a"+strconv.Itoa(i)] = int(b)
	}
	return vars
}

// AddrVars binds only the observed address bytes.
func AddrVars(actual []byte) map[string]int {
	vars := make(map[string]int, len(actual))
	for i, b := range actual {
		vars["a"+strconv.Itoa(i)] = int(b)
	}
	return vars
}
