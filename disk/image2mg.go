package disk

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

/*
	2MG container: a 64 byte header in front of a DOS, ProDOS or NIB image.
*/

const PREAMBLE_2MG_SIZE = 0x40

var MAGIC_2MG = []byte{byte('2'), byte('I'), byte('M'), byte('G')}

const CREATOR_2MG = "TRK8"

type Format2MG uint32

const (
	F2MG_DOS    Format2MG = 0
	F2MG_PRODOS Format2MG = 1
	F2MG_NIB    Format2MG = 2
)

type Header2MG struct {
	Data [PREAMBLE_2MG_SIZE]byte
}

func (h *Header2MG) SetData(data []byte) {
	copy(h.Data[:], data)
}

func (h *Header2MG) u16(off int) int {
	return int(binary.LittleEndian.Uint16(h.Data[off:]))
}

func (h *Header2MG) u32(off int) int {
	return int(binary.LittleEndian.Uint32(h.Data[off:]))
}

func (h *Header2MG) GetID() string {
	return string(h.Data[0x00:0x04])
}

func (h *Header2MG) GetCreatorID() string {
	return string(h.Data[0x04:0x08])
}

func (h *Header2MG) GetHeaderSize() int {
	return h.u16(0x08)
}

func (h *Header2MG) GetVersion() int {
	return h.u16(0x0A)
}

func (h *Header2MG) GetImageFormat() Format2MG {
	return Format2MG(h.u32(0x0C))
}

func (h *Header2MG) GetDOSFlags() int {
	return h.u32(0x10)
}

// GetVolume gives the DOS volume number, when the flags carry one.
func (h *Header2MG) GetVolume() (byte, bool) {
	flags := h.GetDOSFlags()
	if flags&0x100 == 0 {
		return STD_VOLUME, false
	}
	return byte(flags), true
}

func (h *Header2MG) GetProDOSBlocks() int {
	return h.u32(0x14)
}

func (h *Header2MG) GetDiskDataStart() int {
	return h.u32(0x18)
}

func (h *Header2MG) GetDiskDataLength() int {
	return h.u32(0x1C)
}

// Parse2MG splits a 2MG file into its header and disk data.
func Parse2MG(data []byte) (*Header2MG, []byte, error) {
	if len(data) < PREAMBLE_2MG_SIZE || !bytes.Equal(data[:4], MAGIC_2MG) {
		return nil, nil, fmt.Errorf("%w: no 2MG magic", ErrImageTypeMismatch)
	}
	h := &Header2MG{}
	h.SetData(data[:PREAMBLE_2MG_SIZE])

	start := h.GetDiskDataStart()
	size := h.GetDiskDataLength()
	if start < PREAMBLE_2MG_SIZE || start > len(data) {
		return nil, nil, fmt.Errorf("%w: 2MG data starts at %d", ErrImageSizeMismatch, start)
	}
	if size == 0 || start+size > len(data) {
		size = len(data) - start
	}

	switch h.GetImageFormat() {
	case F2MG_DOS, F2MG_PRODOS, F2MG_NIB:
	default:
		return nil, nil, fmt.Errorf("%w: 2MG image format %d", ErrImageTypeMismatch, h.GetImageFormat())
	}
	return h, data[start : start+size], nil
}

// Build2MG wraps disk data in a 2MG header.
func Build2MG(format Format2MG, vol byte, payload []byte) []byte {
	h := &Header2MG{}
	copy(h.Data[0x00:], MAGIC_2MG)
	copy(h.Data[0x04:], CREATOR_2MG)
	binary.LittleEndian.PutUint16(h.Data[0x08:], PREAMBLE_2MG_SIZE)
	binary.LittleEndian.PutUint16(h.Data[0x0A:], 1)
	binary.LittleEndian.PutUint32(h.Data[0x0C:], uint32(format))
	if format == F2MG_DOS {
		binary.LittleEndian.PutUint32(h.Data[0x10:], 0x100|uint32(vol))
	}
	if format == F2MG_PRODOS {
		binary.LittleEndian.PutUint32(h.Data[0x14:], uint32(len(payload)/512))
	}
	binary.LittleEndian.PutUint32(h.Data[0x18:], PREAMBLE_2MG_SIZE)
	binary.LittleEndian.PutUint32(h.Data[0x1C:], uint32(len(payload)))
	return append(h.Data[:], payload...)
}
