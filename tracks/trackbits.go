package tracks

import (
	"fmt"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/flux"
)

// TrackBits is a single track that can be read and written by sector.
type TrackBits interface {
	ReadSector(skey disk.SectorKey, sec byte) ([]byte, error)
	WriteSector(skey disk.SectorKey, sec byte, dat []byte) error
	Reset()
	BitCount() int
	// ToBuffer serializes the track into at least bufLen bytes and reports
	// the bit count (or flux byte count) to store with it.
	ToBuffer(bufLen int) ([]byte, int)
}

type gcrTrack struct {
	engine *Engine
	cells  *flux.FluxCells
	zone   *ZoneFormat
}

func (t *gcrTrack) ReadSector(skey disk.SectorKey, sec byte) ([]byte, error) {
	return t.engine.ReadSector(t.cells, skey, sec, t.zone)
}

func (t *gcrTrack) WriteSector(skey disk.SectorKey, sec byte, dat []byte) error {
	return t.engine.WriteSector(t.cells, skey, sec, t.zone, dat)
}

func (t *gcrTrack) Reset() {
	t.cells.Reset()
}

func (t *gcrTrack) BitCount() int {
	return t.cells.BitCount()
}

func (t *gcrTrack) ToBuffer(bufLen int) ([]byte, int) {
	return t.cells.ToOutputBuffer(bufLen, t.engine.Pad())
}

// Track525 is a 5.25 inch GCR track.
type Track525 struct {
	gcrTrack
}

func NewTrack525(cells *flux.FluxCells, zone *ZoneFormat, nibFilter bool) (*Track525, error) {
	if zone.SpeedKbps >= 500 {
		return nil, fmt.Errorf("%w: %d kbps zone on a 5.25 inch track", disk.ErrMetadataMismatch, zone.SpeedKbps)
	}
	return &Track525{gcrTrack{engine: NewEngine(nibFilter), cells: cells, zone: zone}}, nil
}

// Track35 is a 3.5 inch GCR track. Its bit streams are always whole
// bytes with zero padding.
type Track35 struct {
	gcrTrack
}

func NewTrack35(cells *flux.FluxCells, zone *ZoneFormat) (*Track35, error) {
	if zone.SpeedKbps < 500 {
		return nil, fmt.Errorf("%w: %d kbps zone on a 3.5 inch track", disk.ErrMetadataMismatch, zone.SpeedKbps)
	}
	return &Track35{gcrTrack{engine: NewEngine(false), cells: cells, zone: zone}}, nil
}

func (t *Track35) ToBuffer(bufLen int) ([]byte, int) {
	return t.cells.ToOutputBuffer(bufLen, 0)
}

// NewTrackBits picks the track type from the zone's speed.
func NewTrackBits(cells *flux.FluxCells, zone *ZoneFormat, nibFilter bool) (TrackBits, error) {
	if zone.SpeedKbps >= 500 {
		return NewTrack35(cells, zone)
	}
	return NewTrack525(cells, zone, nibFilter)
}
