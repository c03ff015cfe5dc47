package tracks

import (
	"fmt"
	"sync"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/flux"
	"github.com/paleotronic/trackm8/loggy"
)

// TrackStore holds the raw buffers of a disk image, one per track index.
type TrackStore interface {
	// TrackBuf returns the buffer and its bit count (or flux byte count).
	TrackBuf(track int) ([]byte, int, error)
	SetTrackBuf(track int, buf []byte, bitCount int) error
}

// MemoryTracks is a TrackStore of fixed size buffers.
type MemoryTracks struct {
	bufLen int
	bufs   [][]byte
	counts []int
}

// NewMemoryTracks makes blank tracks. A blank track reads as zero bits.
func NewMemoryTracks(tracks, bufLen int) *MemoryTracks {
	m := &MemoryTracks{bufLen: bufLen}
	for i := 0; i < tracks; i++ {
		m.bufs = append(m.bufs, make([]byte, bufLen))
		m.counts = append(m.counts, bufLen*8)
	}
	return m
}

// MemoryTracksFromBytes splits an image of back to back track buffers, as
// found in a NIB file. Every bit of each buffer is taken as track data.
func MemoryTracksFromBytes(data []byte, bufLen int) (*MemoryTracks, error) {
	if bufLen <= 0 || len(data)%bufLen != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d byte tracks",
			disk.ErrImageSizeMismatch, len(data), bufLen)
	}
	m := &MemoryTracks{bufLen: bufLen}
	for off := 0; off < len(data); off += bufLen {
		m.bufs = append(m.bufs, append([]byte(nil), data[off:off+bufLen]...))
		m.counts = append(m.counts, bufLen*8)
	}
	return m, nil
}

func (m *MemoryTracks) TrackBuf(track int) ([]byte, int, error) {
	if track < 0 || track >= len(m.bufs) {
		return nil, 0, fmt.Errorf("%w: track %d of %d", disk.ErrTrackCountMismatch, track, len(m.bufs))
	}
	return m.bufs[track], m.counts[track], nil
}

func (m *MemoryTracks) SetTrackBuf(track int, buf []byte, bitCount int) error {
	if track < 0 || track >= len(m.bufs) {
		return fmt.Errorf("%w: track %d of %d", disk.ErrTrackCountMismatch, track, len(m.bufs))
	}
	if len(buf) > m.bufLen {
		return fmt.Errorf("%w: %d bytes for a %d byte track", disk.ErrImageSizeMismatch, len(buf), m.bufLen)
	}
	b := make([]byte, m.bufLen)
	copy(b, buf)
	m.bufs[track] = b
	m.counts[track] = bitCount
	return nil
}

func (m *MemoryTracks) TrackCount() int {
	return len(m.bufs)
}

// Bytes concatenates the track buffers.
func (m *MemoryTracks) Bytes() []byte {
	out := make([]byte, 0, len(m.bufs)*m.bufLen)
	for _, b := range m.bufs {
		out = append(out, b...)
	}
	return out
}

// Drive reads and writes sectors of a whole disk image. Only one track is
// decoded at a time; moving to another track writes the old one back and
// keeps the angle of the head.
type Drive struct {
	mu     sync.Mutex
	Volume byte

	kind      disk.DiskKind
	format    *DiskFormat
	store     TrackStore
	nibFilter bool
	engine    *Engine
	log       *loggy.Logger

	current  *flux.FluxCells
	track    TrackBits
	zone     *ZoneFormat
	curTrack int
	dirty    bool
}

func NewDrive(kind disk.DiskKind, format *DiskFormat, store TrackStore, nibFilter bool) (*Drive, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Drive{
		Volume:    disk.STD_VOLUME,
		kind:      kind,
		format:    format,
		store:     store,
		nibFilter: nibFilter,
		engine:    NewEngine(nibFilter),
		log:       loggy.Get(loggy.Tracks),
		curTrack:  -1,
	}, nil
}

func (d *Drive) Kind() disk.DiskKind {
	return d.kind
}

func (d *Drive) Format() *DiskFormat {
	return d.format
}

func (d *Drive) writeBack() error {
	if d.current == nil || !d.dirty {
		return nil
	}
	buf, count := d.track.ToBuffer(d.kind.TrackBytes)
	if err := d.store.SetTrackBuf(d.curTrack, buf, count); err != nil {
		return err
	}
	d.log.Tracef("wrote back track %d, %d bits", d.curTrack, count)
	d.dirty = false
	return nil
}

// install makes cells the current track, carrying over the head angle.
func (d *Drive) install(track int, cells *flux.FluxCells, zone *ZoneFormat) error {
	tb, err := NewTrackBits(cells, zone, d.nibFilter)
	if err != nil {
		return err
	}
	if d.current != nil {
		cells.SyncToOtherTrack(d.current)
	}
	d.current = cells
	d.track = tb
	d.zone = zone
	d.curTrack = track
	return nil
}

type position struct {
	motor, head, track int
	zone               *ZoneFormat
}

func (d *Drive) locate(tkey disk.TrackKey) (position, error) {
	motor, head, err := d.kind.MotorHead(tkey)
	if err != nil {
		return position{}, err
	}
	track, err := d.kind.Track(tkey)
	if err != nil {
		return position{}, err
	}
	zone, err := d.format.ZoneFor(motor, head)
	if err != nil {
		return position{}, err
	}
	return position{motor: motor, head: head, track: track, zone: zone}, nil
}

// goTrack makes the track under tkey current.
func (d *Drive) goTrack(tkey disk.TrackKey) (position, error) {
	pos, err := d.locate(tkey)
	if err != nil {
		return pos, err
	}
	if d.current != nil && pos.track == d.curTrack {
		return pos, nil
	}
	if err := d.writeBack(); err != nil {
		return pos, err
	}
	buf, count, err := d.store.TrackBuf(pos.track)
	if err != nil {
		return pos, err
	}
	cells, err := flux.New(buf, count, pos.zone.Resolution())
	if err != nil {
		return pos, fmt.Errorf("track %d: %w", pos.track, err)
	}
	d.log.Tracef("switched to track %d (%s)", pos.track, tkey)
	return pos, d.install(pos.track, cells, pos.zone)
}

func (d *Drive) sectorKey(pos position) disk.SectorKey {
	return d.kind.SectorKey(d.Volume, pos.motor, pos.head)
}

func (d *Drive) ReadSector(tkey disk.TrackKey, sec byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos, err := d.goTrack(tkey)
	if err != nil {
		return nil, err
	}
	return d.track.ReadSector(d.sectorKey(pos), sec)
}

func (d *Drive) WriteSector(tkey disk.TrackKey, sec byte, dat []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos, err := d.goTrack(tkey)
	if err != nil {
		return err
	}
	if err := d.track.WriteSector(d.sectorKey(pos), sec, dat); err != nil {
		return err
	}
	d.dirty = true
	return nil
}

// FormatTrack replaces the track under tkey with a freshly formatted one.
func (d *Drive) FormatTrack(tkey disk.TrackKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.formatTrack(tkey)
}

func (d *Drive) formatTrack(tkey disk.TrackKey) error {
	pos, err := d.locate(tkey)
	if err != nil {
		return err
	}
	if pos.track != d.curTrack {
		if err := d.writeBack(); err != nil {
			return err
		}
	}
	cells, err := d.engine.FormatTrack(d.sectorKey(pos), d.kind.TrackBytes, pos.zone, nil)
	if err != nil {
		return err
	}
	if err := d.install(pos.track, cells, pos.zone); err != nil {
		return err
	}
	d.dirty = true
	return nil
}

// FormatDisk formats every whole track the format covers and flushes.
func (d *Drive) FormatDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	steps := max(d.kind.MotorStepsPerCyl, 1)
	for _, mh := range d.format.MotorAndHeads() {
		if mh.Motor%steps != 0 || mh.Motor >= d.kind.Cylinders*steps || mh.Head >= d.kind.Heads {
			continue
		}
		if err := d.formatTrack(disk.Motor(mh.Motor, mh.Head)); err != nil {
			return fmt.Errorf("formatting motor-pos %d head %d: %w", mh.Motor, mh.Head, err)
		}
	}
	return d.writeBack()
}

// TrackSolution maps the sectors found on the track under tkey.
func (d *Drive) TrackSolution(tkey disk.TrackKey) (*TrackSolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos, err := d.goTrack(tkey)
	if err != nil {
		return nil, err
	}
	sectors, err := d.engine.ChssMap(d.current, pos.zone)
	if err != nil {
		return nil, err
	}
	return pos.zone.TrackSolution(pos.motor, pos.head, d.kind.MotorStepsPerCyl, sectors), nil
}

// TrackNibbles returns one revolution of disk bytes from the track under
// tkey, along with the zone that describes it.
func (d *Drive) TrackNibbles(tkey disk.TrackKey) ([]byte, *ZoneFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos, err := d.goTrack(tkey)
	if err != nil {
		return nil, nil, err
	}
	return d.engine.ToNibbles(d.current, pos.zone, 0), pos.zone, nil
}

// Flush writes the current track back to the store if it has changed.
func (d *Drive) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeBack()
}
