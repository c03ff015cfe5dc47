package tracks

import (
	"fmt"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/flux"
	"github.com/paleotronic/trackm8/loggy"
	"github.com/paleotronic/trackm8/nibble"
)

const (
	maxHeaders       = 32
	epilogSearch     = 10
	dataPrologSearch = 40
	maxDataNibbles   = 2048
)

// Engine runs the bit level search, read, write and format operations on a
// single track. It holds no track state of its own.
type Engine struct {
	nibFilter bool
	log       *loggy.Logger
}

// NewEngine makes an engine. With nibFilter set, output is shaped for
// images that keep only whole disk bytes (NIB).
func NewEngine(nibFilter bool) *Engine {
	return &Engine{nibFilter: nibFilter, log: loggy.Get(loggy.Tracks)}
}

// Pad is the byte used to fill track buffers past the end of the data.
func (e *Engine) Pad() byte {
	if e.nibFilter {
		return 0xff
	}
	return 0
}

func latchByte(cells *flux.FluxCells) byte {
	b, _ := cells.ReadLatch(1)
	return b[0]
}

func revTicks(cells *flux.FluxCells) uint64 {
	return uint64(cells.BitCount()) << cells.Resolution().BShift
}

// findMarker latches up to limit bytes looking for m, leaving the cursor just
// past it. A mismatch may restart the match on the same byte. The search
// never runs past one revolution.
func findMarker(cells *flux.FluxCells, m Marker, limit int) bool {
	if m.Len() == 0 {
		return true
	}
	start := cells.Time()
	rev := revTicks(cells)
	matched := 0
	for i := 0; i < limit && cells.TicksSince(start) <= rev; i++ {
		b := latchByte(cells)
		if !m.Match(matched, b) {
			matched = 0
			if !m.Match(0, b) {
				continue
			}
		}
		matched++
		if matched == m.Len() {
			return true
		}
	}
	return false
}

// matchHere checks for m at the cursor without scanning.
func matchHere(cells *flux.FluxCells, m Marker) bool {
	for i := 0; i < m.Len(); i++ {
		if !m.Match(i, latchByte(cells)) {
			return false
		}
	}
	return true
}

func writeBytes(cells *flux.FluxCells, b []byte) {
	cells.Write(b, 8*len(b))
}

func writeGap(cells *flux.FluxCells, g Bits) {
	cells.Write(g.Bytes(), g.Len())
}

// decodeAddr reads the address field that follows an address prolog.
func decodeAddr(cells *flux.FluxCells, zone *ZoneFormat) ([]byte, error) {
	w := zone.AddrCode.Width()
	nibs, _ := cells.ReadLatch(zone.AddrNibbleCount())
	out := make([]byte, len(zone.AddrFmtExpr))
	for i := range out {
		v, err := nibble.DecodeByte(zone.AddrCode, nibs[i*w:(i+1)*w])
		if err != nil {
			return nil, fmt.Errorf("address byte %d (% x): %w", i, nibs[i*w:(i+1)*w], err)
		}
		out[i] = v
	}
	return out, nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// FindSector scans for the address field of sector sec, leaving the cursor
// after its epilog and returning the address as read. The search gives up
// after a revolution and a quarter or 32 headers, so a header cut by the
// starting point is still seen whole. If no well formed header turns up at
// all the track is reported as bad.
func (e *Engine) FindSector(cells *flux.FluxCells, skey disk.SectorKey, sec byte, zone *ZoneFormat) ([]byte, error) {
	rev := revTicks(cells)
	budget := rev + rev/4
	start := cells.Time()
	wellFormed := false
	prolog := zone.Markers[AddrProlog]
	for headers := 0; headers < maxHeaders && cells.TicksSince(start) < budget; headers++ {
		if !findMarker(cells, prolog, cells.BitCount()/8) {
			break
		}
		addr, err := decodeAddr(cells, zone)
		if err != nil {
			e.log.Tracef("skipping header: %v", err)
			continue
		}
		if !findMarker(cells, zone.Markers[AddrEpilog], epilogSearch) {
			e.log.Tracef("address % x has no epilog", addr)
			continue
		}
		wellFormed = true
		diff, err := zone.DiffAddress(skey, sec, addr)
		if err != nil {
			return nil, err
		}
		if allZero(diff) {
			return addr, nil
		}
		e.log.Tracef("address % x differs by % x", addr, diff)
	}
	if !wellFormed {
		e.log.Debugf("no address fields while seeking sector %d", sec)
		return nil, fmt.Errorf("%w: no address fields found", nibble.ErrBadTrack)
	}
	e.log.Debugf("sector %d not found with key %s", sec, skey)
	return nil, fmt.Errorf("%w: sector %d key %s", nibble.ErrSectorNotFound, sec, skey)
}

// ReadSector seeks sector sec and decodes its data field.
func (e *Engine) ReadSector(cells *flux.FluxCells, skey disk.SectorKey, sec byte, zone *ZoneFormat) ([]byte, error) {
	if _, err := e.FindSector(cells, skey, sec, zone); err != nil {
		return nil, err
	}
	return e.decodeData(cells, skey, sec, zone)
}

func (e *Engine) decodeData(cells *flux.FluxCells, skey disk.SectorKey, sec byte, zone *ZoneFormat) ([]byte, error) {
	capacity := zone.Capacity(int(sec))
	if !findMarker(cells, zone.Markers[DataProlog], dataPrologSearch) {
		e.log.Warnf("sector %d has no data field, returning zeros", sec)
		return make([]byte, capacity), nil
	}
	cells.ReadLatch(zone.dataHeaderLen() * zone.DataCode.Width())
	n, err := nibble.NibbleCount(zone.DataCode, capacity)
	if err != nil {
		return nil, err
	}
	nibs, _ := cells.ReadLatch(n)
	dat, err := nibble.DecodeSector(zone.DataCode, nibs, [3]byte{}, zone.VerifyChecksum, zone.Swaps)
	if err != nil {
		e.log.Debugf("sector %d data: %v", sec, err)
		return nil, fmt.Errorf("sector %d: %w", sec, err)
	}
	if !matchHere(cells, zone.Markers[DataEpilog]) {
		e.log.Warnf("sector %d data epilog not found", sec)
	}
	return dat, nil
}

// quantize pads with zeros or truncates dat to n bytes.
func quantize(dat []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, dat)
	return out
}

// WriteSector seeks sector sec and rewrites its data field. The payload is
// padded or truncated to the sector capacity.
func (e *Engine) WriteSector(cells *flux.FluxCells, skey disk.SectorKey, sec byte, zone *ZoneFormat, dat []byte) error {
	capacity := zone.Capacity(int(sec))
	if len(dat) != capacity {
		e.log.Debugf("sector %d: %d bytes quantized to %d", sec, len(dat), capacity)
	}
	payload := quantize(dat, capacity)
	if _, err := e.FindSector(cells, skey, sec, zone); err != nil {
		return err
	}
	return e.encodeData(cells, skey, sec, zone, payload)
}

// encodeData writes the gap after the address, then the whole data field.
func (e *Engine) encodeData(cells *flux.FluxCells, skey disk.SectorKey, sec byte, zone *ZoneFormat, dat []byte) error {
	hdr, err := zone.DataHeader(skey, sec)
	if err != nil {
		return err
	}
	nibs, err := nibble.EncodeSector(zone.DataCode, dat, [3]byte{}, zone.Swaps)
	if err != nil {
		return err
	}
	writeGap(cells, zone.Gaps[GapAddrEnd])
	writeBytes(cells, zone.Markers[DataProlog].Key)
	for _, b := range hdr {
		enc, err := nibble.EncodeByte(zone.DataCode, b)
		if err != nil {
			return err
		}
		writeBytes(cells, enc)
	}
	writeBytes(cells, nibs)
	writeBytes(cells, zone.Markers[DataEpilog].Key)
	return nil
}

// FormatTrack lays down a fresh track in a buffer of bufLen bytes. Sectors
// follow order, else the zone's physical order, else ascending ids.
func (e *Engine) FormatTrack(skey disk.SectorKey, bufLen int, zone *ZoneFormat, order []int) (*flux.FluxCells, error) {
	if err := zone.Validate(); err != nil {
		return nil, err
	}
	bitCount, err := zone.TrackBitCount()
	if err != nil {
		return nil, err
	}
	if bitCount > bufLen*8 {
		return nil, fmt.Errorf("%w: %d bits do not fit %d bytes", nibble.ErrBadTrack, bitCount, bufLen)
	}
	if len(order) == 0 {
		order = zone.PhysicalOrder
	}
	if len(order) == 0 {
		order = disk.Linear(zone.SectorCount())
	}
	cells, err := flux.New(make([]byte, bufLen), bitCount, zone.Resolution())
	if err != nil {
		return nil, err
	}
	writeGap(cells, zone.Gaps[GapTrackStart])
	for _, id := range order {
		sec := byte(id)
		addr, err := zone.FieldBytesForFormatting(skey, sec)
		if err != nil {
			return nil, err
		}
		writeBytes(cells, zone.Markers[AddrProlog].Key)
		for _, b := range addr {
			enc, err := nibble.EncodeByte(zone.AddrCode, b)
			if err != nil {
				return nil, err
			}
			writeBytes(cells, enc)
		}
		writeBytes(cells, zone.Markers[AddrEpilog].Key)
		if err := e.encodeData(cells, skey, sec, zone, make([]byte, zone.Capacity(id))); err != nil {
			return nil, err
		}
		writeGap(cells, zone.Gaps[GapDataEnd])
	}
	e.log.Debugf("formatted %d sectors in %d bits", len(order), bitCount)
	cells.Reset()
	return cells, nil
}

// sectorCapacity measures the data field following an address by counting
// disk bytes up to the data epilog. A 5&3 track with no data field is taken
// to be 256 bytes.
func (e *Engine) sectorCapacity(cells *flux.FluxCells, zone *ZoneFormat) (int, error) {
	cells.ReadLatch(3)
	if !findMarker(cells, zone.Markers[DataProlog], dataPrologSearch) {
		if zone.DataCode == nibble.Code53 {
			return 256, nil
		}
		return 0, fmt.Errorf("%w: data prolog", nibble.ErrBitPatternNotFound)
	}
	hdr := zone.dataHeaderLen() * zone.DataCode.Width()
	for n := 0; n < maxDataNibbles; n++ {
		save := cells.BitPtr()
		if matchHere(cells, zone.Markers[DataEpilog]) {
			return nibble.CapacityFromCount(zone.DataCode, max(n-hdr, 0))
		}
		cells.SetBitPtr(save)
		cells.ReadLatch(1)
	}
	return 0, fmt.Errorf("%w: data epilog", nibble.ErrBitPatternNotFound)
}

// ChssMap lists the sectors in track order: cylinder, head and sector as
// recorded in each address, with the measured capacity. The scan starts
// at the index and stops when an address repeats.
func (e *Engine) ChssMap(cells *flux.FluxCells, zone *ZoneFormat) ([]SectorInfo, error) {
	cells.Reset()
	seen := map[int]bool{}
	var out []SectorInfo
	for try := 0; try < maxHeaders; try++ {
		if !findMarker(cells, zone.Markers[AddrProlog], cells.BitCount()/8) {
			break
		}
		ptr := cells.BitPtr()
		if seen[ptr] {
			break
		}
		seen[ptr] = true
		addr, err := decodeAddr(cells, zone)
		if err != nil {
			e.log.Tracef("skipping header: %v", err)
			continue
		}
		chs, err := zone.CHS(addr)
		if err != nil {
			return nil, err
		}
		capacity, err := e.sectorCapacity(cells, zone)
		if err != nil {
			e.log.Warnf("sector %d: %v", chs[2], err)
			continue
		}
		out = append(out, SectorInfo{
			Cyl:      int(chs[0]),
			Head:     int(chs[1]),
			Sec:      int(chs[2]),
			Capacity: capacity,
			Addr:     addr,
		})
	}
	return out, nil
}

// ToNibbles latches one revolution of disk bytes, starting from the first
// address prolog when there is one. A positive bufLen pads or truncates the
// result.
func (e *Engine) ToNibbles(cells *flux.FluxCells, zone *ZoneFormat, bufLen int) []byte {
	cells.Reset()
	prolog := zone.Markers[AddrProlog]
	if findMarker(cells, prolog, cells.BitCount()/8) {
		cells.RevBits(8 * prolog.Len())
	} else {
		cells.Reset()
	}
	var out []byte
	for consumed := 0; consumed < cells.BitCount(); {
		b, n := cells.ReadLatch(1)
		out = append(out, b[0])
		consumed += n
	}
	if bufLen <= 0 {
		return out
	}
	buf := make([]byte, bufLen)
	for i := range buf {
		buf[i] = e.Pad()
	}
	copy(buf, out)
	return buf
}
