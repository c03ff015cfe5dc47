// Package tracks describes track formats and drives the bit level search,
// read, write and format operations over a single track.
package tracks

import (
	"fmt"
	"strings"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/flux"
	"github.com/paleotronic/trackm8/loggy"
	"github.com/paleotronic/trackm8/nibble"
)

// FluxCode is the overall recording scheme of a track.
type FluxCode int

const (
	FluxNone FluxCode = iota
	FluxFM
	FluxGCR
	FluxMFM
)

func (f FluxCode) String() string {
	switch f {
	case FluxFM:
		return "FM"
	case FluxGCR:
		return "GCR"
	case FluxMFM:
		return "MFM"
	}
	return "none"
}

func ParseFluxCode(s string) (FluxCode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FM":
		return FluxFM, nil
	case "MFM":
		return FluxMFM, nil
	case "GCR":
		return FluxGCR, nil
	case "NONE", "":
		return FluxNone, nil
	}
	return FluxNone, fmt.Errorf("%w: unknown flux code %q", disk.ErrMetadataMismatch, s)
}

// Marker is a byte pattern that brackets an address or data field. A byte
// matches when the bits selected by Mask agree.
type Marker struct {
	Key  []byte
	Mask []byte
}

func NewMarker(key, mask []byte) Marker {
	return Marker{Key: key, Mask: mask}
}

func (m Marker) Match(i int, b byte) bool {
	return b&m.Mask[i] == m.Key[i]&m.Mask[i]
}

func (m Marker) Len() int {
	return len(m.Key)
}

// Marker indices.
const (
	AddrProlog = iota
	AddrEpilog
	DataProlog
	DataEpilog
)

// Gap indices.
const (
	GapTrackStart = iota
	GapAddrEnd
	GapDataEnd
)

// ZoneFormat describes the framing of every track in a contiguous range of
// motor positions.
type ZoneFormat struct {
	FluxCode  FluxCode
	AddrCode  nibble.Code
	DataCode  nibble.Code
	SpeedKbps int

	MotorStart int
	MotorEnd   int
	MotorStep  int
	Heads      []int

	// one expression per address byte, written when formatting
	AddrFmtExpr []string
	// one expression per address byte, compared when seeking; a0, a1, ...
	// hold the bytes actually read
	AddrSeekExpr []string
	// bytes that precede the payload in the data field; "dat" stands for
	// the payload and its checksum
	DataExpr []string
	// cylinder, head and sector as they appear in an address, over a0, a1, ...
	CHSExpr []string

	Markers [4]Marker
	Gaps    [3]Bits

	Capacities []int
	Swaps      []nibble.SwapPair

	// When false, seek expressions that mention cyl or head always match.
	VerifyTrack bool
	// When false, seek expressions over the observed bytes always match and
	// data checksums are not enforced.
	VerifyChecksum bool

	// sector ids in the order they are laid around the track when formatting
	PhysicalOrder []int
}

// Resolution picks the bit cell for the zone's data rate.
func (z *ZoneFormat) Resolution() flux.Resolution {
	if z.SpeedKbps >= 500 {
		return flux.Bits35
	}
	return flux.Bits525
}

// Capacity is the payload size for sector index sec. Indices past the end
// of the list wrap around, so a one element list serves every sector.
func (z *ZoneFormat) Capacity(sec int) int {
	if len(z.Capacities) == 0 {
		return 0
	}
	return z.Capacities[sec%len(z.Capacities)]
}

// SectorCount is the number of sectors a formatted track holds.
func (z *ZoneFormat) SectorCount() int {
	return len(z.Capacities)
}

func (z *ZoneFormat) Covers(motor, head int) bool {
	if motor < z.MotorStart || motor >= z.MotorEnd {
		return false
	}
	for _, h := range z.Heads {
		if h == head {
			return true
		}
	}
	return false
}

// FieldBytesForFormatting evaluates the formatting expressions in order.
func (z *ZoneFormat) FieldBytesForFormatting(skey disk.SectorKey, sec byte) ([]byte, error) {
	vars := skey.Vars(sec)
	out := make([]byte, 0, len(z.AddrFmtExpr))
	for _, src := range z.AddrFmtExpr {
		b, err := evalByte(src, vars)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func isTrackVar(v string) bool {
	return v == "cyl" || v == "head"
}

func isObservedVar(v string) bool {
	if len(v) < 2 || v[0] != 'a' {
		return false
	}
	for i := 1; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// FieldBytesForSeeking evaluates the seek expressions with a0, a1, ... bound
// to observed. Expressions switched off by VerifyTrack or VerifyChecksum
// yield the observed byte itself.
func (z *ZoneFormat) FieldBytesForSeeking(skey disk.SectorKey, sec byte, observed []byte) ([]byte, error) {
	if len(observed) != len(z.AddrSeekExpr) {
		return nil, fmt.Errorf("%w: %d address bytes for %d seek expressions",
			disk.ErrSectorAccess, len(observed), len(z.AddrSeekExpr))
	}
	vars := skey.SeekVars(sec, observed)
	out := make([]byte, 0, len(z.AddrSeekExpr))
	for i, src := range z.AddrSeekExpr {
		e, err := compiled(src)
		if err != nil {
			return nil, err
		}
		if (!z.VerifyTrack && e.Uses(isTrackVar)) || (!z.VerifyChecksum && e.Uses(isObservedVar)) {
			out = append(out, observed[i])
			continue
		}
		b, err := evalCompiled(e, vars)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// DiffAddress XORs the observed address with the expected one; all zero
// means the sector was found.
func (z *ZoneFormat) DiffAddress(skey disk.SectorKey, sec byte, observed []byte) ([]byte, error) {
	expected, err := z.FieldBytesForSeeking(skey, sec, observed)
	if err != nil {
		return nil, err
	}
	diff := make([]byte, len(observed))
	for i := range observed {
		diff[i] = observed[i] ^ expected[i]
	}
	return diff, nil
}

// DataHeader evaluates the data expressions up to "dat".
func (z *ZoneFormat) DataHeader(skey disk.SectorKey, sec byte) ([]byte, error) {
	vars := skey.Vars(sec)
	var out []byte
	for _, src := range z.DataExpr {
		if strings.TrimSpace(src) == "dat" {
			return out, nil
		}
		b, err := evalByte(src, vars)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// CHS extracts cylinder, head and sector from an address as read.
func (z *ZoneFormat) CHS(addr []byte) ([3]byte, error) {
	var out [3]byte
	if len(z.CHSExpr) != 3 {
		return out, fmt.Errorf("%w: chs_extract_expr needs 3 elements", disk.ErrMetadataMismatch)
	}
	vars := disk.AddrVars(addr)
	for i, src := range z.CHSExpr {
		b, err := evalByte(src, vars)
		if err != nil {
			return out, err
		}
		out[i] = b
	}
	return out, nil
}

// AddrNibbleCount is the number of disk bytes in an address field.
func (z *ZoneFormat) AddrNibbleCount() int {
	return len(z.AddrFmtExpr) * z.AddrCode.Width()
}

func (z *ZoneFormat) markerNibbleCount() int {
	n := 0
	for _, m := range z.Markers {
		n += m.Len()
	}
	return n
}

// dataHeaderLen counts the data expressions ahead of "dat".
func (z *ZoneFormat) dataHeaderLen() int {
	n := 0
	for _, src := range z.DataExpr {
		if strings.TrimSpace(src) == "dat" {
			break
		}
		n++
	}
	return n
}

// TrackBitCount is the exact length of a track formatted with this zone.
func (z *ZoneFormat) TrackBitCount() (int, error) {
	headerLen := z.dataHeaderLen()
	bits := z.Gaps[GapTrackStart].Len()
	for sec := 0; sec < z.SectorCount(); sec++ {
		dataNibs, err := nibble.NibbleCount(z.DataCode, z.Capacity(sec))
		if err != nil {
			return 0, err
		}
		bits += 8 * (z.markerNibbleCount() + z.AddrNibbleCount() + headerLen*z.DataCode.Width() + dataNibs)
		bits += z.Gaps[GapAddrEnd].Len() + z.Gaps[GapDataEnd].Len()
	}
	return bits, nil
}

// Validate rejects formats that cannot be used to format or seek.
func (z *ZoneFormat) Validate() error {
	bad := func(format string, v ...interface{}) error {
		return fmt.Errorf("%w: %s", disk.ErrMetadataMismatch, fmt.Sprintf(format, v...))
	}
	if len(z.Capacities) == 0 {
		return bad("capacity must have at least one element")
	}
	if z.MotorStart >= z.MotorEnd {
		return bad("expected beg < end in motor range")
	}
	if z.MotorStep < 1 {
		return bad("expected step > 0 in motor range")
	}
	if z.AddrCode == nibble.CodeNone || z.DataCode == nibble.CodeNone {
		return bad("address and data nibbles are required")
	}
	if len(z.AddrFmtExpr) != len(z.AddrSeekExpr) {
		return bad("%d format expressions but %d seek expressions", len(z.AddrFmtExpr), len(z.AddrSeekExpr))
	}
	for i, m := range z.Markers {
		if len(m.Key) != len(m.Mask) {
			return bad("marker %d has %d bytes but mask has %d", i, len(m.Key), len(m.Mask))
		}
	}
	if z.Markers[AddrProlog].Len() == 0 {
		return bad("address prolog cannot be empty")
	}
	for _, list := range [][]string{z.AddrFmtExpr, z.AddrSeekExpr, z.CHSExpr} {
		for _, src := range list {
			if _, err := compiled(src); err != nil {
				return err
			}
		}
	}
	for _, src := range z.DataExpr {
		if strings.TrimSpace(src) == "dat" {
			continue
		}
		if _, err := compiled(src); err != nil {
			return err
		}
	}
	for sec := range z.Capacities {
		if _, err := nibble.NibbleCount(z.DataCode, z.Capacity(sec)); err != nil {
			return bad("sector %d: %v", sec, err)
		}
	}
	if len(z.PhysicalOrder) != 0 {
		if len(z.PhysicalOrder) != z.SectorCount() {
			return bad("physical order has %d entries for %d sectors", len(z.PhysicalOrder), z.SectorCount())
		}
		for _, s := range z.PhysicalOrder {
			if s < 0 || s > 255 {
				return bad("sector id %d out of range", s)
			}
		}
	}
	return nil
}

// DiskFormat is an ordered list of zones.
type DiskFormat struct {
	Zones []ZoneFormat
}

// ZoneFor finds the first zone covering the motor position and head.
func (d *DiskFormat) ZoneFor(motor, head int) (*ZoneFormat, error) {
	for i := range d.Zones {
		if d.Zones[i].Covers(motor, head) {
			return &d.Zones[i], nil
		}
	}
	loggy.Get(loggy.Tracks).Errorf("zone at motor pos %d head %d not found", motor, head)
	return nil, fmt.Errorf("%w: no zone at motor pos %d head %d", disk.ErrSectorAccess, motor, head)
}

// MotorHead is a (motor position, head) coordinate.
type MotorHead struct {
	Motor int
	Head  int
}

// MotorAndHeads enumerates every coordinate the zones cover, stepping each
// zone by its motor step.
func (d *DiskFormat) MotorAndHeads() []MotorHead {
	var out []MotorHead
	for _, z := range d.Zones {
		step := max(z.MotorStep, 1)
		for m := z.MotorStart; m < z.MotorEnd; m += step {
			for _, h := range z.Heads {
				out = append(out, MotorHead{Motor: m, Head: h})
			}
		}
	}
	return out
}

func (d *DiskFormat) Validate() error {
	if len(d.Zones) == 0 {
		return fmt.Errorf("%w: format has no zones", disk.ErrMetadataMismatch)
	}
	for i := range d.Zones {
		if err := d.Zones[i].Validate(); err != nil {
			return fmt.Errorf("zone %d: %w", i, err)
		}
	}
	return nil
}
