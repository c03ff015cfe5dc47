package tracks

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/loggy"
	"github.com/paleotronic/trackm8/nibble"
)

const (
	FormatType    = "format"
	FormatVersion = "1.0.0"
	maxRepeat     = 1000
)

type zoneJSON struct {
	FluxCode       string          `json:"flux_code"`
	AddrNibs       string          `json:"addr_nibs"`
	DataNibs       string          `json:"data_nibs"`
	SpeedKbps      *int            `json:"speed_kbps,omitempty"`
	MotorRange     []int           `json:"motor_range"`
	Heads          []int           `json:"heads"`
	AddrFmtExpr    []string        `json:"addr_fmt_expr"`
	AddrSeekExpr   []string        `json:"addr_seek_expr"`
	DataExpr       []string        `json:"data_expr"`
	CHSExpr        []string        `json:"chs_extract_expr,omitempty"`
	Markers        []string        `json:"markers"`
	MarkerMasks    []string        `json:"marker_masks"`
	SyncTrkBeg     json.RawMessage `json:"sync_trk_beg"`
	SyncSecEnd     json.RawMessage `json:"sync_sec_end"`
	SyncDatEnd     json.RawMessage `json:"sync_dat_end"`
	Capacity       json.RawMessage `json:"capacity"`
	SwapNibs       [][2]string     `json:"swap_nibs,omitempty"`
	VerifyTrack    *bool           `json:"verify_track,omitempty"`
	VerifyChecksum *bool           `json:"verify_checksum,omitempty"`
	PhysicalOrder  []int           `json:"physical_order,omitempty"`
}

type formatJSON struct {
	FormatType string     `json:"format_type"`
	Version    string     `json:"version"`
	Zones      []zoneJSON `json:"zones"`
}

func metaErr(format string, v ...interface{}) error {
	msg := fmt.Sprintf(format, v...)
	loggy.Get(loggy.Tracks).Errorf("%s", msg)
	return fmt.Errorf("%w: %s", disk.ErrMetadataMismatch, msg)
}

// splitRun unpacks an optional [val,reps] pair; a bare value repeats once.
func splitRun(raw json.RawMessage, name string) (json.RawMessage, int, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return raw, 1, nil
	}
	if len(pair) != 2 {
		return nil, 0, metaErr("%s: inner list should be [val,reps]", name)
	}
	var reps int
	if err := json.Unmarshal(pair[1], &reps); err != nil || reps < 0 {
		return nil, 0, metaErr("%s: repeat count should be a non-negative integer", name)
	}
	if reps >= maxRepeat {
		return nil, 0, metaErr("%s: too many reps (%d)", name, reps)
	}
	return pair[0], reps, nil
}

// parseIntList accepts integers or [value,repeat] pairs.
func parseIntList(raw json.RawMessage, name string) ([]int, error) {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil, metaErr("%s not an array or missing", name)
	}
	var out []int
	for _, item := range items {
		val, reps, err := splitRun(item, name)
		if err != nil {
			return nil, err
		}
		var v int
		if err := json.Unmarshal(val, &v); err != nil || v < 0 {
			return nil, metaErr("%s: %s is not a non-negative integer", name, string(val))
		}
		for i := 0; i < reps; i++ {
			out = append(out, v)
		}
	}
	return out, nil
}

// parseSyncGap accepts binary strings or [binary,repeat] pairs.
func parseSyncGap(raw json.RawMessage, name string) (Bits, error) {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return Bits{}, metaErr("%s not an array or missing", name)
	}
	var out Bits
	for _, item := range items {
		val, reps, err := splitRun(item, name)
		if err != nil {
			return Bits{}, err
		}
		var s string
		if err := json.Unmarshal(val, &s); err != nil {
			return Bits{}, metaErr("%s should hold binary strings", name)
		}
		bits, err := ParseBits(s)
		if err != nil {
			return Bits{}, err
		}
		for i := 0; i < reps; i++ {
			out.Append(bits)
		}
	}
	return out, nil
}

func parseHexList(list []string, name string) ([][]byte, error) {
	out := make([][]byte, 0, len(list))
	for _, s := range list {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, metaErr("%s: %q is not hex", name, s)
		}
		out = append(out, b)
	}
	return out, nil
}

func (zj *zoneJSON) zone() (ZoneFormat, error) {
	var z ZoneFormat
	var err error
	if z.FluxCode, err = ParseFluxCode(zj.FluxCode); err != nil {
		return z, err
	}
	if z.AddrCode, err = nibble.ParseCode(zj.AddrNibs); err != nil {
		return z, metaErr("addr_nibs: %v", err)
	}
	if z.DataCode, err = nibble.ParseCode(zj.DataNibs); err != nil {
		return z, metaErr("data_nibs: %v", err)
	}
	z.SpeedKbps = 250
	if zj.SpeedKbps != nil {
		z.SpeedKbps = *zj.SpeedKbps
	}
	if len(zj.MotorRange) != 3 {
		return z, metaErr("motor_range should be [beg,end,step]")
	}
	z.MotorStart, z.MotorEnd, z.MotorStep = zj.MotorRange[0], zj.MotorRange[1], zj.MotorRange[2]
	if len(zj.Heads) == 0 {
		return z, metaErr("heads not an array or missing")
	}
	z.Heads = zj.Heads
	z.AddrFmtExpr = zj.AddrFmtExpr
	z.AddrSeekExpr = zj.AddrSeekExpr
	z.DataExpr = zj.DataExpr
	z.CHSExpr = zj.CHSExpr

	if len(zj.Markers) != 4 || len(zj.MarkerMasks) != 4 {
		return z, metaErr("expected 4 markers and 4 masks, got %d and %d", len(zj.Markers), len(zj.MarkerMasks))
	}
	keys, err := parseHexList(zj.Markers, "markers")
	if err != nil {
		return z, err
	}
	masks, err := parseHexList(zj.MarkerMasks, "marker_masks")
	if err != nil {
		return z, err
	}
	for i := range z.Markers {
		z.Markers[i] = NewMarker(keys[i], masks[i])
	}

	for i, g := range []struct {
		raw  json.RawMessage
		name string
	}{
		{zj.SyncTrkBeg, "sync_trk_beg"},
		{zj.SyncSecEnd, "sync_sec_end"},
		{zj.SyncDatEnd, "sync_dat_end"},
	} {
		if z.Gaps[i], err = parseSyncGap(g.raw, g.name); err != nil {
			return z, err
		}
	}
	if z.Capacities, err = parseIntList(zj.Capacity, "capacity"); err != nil {
		return z, err
	}
	for _, pair := range zj.SwapNibs {
		b, err := parseHexList(pair[:], "swap_nibs")
		if err != nil {
			return z, err
		}
		if len(b[0]) != 1 || len(b[1]) != 1 {
			return z, metaErr("swap_nibs should be pairs of single bytes")
		}
		z.Swaps = append(z.Swaps, nibble.SwapPair{Special: b[0][0], Normal: b[1][0]})
	}
	z.VerifyTrack = zj.VerifyTrack == nil || *zj.VerifyTrack
	z.VerifyChecksum = zj.VerifyChecksum == nil || *zj.VerifyChecksum
	z.PhysicalOrder = zj.PhysicalOrder
	return z, z.Validate()
}

// ParseDiskFormat reads a format file. All failures wrap
// disk.ErrMetadataMismatch.
func ParseDiskFormat(data []byte) (*DiskFormat, error) {
	var fj formatJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return nil, metaErr("format file: %v", err)
	}
	if fj.FormatType != FormatType {
		return nil, metaErr("file id had the wrong value (%q)", fj.FormatType)
	}
	l := loggy.Get(loggy.Tracks)
	if strings.HasPrefix(fj.Version, "0.") {
		l.Warnf("format file major version is behind reader version")
	} else if !strings.HasPrefix(fj.Version, "1.") {
		l.Warnf("format file major version is beyond reader version")
	}
	if len(fj.Zones) == 0 {
		return nil, metaErr("zones are not an array or missing")
	}
	d := &DiskFormat{}
	for i := range fj.Zones {
		z, err := fj.Zones[i].zone()
		if err != nil {
			return nil, fmt.Errorf("zone %d: %w", i, err)
		}
		d.Zones = append(d.Zones, z)
	}
	return d, nil
}

// intRuns compresses repeats into [value,repeat] pairs.
func intRuns(list []int) []interface{} {
	var out []interface{}
	for i := 0; i < len(list); {
		j := i
		for j < len(list) && list[j] == list[i] && j-i < maxRepeat-1 {
			j++
		}
		if j-i > 1 {
			out = append(out, []interface{}{list[i], j - i})
		} else {
			out = append(out, list[i])
		}
		i = j
	}
	return out
}

func gapRuns(b Bits) []interface{} {
	unit, count := b.Runs()
	if count == 1 {
		return []interface{}{unit}
	}
	var out []interface{}
	for count > 0 {
		n := min(count, maxRepeat-1)
		out = append(out, []interface{}{unit, n})
		count -= n
	}
	return out
}

func mustRaw(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func (z *ZoneFormat) toJSON() zoneJSON {
	speed := z.SpeedKbps
	vt, vc := z.VerifyTrack, z.VerifyChecksum
	zj := zoneJSON{
		FluxCode:       z.FluxCode.String(),
		AddrNibs:       z.AddrCode.String(),
		DataNibs:       z.DataCode.String(),
		SpeedKbps:      &speed,
		MotorRange:     []int{z.MotorStart, z.MotorEnd, z.MotorStep},
		Heads:          z.Heads,
		AddrFmtExpr:    z.AddrFmtExpr,
		AddrSeekExpr:   z.AddrSeekExpr,
		DataExpr:       z.DataExpr,
		CHSExpr:        z.CHSExpr,
		SyncTrkBeg:     mustRaw(gapRuns(z.Gaps[GapTrackStart])),
		SyncSecEnd:     mustRaw(gapRuns(z.Gaps[GapAddrEnd])),
		SyncDatEnd:     mustRaw(gapRuns(z.Gaps[GapDataEnd])),
		Capacity:       mustRaw(intRuns(z.Capacities)),
		VerifyTrack:    &vt,
		VerifyChecksum: &vc,
		PhysicalOrder:  z.PhysicalOrder,
	}
	for _, m := range z.Markers {
		zj.Markers = append(zj.Markers, hex.EncodeToString(m.Key))
		zj.MarkerMasks = append(zj.MarkerMasks, hex.EncodeToString(m.Mask))
	}
	for _, s := range z.Swaps {
		zj.SwapNibs = append(zj.SwapNibs, [2]string{
			hex.EncodeToString([]byte{s.Special}),
			hex.EncodeToString([]byte{s.Normal}),
		})
	}
	return zj
}

func (d *DiskFormat) MarshalJSON() ([]byte, error) {
	fj := formatJSON{FormatType: FormatType, Version: FormatVersion}
	for i := range d.Zones {
		fj.Zones = append(fj.Zones, d.Zones[i].toJSON())
	}
	return json.Marshal(fj)
}
