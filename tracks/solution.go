package tracks

import (
	"fmt"
	"strings"

	"github.com/paleotronic/trackm8/nibble"
)

// SectorInfo is one address found on a track.
type SectorInfo struct {
	Cyl      int
	Head     int
	Sec      int
	Capacity int
	Addr     []byte
}

// TrackSolution describes the layout found on a track, for display.
type TrackSolution struct {
	Cylinder  int
	Fraction  [2]int
	Head      int
	FluxCode  FluxCode
	AddrCode  nibble.Code
	DataCode  nibble.Code
	SpeedKbps int
	Sectors   []SectorInfo
}

func (s *TrackSolution) SectorCount() int {
	return len(s.Sectors)
}

func (s *TrackSolution) Capacities() []int {
	out := make([]int, len(s.Sectors))
	for i, sec := range s.Sectors {
		out[i] = sec.Capacity
	}
	return out
}

func (s *TrackSolution) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cylinder %d", s.Cylinder)
	if s.Fraction[0] != 0 {
		fmt.Fprintf(&sb, " + %d/%d", s.Fraction[0], s.Fraction[1])
	}
	fmt.Fprintf(&sb, " head %d: %s, address %s, data %s, %d kbps\n",
		s.Head, s.FluxCode, s.AddrCode, s.DataCode, s.SpeedKbps)
	for _, sec := range s.Sectors {
		fmt.Fprintf(&sb, "  c %2d h %d s %2d  %3d bytes  addr % x\n",
			sec.Cyl, sec.Head, sec.Sec, sec.Capacity, sec.Addr)
	}
	return sb.String()
}

// TrackSolution packages a sector map found at motor position motor, where
// width motor steps make one cylinder.
func (z *ZoneFormat) TrackSolution(motor, head, width int, sectors []SectorInfo) *TrackSolution {
	width = max(width, 1)
	return &TrackSolution{
		Cylinder:  motor / width,
		Fraction:  [2]int{motor % width, width},
		Head:      head,
		FluxCode:  z.FluxCode,
		AddrCode:  z.AddrCode,
		DataCode:  z.DataCode,
		SpeedKbps: z.SpeedKbps,
		Sectors:   sectors,
	}
}
