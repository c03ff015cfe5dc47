package tracks

import (
	"strings"

	"github.com/paleotronic/trackm8/nibble"
)

// mnemonicState tracks which marker was last completed while walking a
// nibble stream: 0 after a data epilog (or at the start), then 1 to 3 for
// the address prolog, address epilog and data prolog.
type mnemonicState struct {
	lastMarker    int
	lastMarkerEnd int
}

func hexDigit(v byte) byte {
	switch {
	case v < 10:
		return '0' + v
	case v < 16:
		return 'a' + v - 10
	}
	return '^'
}

// chkMarker looks for marker which at any position in the window around i
// and returns the symbol for that stage. Completing the marker advances the
// state.
func (z *ZoneFormat) chkMarker(i int, win [5]byte, which int, symbols string, fallback byte, st *mnemonicState) byte {
	m := z.Markers[which]
	count := min(3, m.Len())
	for stage := 0; stage < count; stage++ {
		matching := true
		for k := 0; k < count; k++ {
			if !m.Match(k, win[2-stage+k]) {
				matching = false
				break
			}
		}
		if !matching {
			continue
		}
		if stage+1 == count {
			st.lastMarker++
			st.lastMarkerEnd = i + 1
			if st.lastMarker > 3 {
				st.lastMarker = 0
			}
		}
		return symbols[stage%len(symbols)]
	}
	return fallback
}

func (z *ZoneFormat) mnemonic(buf []byte, i int, st *mnemonicState) byte {
	addrNibs := z.AddrNibbleCount()
	dataNibs, err := nibble.NibbleCount(z.DataCode, z.Capacity(0))
	if err != nil {
		dataNibs = 343
	}
	dataNibs += z.dataHeaderLen() * z.DataCode.Width()

	var win [5]byte
	for rel := 0; rel < 5; rel++ {
		if abs := i - 2 + rel; abs >= 0 && abs < len(buf) {
			win[rel] = buf[abs]
		}
	}
	fallback := byte('.')
	if !nibble.Valid(z.DataCode, buf[i]) {
		fallback = '?'
		if buf[i] == 0xd5 || buf[i] == 0xaa {
			fallback = 'R'
		}
	}
	// give up on a data prolog that is too far away
	if st.lastMarker == 2 && i > st.lastMarkerEnd+40 {
		st.lastMarker = 0
	}
	switch {
	case st.lastMarker == 0:
		if win[2] == 0xff {
			fallback = '>'
		}
		return z.chkMarker(i, win, AddrProlog, "(A:", fallback, st)
	case st.lastMarker == 1 && i < st.lastMarkerEnd+addrNibs:
		if z.AddrCode == nibble.Code44 {
			if (i-st.lastMarkerEnd)%2 == 0 {
				v, _ := nibble.Decode44([2]byte{buf[i], win[3]})
				return hexDigit(v >> 4)
			}
			v, _ := nibble.Decode44([2]byte{win[1], buf[i]})
			return hexDigit(v & 0x0f)
		}
		v, _ := nibble.DecodeByte(z.AddrCode, buf[i:i+1])
		return hexDigit(v)
	case st.lastMarker == 1:
		return z.chkMarker(i, win, AddrEpilog, ":A)", fallback, st)
	case st.lastMarker == 2:
		if win[2] == 0xff {
			fallback = '>'
		}
		return z.chkMarker(i, win, DataProlog, "(D:", fallback, st)
	case st.lastMarker == 3 && i < st.lastMarkerEnd+dataNibs:
		return fallback
	case st.lastMarker == 3:
		return z.chkMarker(i, win, DataEpilog, ":D)", fallback, st)
	}
	return fallback
}

// Mnemonics gives one character per disk byte to guide the eye through a
// nibble dump: markers show as (A: :A) (D: :D), address bytes as hex
// digits, sync as >, invalid bytes as ? and reserved bytes out of place as R.
func (z *ZoneFormat) Mnemonics(nibs []byte) string {
	var sb strings.Builder
	sb.Grow(len(nibs))
	st := &mnemonicState{}
	for i := range nibs {
		sb.WriteByte(z.mnemonic(nibs, i, st))
	}
	return sb.String()
}
