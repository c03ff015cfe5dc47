package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/paleotronic/trackm8/disk"
)

var (
	styleTitle   = tcell.StyleDefault.Reverse(true)
	styleAddr    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleData    = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleSync    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleInvalid = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

const nibsPerRow = 32

// trackView holds what the viewer shows for one track.
type trackView struct {
	img      *Image
	tkey     disk.TrackKey
	nibs     []byte
	mnemonic string
	status   string
	top      int
}

func newTrackView(img *Image, tkey disk.TrackKey) *trackView {
	tv := &trackView{img: img, tkey: tkey}
	tv.load()
	return tv
}

func (tv *trackView) load() {
	tv.top = 0
	nibs, zone, err := tv.img.Drive().TrackNibbles(tv.tkey)
	if err != nil {
		tv.nibs, tv.mnemonic = nil, ""
		tv.status = err.Error()
		return
	}
	tv.nibs = nibs
	tv.mnemonic = zone.Mnemonics(nibs)
	tv.status = fmt.Sprintf("%d bytes, %d sectors of %s", len(nibs), zone.SectorCount(), zone.DataCode)
}

func (tv *trackView) rows() int {
	return (len(tv.nibs) + nibsPerRow - 1) / nibsPerRow
}

// step moves by whole cylinders and reloads; moves off the disk are ignored.
func (tv *trackView) step(cyls, head int) {
	k := tv.img.Kind
	tkey := tv.tkey
	if tkey.Type == disk.KeyTrack {
		cyl, h, err := k.CylHead(tkey)
		if err != nil {
			return
		}
		tkey = disk.CH(cyl, h)
	}
	next, err := tkey.Jump(cyls, head, k.MotorStepsPerCyl)
	if err != nil {
		return
	}
	if _, _, err := k.MotorHead(next); err != nil {
		return
	}
	tv.tkey = next
	tv.load()
}

// handle applies one key; it reports false when the viewer should close.
func (tv *trackView) handle(ev *tcell.EventKey, pageRows int) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRight:
		tv.step(1, -1)
	case tcell.KeyLeft:
		tv.step(-1, -1)
	case tcell.KeyDown:
		tv.top = min(tv.top+1, max(tv.rows()-1, 0))
	case tcell.KeyUp:
		tv.top = max(tv.top-1, 0)
	case tcell.KeyPgDn:
		tv.top = min(tv.top+pageRows, max(tv.rows()-1, 0))
	case tcell.KeyPgUp:
		tv.top = max(tv.top-pageRows, 0)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return false
		case 'n':
			tv.step(1, -1)
		case 'p':
			tv.step(-1, -1)
		case 'h':
			if tv.img.Kind.Heads > 1 {
				head := tv.tkey.Head
				if tv.tkey.Type == disk.KeyTrack {
					_, head, _ = tv.img.Kind.CylHead(tv.tkey)
				}
				tv.step(0, (head+1)%tv.img.Kind.Heads)
			}
		}
	}
	return true
}

func mnemonicStyle(m byte) tcell.Style {
	switch {
	case m == '>':
		return styleSync
	case m == '?' || m == 'R':
		return styleInvalid
	case strings.IndexByte("(A:)", m) >= 0:
		return styleAddr
	case m == 'D':
		return styleData
	}
	return tcell.StyleDefault
}

func putStr(s tcell.Screen, x, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		if x+i >= w {
			break
		}
		s.SetContent(x+i, y, r, nil, style)
	}
}

// draw lays out a title, then pairs of lines: hex bytes over mnemonics.
func (tv *trackView) draw(s tcell.Screen) int {
	s.Clear()
	w, h := s.Size()
	title := fmt.Sprintf(" %s  %s  %s ", tv.img.Filename, tv.img.Kind, tv.tkey)
	putStr(s, 0, 0, title+strings.Repeat(" ", max(w-len(title), 0)), styleTitle)
	putStr(s, 0, 1, tv.status, tcell.StyleDefault)
	putStr(s, 0, h-1, "<-/-> or n/p: cylinder  h: head  up/down/pgup/pgdn: scroll  q: quit", styleSync)

	pageRows := max((h-3)/2, 1)
	y := 2
	for row := tv.top; row < tv.rows() && y+1 < h-1; row++ {
		beg := row * nibsPerRow
		end := min(beg+nibsPerRow, len(tv.nibs))
		putStr(s, 0, y, fmt.Sprintf("%.4X", beg), styleSync)
		for i := beg; i < end; i++ {
			x := 6 + (i-beg)*3
			m := tv.mnemonic[i]
			putStr(s, x, y, hex.EncodeToString(tv.nibs[i:i+1]), mnemonicStyle(m))
			putStr(s, x+1, y+1, string(m), mnemonicStyle(m))
		}
		y += 2
	}
	s.Show()
	return pageRows
}

func runTrackView(s tcell.Screen, tv *trackView) {
	pageRows := tv.draw(s)
	for {
		switch ev := s.PollEvent().(type) {
		case *tcell.EventKey:
			if !tv.handle(ev, pageRows) {
				return
			}
		case *tcell.EventResize:
			s.Sync()
		case nil:
			return
		}
		pageRows = tv.draw(s)
	}
}

func viewTracks(img *Image, tkey disk.TrackKey) error {
	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	s.DisableMouse()
	defer s.Fini()
	runTrackView(s, newTrackView(img, tkey))
	return nil
}
