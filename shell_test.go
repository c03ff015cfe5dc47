package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/paleotronic/trackm8/disk"
)

func resetShell(t *testing.T) {
	t.Helper()
	commandVolumes = [MAXVOL]*Image{}
	commandTarget = -1
	kindName = "dos33"
	formatFile = ""
}

func TestSmartSplit(t *testing.T) {
	verb, args := smartSplit(`mount "my disk.nib" other\ disk.dsk  x`)
	if verb != "mount" || !reflect.DeepEqual(args, []string{"my disk.nib", "other disk.dsk", "x"}) {
		t.Fatalf("split gave %q %q", verb, args)
	}
	if verb, args := smartSplit("   "); verb != "" || len(args) != 0 {
		t.Fatalf("blank line gave %q %q", verb, args)
	}
}

func TestCompleter(t *testing.T) {
	ac := &shellCompleter{}
	items, n := ac.Do([]rune("nib"), 3)
	if n != 3 || len(items) != 1 || string(items[0]) != "bles" {
		t.Fatalf("command completion gave %q %d", items, n)
	}
	items, n = ac.Do([]rune("kind 3.5in-apple-8"), 18)
	if n != 13 || len(items) != 1 || string(items[0]) != "00" {
		t.Fatalf("kind completion gave %q %d", items, n)
	}
}

func TestShellErrors(t *testing.T) {
	resetShell(t)
	if r := shellProcess("read 1 1"); r != -1 {
		t.Fatalf("read without a mount returned %d", r)
	}
	if r := shellProcess("bogus"); r != -1 {
		t.Fatalf("unknown command returned %d", r)
	}
	if r := shellProcess("target"); r != -1 {
		t.Fatalf("missing argument returned %d", r)
	}
	if r := shellProcess(""); r != 0 {
		t.Fatalf("blank line returned %d", r)
	}
	if r := shellProcess("kind 1.44m"); r != -1 {
		t.Fatalf("unknown kind returned %d", r)
	}
	if r := shellProcess("quit"); r != 999 {
		t.Fatalf("quit returned %d", r)
	}
}

func TestShellScript(t *testing.T) {
	resetShell(t)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	name := filepath.Join(dir, "work.dsk")
	script := strings.Join([]string{
		"kind 16",
		"new " + name,
		"write 17 3 a5a5a5",
		"format 18",
		"read 17 3",
		"solve 17",
		"save",
		"quit",
		"this line never runs",
	}, "\n")
	if err := shellBatch(strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	// physical 3 is DOS sector 6
	off := (17*16 + 6) * 256
	if !bytes.Equal(data[off:off+4], []byte{0xa5, 0xa5, 0xa5, 0}) {
		t.Fatalf("sector bytes % x", data[off:off+4])
	}

	if err := shellBatch(strings.NewReader("mount " + name + "\nread 40 0\n")); err == nil {
		t.Fatalf("reading track 40 should stop the script")
	}
	if commandTarget != 0 || commandVolumes[0] == nil {
		t.Fatalf("remounting the same file should reuse slot 0")
	}
}

func TestTrackView(t *testing.T) {
	resetShell(t)
	dir := t.TempDir()
	img, err := NewImage(filepath.Join(dir, "v.dsk"), disk.A2DOS33, nil)
	if err != nil {
		t.Fatal(err)
	}
	tv := newTrackView(img, disk.Track(0))
	if len(tv.nibs) == 0 || len(tv.mnemonic) != len(tv.nibs) {
		t.Fatalf("no nibbles loaded: %s", tv.status)
	}
	tv.handle(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), 10)
	if tv.tkey != disk.CH(1, 0) {
		t.Fatalf("right arrow moved to %s", tv.tkey)
	}
	tv.handle(tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), 10)
	tv.handle(tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), 10)
	if tv.tkey != disk.CH(0, 0) {
		t.Fatalf("moved off the disk to %s", tv.tkey)
	}
	if tv.handle(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone), 10) {
		t.Fatalf("q should close the viewer")
	}

	s := tcell.NewSimulationScreen("UTF-8")
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	defer s.Fini()
	s.SetSize(120, 30)
	tv.draw(s)
	// the first row starts at an address prolog
	if r, _, _, _ := s.GetContent(6, 2); r != 'd' {
		t.Fatalf("expected the d5 prolog at the top left, got %q", r)
	}
	if r, _, _, _ := s.GetContent(7, 3); r != '(' {
		t.Fatalf("expected an address mnemonic, got %q", r)
	}
}
