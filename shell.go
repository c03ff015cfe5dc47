package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/loggy"
)

const MAXVOL = 8

var commandList map[string]*shellCommand
var commandVolumes [MAXVOL]*Image
var commandTarget int = -1

func mountImage(img *Image) (int, error) {

	var fr []int

	for i, d := range commandVolumes {
		if d == nil {
			fr = append(fr, i)
		} else if img.Filename == d.Filename {
			commandVolumes[i] = img
			return i, nil
		}
	}

	if len(fr) == 0 {
		return -1, errors.New("No free slots")
	}

	commandVolumes[fr[0]] = img

	return fr[0], nil

}

func smartSplit(line string) (string, []string) {

	var out []string

	var inqq bool
	var lastEscape bool
	var chunk string

	add := func() {
		if chunk != "" {
			out = append(out, chunk)
			chunk = ""
		}
	}

	for _, ch := range line {
		switch {
		case ch == '"':
			inqq = !inqq
			add()
		case ch == ' ':
			if inqq || lastEscape {
				chunk += string(ch)
			} else {
				add()
			}
			lastEscape = false
		case ch == '\\' && !inqq:
			lastEscape = true
		default:
			chunk += string(ch)
		}
	}

	add()

	if len(out) == 0 {
		return "", out
	}

	return out[0], out[1:]
}

func getPrompt(t int) string {

	if t == -1 || commandVolumes[t] == nil {
		return "trk:<no mount>> "
	}

	img := commandVolumes[t]
	return fmt.Sprintf("trk:%d:%s:%s> ", t, filepath.Base(img.Filename), img.Kind.Name)
}

type shellCommand struct {
	Name             string
	Description      string
	MinArgs, MaxArgs int
	Code             func(args []string) int
	NeedsMount       bool
	Context          shellCommandContext
	Text             []string
}

type shellCommandContext int

const (
	sccNone shellCommandContext = 1 << iota
	sccLocal
	sccKind
	sccCommand
)

type shellCompleter struct {
}

func hasPrefix(str []rune, prefix []rune) bool {
	if len(prefix) > len(str) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if str[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (sc *shellCompleter) Do(line []rune, pos int) ([][]rune, int) {

	prefix := ""
	chunk := ""
	for _, ch := range line {
		if ch == ' ' {
			prefix = chunk
			break
		} else {
			chunk += string(ch)
		}
	}

	chunk = ""
	cprefix := ""
	var lastEscape bool
	for i := 0; i < pos; i++ {
		ch := line[i]
		switch {
		case ch == '\\':
			lastEscape = true
		case ch == ' ' && !lastEscape:
			cprefix = chunk
			chunk = ""
			lastEscape = false
		default:
			chunk += string(ch)
		}
	}
	cprefix = chunk

	var context shellCommandContext = sccNone
	cmd, match := commandList[prefix]
	if match {
		context = cmd.Context
	} else {
		context = sccCommand
	}

	var items [][]rune
	switch context {
	case sccCommand:
		for k := range commandList {
			items = append(items, []rune(k))
		}
	case sccKind:
		for _, k := range disk.Kinds() {
			items = append(items, []rune(k.Name))
		}
	case sccLocal:
		files, err := filepath.Glob(cprefix + "*")
		if err != nil {
			return items, 0
		}
		for _, v := range files {
			items = append(items, []rune(v))
		}
	}

	if len(items) == 0 {
		return [][]rune(nil), 0
	}

	var filt [][]rune
	for _, v := range items {
		if hasPrefix(v, []rune(cprefix)) {
			filt = append(filt, shellEscape(v[len([]rune(cprefix)):]))
		}
	}
	return filt, len([]rune(cprefix))
}

func shellEscape(str []rune) []rune {
	out := make([]rune, 0)
	for _, v := range str {
		if v == ' ' {
			out = append(out, '\\')
		}
		out = append(out, v)
	}
	return out
}

func init() {
	commandList = map[string]*shellCommand{
		"mount": &shellCommand{
			Name:        "mount",
			Description: "Mount a disk image",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellMount,
			NeedsMount:  false,
			Context:     sccLocal,
			Text: []string{
				"mount <diskfile>",
				"",
				"Mounts disk and switches to the new slot. The kind of track",
				"image is taken from the kind command (see kind).",
			},
		},
		"new": &shellCommand{
			Name:        "new",
			Description: "Create and mount a formatted disk image",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellNew,
			NeedsMount:  false,
			Context:     sccLocal,
			Text: []string{
				"new <diskfile>",
				"",
				"Formats a new image of the current kind. Nothing is written",
				"until save.",
			},
		},
		"unmount": &shellCommand{
			Name:        "unmount",
			Description: "unmount disk image",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellUnmount,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"unmount <slot>",
				"",
				"Unmount the disk in the specified slot (or current slot)",
			},
		},
		"disks": &shellCommand{
			Name:        "disks",
			Description: "List mounted volumes",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellDisks,
			NeedsMount:  false,
			Context:     sccNone,
			Text: []string{
				"disks",
				"",
				"List mounted volumes",
			},
		},
		"target": &shellCommand{
			Name:        "target",
			Description: "Select disk slot",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellPrefix,
			NeedsMount:  false,
			Context:     sccNone,
			Text: []string{
				"target <slot>",
				"",
				"Switch to the disk mounted in <slot>",
			},
		},
		"kind": &shellCommand{
			Name:        "kind",
			Description: "Show or set the disk kind for new mounts",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellKind,
			NeedsMount:  false,
			Context:     sccKind,
			Text: []string{
				"kind [<kind>]",
				"",
				"Kinds: dos32, dos33, 400k, 800k (or their full names)",
			},
		},
		"info": &shellCommand{
			Name:        "info",
			Description: "Information about the current disk",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellInfo,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"info",
				"",
				"Shows the image path, type, kind and zones",
			},
		},
		"read": &shellCommand{
			Name:        "read",
			Description: "Dump a sector",
			MinArgs:     2,
			MaxArgs:     2,
			Code:        shellRead,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"read <track> <sector>",
				"",
				"Tracks are 17 (track), 40/1 (cylinder/head) or m68 (motor position)",
			},
		},
		"write": &shellCommand{
			Name:        "write",
			Description: "Write a sector from hex bytes",
			MinArgs:     3,
			MaxArgs:     3,
			Code:        shellWrite,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"write <track> <sector> <hexbytes>",
				"",
				"Short data is padded with zeroes, long data is truncated",
			},
		},
		"format": &shellCommand{
			Name:        "format",
			Description: "Format a track or the whole disk",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellFormat,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"format [<track>]",
				"",
				"Reformats one track, or every track with no argument",
			},
		},
		"solve": &shellCommand{
			Name:        "solve",
			Description: "Map the sectors on a track",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellSolve,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"solve <track>",
			},
		},
		"nibbles": &shellCommand{
			Name:        "nibbles",
			Description: "List track bytes with mnemonics",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellNibbles,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"nibbles <track>",
				"",
				"(A: and :A) bracket address fields, (D: and :D) data fields,",
				"> is sync, ? an invalid byte",
			},
		},
		"view": &shellCommand{
			Name:        "view",
			Description: "Browse tracks full screen",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellView,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"view [<track>]",
			},
		},
		"fmt": &shellCommand{
			Name:        "fmt",
			Description: "Print the track format of the current disk as JSON",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellFmt,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"fmt",
			},
		},
		"save": &shellCommand{
			Name:        "save",
			Description: "Save the current disk",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellSave,
			NeedsMount:  true,
			Context:     sccLocal,
			Text: []string{
				"save [<diskfile>]",
				"",
				"Saves the disk, converting if the extension differs.",
				"An existing file is backed up first.",
			},
		},
		"help": &shellCommand{
			Name:        "help",
			Description: "Shows this help",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellHelp,
			NeedsMount:  false,
			Context:     sccCommand,
			Text: []string{
				"help <command>",
				"",
				"Display specific help for command or list of commands",
			},
		},
		"quit": &shellCommand{
			Name:        "quit",
			Description: "Leave this place",
			MinArgs:     -1,
			MaxArgs:     -1,
			Code:        shellQuit,
			NeedsMount:  false,
			Context:     sccNone,
			Text: []string{
				"quit",
				"",
				"Leave the shell",
			},
		},
	}
}

func shellProcess(line string) int {
	line = strings.TrimSpace(line)

	verb, args := smartSplit(line)

	if verb != "" {
		verb = strings.ToLower(verb)
		command, ok := commandList[verb]
		if ok {
			var cok = true
			if command.MinArgs != -1 {
				if len(args) < command.MinArgs {
					os.Stderr.WriteString(fmt.Sprintf("%s expects at least %d arguments\n", verb, command.MinArgs))
					cok = false
				}
			}
			if command.MaxArgs != -1 {
				if len(args) > command.MaxArgs {
					os.Stderr.WriteString(fmt.Sprintf("%s expects at most %d arguments\n", verb, command.MaxArgs))
					cok = false
				}
			}
			if command.NeedsMount {
				if commandTarget == -1 || commandVolumes[commandTarget] == nil {
					os.Stderr.WriteString(fmt.Sprintf("%s only works on mounted disks\n", verb))
					cok = false
				}
			}
			if cok {
				loggy.Get(loggy.Shell).Debugf("command %s %v", verb, args)
				return command.Code(args)
			} else {
				return -1
			}
		} else {
			os.Stderr.WriteString(fmt.Sprintf("Unrecognized command: %s\n", verb))
			return -1
		}
	}

	return 0
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// shellBatch runs one command per line, stopping at the first failure.
func shellBatch(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		l := scanner.Text()
		switch shellProcess(l) {
		case -1:
			return fmt.Errorf("script failed at line %d: %s", line, l)
		case 999:
			return nil
		}
	}
	return scanner.Err()
}

func shellDo() {

	ac := &shellCompleter{}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 getPrompt(commandTarget),
		HistoryFile:            binpath() + "/.shell_history",
		DisableAutoSaveHistory: false,
		AutoComplete:           ac,
	})
	if err != nil {
		loggy.Get(loggy.Shell).Errorf("readline: %v", err)
		os.Exit(2)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}

		r := shellProcess(line)
		if r == 999 {
			return
		}

		rl.SetPrompt(getPrompt(commandTarget))
	}

}

func shellError(err error) int {
	os.Stderr.WriteString("Error: " + err.Error() + "\n")
	return -1
}

func shellMount(args []string) int {
	img, err := openImage(args[0])
	if err != nil {
		return shellError(err)
	}

	slotid, err := mountImage(img)
	if err != nil {
		return shellError(err)
	}

	commandTarget = slotid
	os.Stderr.WriteString(fmt.Sprintf("mount disk in slot %d\n", slotid))

	return 0
}

func shellNew(args []string) int {
	kind, err := selectedKind()
	if err != nil {
		return shellError(err)
	}
	format, err := selectedFormat()
	if err != nil {
		return shellError(err)
	}
	img, err := NewImage(args[0], kind, format)
	if err != nil {
		return shellError(err)
	}

	slotid, err := mountImage(img)
	if err != nil {
		return shellError(err)
	}

	commandTarget = slotid
	os.Stderr.WriteString(fmt.Sprintf("new %s in slot %d\n", kind, slotid))

	return 0
}

func shellUnmount(args []string) int {

	if len(args) > 0 {
		if shellPrefix(args) == -1 {
			return -1
		}
	}

	if commandVolumes[commandTarget] != nil {

		commandVolumes[commandTarget] = nil

		os.Stderr.WriteString("Unmounted volume\n")

	}

	return 0
}

func shellDisks(args []string) int {

	fmt.Println("Mounted Volumes")
	for i, d := range commandVolumes {
		if d != nil {
			fmt.Printf("%d:%s (%s)\n", i, d.Filename, d.Kind)
		}
	}

	return 0
}

func shellPrefix(args []string) int {

	tmp, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		os.Stderr.WriteString("Invalid slot number: " + args[0] + "\n")
		return -1
	}

	slotid := int(tmp)
	if slotid < 0 || slotid >= MAXVOL {
		os.Stderr.WriteString(fmt.Sprintf("Valid slots are %d to %d.\n", 0, MAXVOL-1))
		return -1
	}

	d := commandVolumes[slotid]
	if d == nil {
		os.Stderr.WriteString(fmt.Sprintf("Nothing mounted in slot %d (use disks to see mounts)\n", slotid))
		return -1
	}

	commandTarget = slotid

	return 0

}

func shellKind(args []string) int {
	if len(args) == 1 {
		k, err := disk.ParseKind(args[0])
		if err != nil {
			return shellError(err)
		}
		kindName = k.Name
	}
	fmt.Println(kindName)
	return 0
}

func shellHelp(args []string) int {

	if len(args) == 0 {
		keys := make([]string, 0)
		for k := range commandList {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			info := commandList[k]
			fmt.Printf("%-10s %s\n", info.Name, info.Description)
		}
	} else {
		command := strings.ToLower(args[0])
		if details, ok := commandList[command]; ok {
			for _, l := range details.Text {
				fmt.Println(l)
			}
		} else {
			os.Stderr.WriteString("No help available for " + command + "\n")
		}
	}

	return 0
}

func shellInfo(args []string) int {

	img := commandVolumes[commandTarget]
	fullpath, _ := filepath.Abs(img.Filename)

	fmt.Printf("Disk path   : %s\n", fullpath)
	fmt.Printf("Image type  : %s\n", img.Type)
	fmt.Printf("Disk kind   : %s\n", img.Kind)
	fmt.Printf("Tracks      : %d of %d bytes\n", img.Kind.TrackCount(), img.Kind.TrackBytes)
	for i, z := range img.Drive().Format().Zones {
		fmt.Printf("Zone %d      : motor %d-%d, %d sectors, %s/%s, %d kbps\n",
			i, z.MotorStart, z.MotorEnd, z.SectorCount(), z.AddrCode, z.DataCode, z.SpeedKbps)
	}

	return 0
}

func trackArg(s string) (disk.TrackKey, bool) {
	tkey, err := disk.ParseTrackKey(s)
	if err != nil {
		shellError(err)
		return tkey, false
	}
	return tkey, true
}

func shellRead(args []string) int {
	tkey, ok := trackArg(args[0])
	if !ok {
		return -1
	}
	sec, err := parseSector(args[1])
	if err != nil {
		return shellError(err)
	}
	dat, err := commandVolumes[commandTarget].Drive().ReadSector(tkey, sec)
	if err != nil {
		return shellError(err)
	}
	Dump(dat)
	return 0
}

func shellWrite(args []string) int {
	tkey, ok := trackArg(args[0])
	if !ok {
		return -1
	}
	sec, err := parseSector(args[1])
	if err != nil {
		return shellError(err)
	}
	dat, err := hex.DecodeString(args[2])
	if err != nil {
		return shellError(err)
	}
	if err := commandVolumes[commandTarget].Drive().WriteSector(tkey, sec, dat); err != nil {
		return shellError(err)
	}
	return 0
}

func shellFormat(args []string) int {
	d := commandVolumes[commandTarget].Drive()
	var err error
	if len(args) == 1 {
		tkey, ok := trackArg(args[0])
		if !ok {
			return -1
		}
		err = d.FormatTrack(tkey)
	} else {
		err = d.FormatDisk()
	}
	if err != nil {
		return shellError(err)
	}
	return 0
}

func shellSolve(args []string) int {
	tkey, ok := trackArg(args[0])
	if !ok {
		return -1
	}
	sol, err := commandVolumes[commandTarget].Drive().TrackSolution(tkey)
	if err != nil {
		return shellError(err)
	}
	fmt.Print(sol)
	return 0
}

func shellNibbles(args []string) int {
	tkey, ok := trackArg(args[0])
	if !ok {
		return -1
	}
	nibs, zone, err := commandVolumes[commandTarget].Drive().TrackNibbles(tkey)
	if err != nil {
		return shellError(err)
	}
	DumpNibbles(nibs, zone.Mnemonics(nibs))
	return 0
}

func shellView(args []string) int {
	tkey := disk.Track(0)
	if len(args) == 1 {
		var ok bool
		if tkey, ok = trackArg(args[0]); !ok {
			return -1
		}
	}
	if err := viewTracks(commandVolumes[commandTarget], tkey); err != nil {
		return shellError(err)
	}
	return 0
}

func shellFmt(args []string) int {
	js, err := commandVolumes[commandTarget].Drive().Format().MarshalJSON()
	if err != nil {
		return shellError(err)
	}
	fmt.Println(string(js))
	return 0
}

func shellSave(args []string) int {
	img := commandVolumes[commandTarget]
	target := img.Filename
	if len(args) == 1 {
		target = args[0]
	}
	if err := img.SaveAs(target); err != nil {
		return shellError(err)
	}
	fmt.Println("Updated disk " + target)
	return 0
}

func shellQuit(args []string) int {

	return 999

}
