package main

/*
trackm8 reads and writes the bit patterns found on Apple II floppy tracks.

It converts between sectors and the nibble streams a drive head sees, for
the 13 and 16 sector 5.25 inch formats, the zoned 3.5 inch formats, and any
format described in a JSON format file.
*/

import (
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/loggy"
	"github.com/paleotronic/trackm8/tracks"
)

func binpath() string {

	if runtime.GOOS == "windows" {
		return os.Getenv("USERPROFILE") + "/TrackM8"
	}
	return os.Getenv("HOME") + "/TrackM8"

}

func init() {
	loggy.LogFolder = binpath() + "/logs/"
}

var (
	verbose    bool
	debug      bool
	logDir     string
	kindName   string
	formatFile string
)

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging applies the persistent flags before any command runs.
func setupLogging(_ *cobra.Command, _ []string) {
	loggy.ECHO = verbose
	if debug {
		loggy.MinLevel = loggy.LevelTrace
	}
	if logDir != "" {
		loggy.LogFolder = logDir
	}
	loggy.Reset()
}

func selectedKind() (disk.DiskKind, error) {
	return disk.ParseKind(kindName)
}

// selectedFormat loads the --format file, or returns nil for the standard
// format of the disk kind.
func selectedFormat() (*tracks.DiskFormat, error) {
	if formatFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(formatFile)
	if err != nil {
		return nil, err
	}
	return tracks.ParseDiskFormat(data)
}

func openImage(filename string) (*Image, error) {
	kind, err := selectedKind()
	if err != nil {
		return nil, err
	}
	format, err := selectedFormat()
	if err != nil {
		return nil, err
	}
	return LoadImage(filename, kind, format)
}

func parseSector(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: bad sector %q", disk.ErrSectorAccess, s)
	}
	return byte(v), nil
}

// Dump prints a hex and ascii listing of data.
func Dump(data []byte) {
	perline := 0x10
	ascii := ""
	for i, v := range data {
		if i%perline == 0 {
			if i > 0 {
				fmt.Println(" " + ascii)
			}
			ascii = ""
			fmt.Printf("%.4X:", i)
		}
		c := v & 0x7f
		if c >= 32 && c < 127 {
			ascii += string(rune(c))
		} else {
			ascii += "."
		}
		fmt.Printf(" %.2X", v)
	}
	fmt.Println(" " + ascii)
}

// DumpNibbles prints track bytes with their mnemonics underneath.
func DumpNibbles(nibs []byte, mnemonics string) {
	perline := 0x20
	for i := 0; i < len(nibs); i += perline {
		end := min(i+perline, len(nibs))
		fmt.Printf("%.4X: %s\n", i, hex.EncodeToString(nibs[i:end]))
		var sb strings.Builder
		for _, m := range mnemonics[i:end] {
			sb.WriteRune(' ')
			sb.WriteRune(m)
		}
		fmt.Printf("      %s\n", sb.String())
	}
}

func main() {
	root := &cobra.Command{
		Use:              "trackm8",
		Short:            "Apple II floppy track encoder and decoder",
		Long:             "Read, write and format sectors on the nibble tracks of Apple II disk images",
		PersistentPreRun: setupLogging,
		SilenceUsage:     true,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log to stderr")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Log engine detail")
	root.PersistentFlags().StringVar(&logDir, "log-dir", "", "Folder for log files (default "+binpath()+"/logs/)")
	root.PersistentFlags().StringVar(&kindName, "kind", "dos33", "disk kind: dos32|dos33|400k|800k")
	root.PersistentFlags().StringVar(&formatFile, "format", "", "JSON track format file (default: standard format for the kind)")

	root.AddCommand(&cobra.Command{
		Use:   "new <image>",
		Short: "Create a freshly formatted image (.nib .trk .dsk .do .po .d13)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			kind, err := selectedKind()
			if err != nil {
				return err
			}
			format, err := selectedFormat()
			if err != nil {
				return err
			}
			img, err := NewImage(args[0], kind, format)
			if err != nil {
				return err
			}
			return img.Save()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "read <image> <track> <sector>",
		Short: "Dump one sector",
		Long:  "Dump one sector. Tracks are given as 17 (track), 40/1 (cylinder/head) or m68 (motor position).",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			tkey, err := disk.ParseTrackKey(args[1])
			if err != nil {
				return err
			}
			sec, err := parseSector(args[2])
			if err != nil {
				return err
			}
			dat, err := img.Drive().ReadSector(tkey, sec)
			if err != nil {
				return err
			}
			Dump(dat)
			return nil
		},
	})

	var hexData string
	writeCmd := &cobra.Command{
		Use:   "write <image> <track> <sector> [datafile]",
		Short: "Write one sector from a file or --hex bytes",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			tkey, err := disk.ParseTrackKey(args[1])
			if err != nil {
				return err
			}
			sec, err := parseSector(args[2])
			if err != nil {
				return err
			}
			var dat []byte
			switch {
			case len(args) == 4:
				dat, err = os.ReadFile(args[3])
			case hexData != "":
				dat, err = hex.DecodeString(hexData)
			default:
				err = fmt.Errorf("nothing to write: give a data file or --hex")
			}
			if err != nil {
				return err
			}
			if err := img.Drive().WriteSector(tkey, sec, dat); err != nil {
				return err
			}
			return img.Save()
		},
	}
	writeCmd.Flags().StringVar(&hexData, "hex", "", "sector bytes as hex")
	root.AddCommand(writeCmd)

	root.AddCommand(&cobra.Command{
		Use:   "format <image> [track]",
		Short: "Reformat one track, or the whole disk",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				tkey, err := disk.ParseTrackKey(args[1])
				if err != nil {
					return err
				}
				err = img.Drive().FormatTrack(tkey)
			} else {
				err = img.Drive().FormatDisk()
			}
			if err != nil {
				return err
			}
			return img.Save()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "solve <image> <track>",
		Short: "Map the sectors found on a track",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			tkey, err := disk.ParseTrackKey(args[1])
			if err != nil {
				return err
			}
			sol, err := img.Drive().TrackSolution(tkey)
			if err != nil {
				return err
			}
			fmt.Print(sol)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "nibbles <image> <track>",
		Short: "List one revolution of track bytes with mnemonics",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			tkey, err := disk.ParseTrackKey(args[1])
			if err != nil {
				return err
			}
			nibs, zone, err := img.Drive().TrackNibbles(tkey)
			if err != nil {
				return err
			}
			DumpNibbles(nibs, zone.Mnemonics(nibs))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "view <image> [track]",
		Short: "Browse tracks full screen",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			tkey := disk.Track(0)
			if len(args) == 2 {
				if tkey, err = disk.ParseTrackKey(args[1]); err != nil {
					return err
				}
			}
			return viewTracks(img, tkey)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "convert <image> <new-image>",
		Short: "Copy an image to another file type",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			return img.SaveAs(args[1])
		},
	})

	var nibSync bool
	fmtCmd := &cobra.Command{
		Use:   "fmt",
		Short: "Print the standard format of --kind as JSON",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			kind, err := selectedKind()
			if err != nil {
				return err
			}
			format, err := tracks.FormatForKind(kind, nibSync)
			if err != nil {
				return err
			}
			js, err := format.MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Println(string(js))
			return nil
		},
	}
	fmtCmd.Flags().BoolVar(&nibSync, "nib", false, "use 8-bit sync bytes")
	root.AddCommand(fmtCmd)

	var batch string
	shellCmd := &cobra.Command{
		Use:   "shell [image]",
		Short: "Interactive shell",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				if r := shellMount(args); r != 0 {
					return fmt.Errorf("could not mount %s", args[0])
				}
			}
			if batch != "" {
				f, err := os.Open(batch)
				if err != nil {
					return err
				}
				defer f.Close()
				return shellBatch(f)
			}
			if !isInteractive() {
				return shellBatch(os.Stdin)
			}
			shellDo()
			return nil
		},
	}
	shellCmd.Flags().StringVar(&batch, "shell-batch", "", "Execute shell commands from file")
	root.AddCommand(shellCmd)

	must(root.Execute())
}
