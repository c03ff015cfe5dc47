package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/loggy"
	"github.com/paleotronic/trackm8/tracks"
)

type ImageType int

const (
	IT_NIB ImageType = iota
	IT_TRK
	IT_DOS
	IT_PRODOS
	IT_D13
)

func (it ImageType) String() string {
	switch it {
	case IT_NIB:
		return "NIB track image"
	case IT_TRK:
		return "raw track image"
	case IT_DOS:
		return "DOS ordered sector image"
	case IT_PRODOS:
		return "ProDOS ordered sector image"
	case IT_D13:
		return "13 sector image"
	}
	return "unknown"
}

// sectorImage reports whether the file holds decoded sectors rather than
// track buffers.
func (it ImageType) sectorImage() bool {
	return it == IT_DOS || it == IT_PRODOS || it == IT_D13
}

func is2MG(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".2mg" || ext == ".2img"
}

// inner2MG picks what a 2MG file made from an image of type it will hold.
func inner2MG(kind disk.DiskKind, it ImageType) (ImageType, disk.Format2MG, error) {
	switch {
	case it == IT_NIB:
		return IT_NIB, disk.F2MG_NIB, nil
	case kind.Is525() && kind.SectorsPerTrack == disk.STD_SECTORS_PER_TRACK:
		if it == IT_PRODOS {
			return IT_PRODOS, disk.F2MG_PRODOS, nil
		}
		return IT_DOS, disk.F2MG_DOS, nil
	case !kind.Is525():
		return IT_PRODOS, disk.F2MG_PRODOS, nil
	}
	return 0, 0, fmt.Errorf("%w: 2MG cannot hold %s", disk.ErrImageTypeMismatch, kind)
}

func imageTypeFor(filename string) (ImageType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".nib":
		return IT_NIB, nil
	case ".trk":
		return IT_TRK, nil
	case ".dsk", ".do":
		return IT_DOS, nil
	case ".po":
		return IT_PRODOS, nil
	case ".d13":
		return IT_D13, nil
	case ".2mg", ".2img":
		// the header decides; this is only a default
		return IT_PRODOS, nil
	}
	return 0, fmt.Errorf("%w: %s", disk.ErrImageTypeMismatch, filepath.Base(filename))
}

// kindForSize picks a disk kind from the size of a sector image.
func kindForSize(it ImageType, size int) (disk.DiskKind, error) {
	switch {
	case it == IT_D13 && size == disk.STD_DISK_BYTES_OLD:
		return disk.A2DOS32, nil
	case it != IT_D13 && size == disk.STD_DISK_BYTES:
		return disk.A2DOS33, nil
	case it == IT_PRODOS && size == 800*512:
		return disk.A2400K, nil
	case it == IT_PRODOS && size == 1600*512:
		return disk.A2800K, nil
	}
	return disk.DiskKind{}, fmt.Errorf("%w: %d bytes as %s", disk.ErrImageSizeMismatch, size, it)
}

// Image is a disk image held as track buffers behind a Drive, no matter how
// it is stored on disk.
type Image struct {
	Filename string
	Type     ImageType
	Kind     disk.DiskKind
	// Wrap2MG is set when the file carries a 2MG header
	Wrap2MG bool

	store *tracks.MemoryTracks
	drive *tracks.Drive
}

func (img *Image) Drive() *tracks.Drive {
	return img.drive
}

func newImage(filename string, it ImageType, kind disk.DiskKind, format *tracks.DiskFormat, store *tracks.MemoryTracks) (*Image, error) {
	nib := it == IT_NIB
	if format == nil {
		var err error
		if format, err = tracks.FormatForKind(kind, nib); err != nil {
			return nil, err
		}
	}
	drive, err := tracks.NewDrive(kind, format, store, nib)
	if err != nil {
		return nil, err
	}
	return &Image{Filename: filename, Type: it, Kind: kind, store: store, drive: drive}, nil
}

// NewImage makes a freshly formatted image. A nil format selects the
// standard format for the kind.
func NewImage(filename string, kind disk.DiskKind, format *tracks.DiskFormat) (*Image, error) {
	it, err := imageTypeFor(filename)
	if err != nil {
		return nil, err
	}
	if it == IT_NIB && !kind.Is525() {
		return nil, fmt.Errorf("%w: NIB images hold 5.25 disks only", disk.ErrImageTypeMismatch)
	}
	wrap := is2MG(filename)
	if wrap {
		if it, _, err = inner2MG(kind, IT_DOS); err != nil {
			return nil, err
		}
	}
	img, err := newImage(filename, it, kind, format, tracks.NewMemoryTracks(kind.TrackCount(), kind.TrackBytes))
	if err != nil {
		return nil, err
	}
	img.Wrap2MG = wrap
	loggy.Get(loggy.App).Logf("formatting %s as %s", filename, kind)
	if err := img.drive.FormatDisk(); err != nil {
		return nil, err
	}
	return img, nil
}

// LoadImage reads an image file. The kind is only consulted where the file
// cannot say for itself.
func LoadImage(filename string, kind disk.DiskKind, format *tracks.DiskFormat) (*Image, error) {
	it, err := imageTypeFor(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	log := loggy.Get(loggy.App)

	wrap := is2MG(filename)
	vol := byte(disk.STD_VOLUME)
	if wrap {
		h, payload, err := disk.Parse2MG(data)
		if err != nil {
			return nil, err
		}
		switch h.GetImageFormat() {
		case disk.F2MG_DOS:
			it = IT_DOS
		case disk.F2MG_NIB:
			it = IT_NIB
		}
		vol, _ = h.GetVolume()
		log.Logf("2MG from creator %q, %d bytes of disk data", h.GetCreatorID(), len(payload))
		data = payload
	}
	log.Logf("loading %s (%d bytes) as %s", filename, len(data), it)

	if it.sectorImage() {
		if kind, err = kindForSize(it, len(data)); err != nil {
			return nil, err
		}
		img, err := newImage(filename, it, kind, format, tracks.NewMemoryTracks(kind.TrackCount(), kind.TrackBytes))
		if err != nil {
			return nil, err
		}
		img.Wrap2MG = wrap
		img.drive.Volume = vol
		if err := img.drive.FormatDisk(); err != nil {
			return nil, err
		}
		if err := img.putSectors(data); err != nil {
			return nil, err
		}
		return img, img.drive.Flush()
	}

	if it == IT_NIB && !kind.Is525() {
		kind = disk.A2DOS33
	}
	store, err := tracks.MemoryTracksFromBytes(data, kind.TrackBytes)
	if err != nil {
		return nil, err
	}
	if store.TrackCount() != kind.TrackCount() {
		return nil, fmt.Errorf("%w: %d tracks in image, %s has %d",
			disk.ErrTrackCountMismatch, store.TrackCount(), kind, kind.TrackCount())
	}
	img, err := newImage(filename, it, kind, format, store)
	if err != nil {
		return nil, err
	}
	img.Wrap2MG = wrap
	img.drive.Volume = vol
	return img, nil
}

// sectorSlot locates one sector of a sector image.
type sectorSlot struct {
	tkey   disk.TrackKey
	sec    byte
	offset int
	size   int
}

// sectorLayout lists where each sector of a sector image lives on the disk.
func (img *Image) sectorLayout() ([]sectorSlot, error) {
	var out []sectorSlot
	k := img.Kind
	switch {
	case k.Is525():
		// image position to physical sector
		toPhys := disk.Linear(k.SectorsPerTrack)
		switch img.Type {
		case IT_DOS:
			toPhys = disk.DOS33_LOGICAL_TO_PHYSICAL
		case IT_PRODOS:
			toPhys = disk.Invert(disk.PRODOS_SECTOR_ORDER)
		}
		size := k.SectorSize
		for t := 0; t < k.Cylinders; t++ {
			for pos := 0; pos < k.SectorsPerTrack; pos++ {
				out = append(out, sectorSlot{
					tkey:   disk.Track(t),
					sec:    byte(toPhys[pos]),
					offset: (t*k.SectorsPerTrack + pos) * size,
					size:   size,
				})
			}
		}
	default:
		// 3.5 blocks run through every sector of a side before the next
		// head; each block is the last 512 bytes of a tagged sector.
		block := 0
		for cyl := 0; cyl < k.Cylinders; cyl++ {
			for head := 0; head < k.Heads; head++ {
				zone, err := img.drive.Format().ZoneFor(cyl*k.MotorStepsPerCyl, head)
				if err != nil {
					return nil, err
				}
				for sec := 0; sec < zone.SectorCount(); sec++ {
					out = append(out, sectorSlot{
						tkey:   disk.CH(cyl, head),
						sec:    byte(sec),
						offset: block * 512,
						size:   512,
					})
					block++
				}
			}
		}
	}
	return out, nil
}

const tagBytes = disk.TAGGED_BYTES_PER_SECTOR - 512

func (img *Image) putSectors(data []byte) error {
	layout, err := img.sectorLayout()
	if err != nil {
		return err
	}
	for _, s := range layout {
		if s.offset+s.size > len(data) {
			return fmt.Errorf("%w: sector at %d past end of image", disk.ErrImageSizeMismatch, s.offset)
		}
		dat := data[s.offset : s.offset+s.size]
		if s.size == 512 {
			dat = append(make([]byte, tagBytes), dat...)
		}
		if err := img.drive.WriteSector(s.tkey, s.sec, dat); err != nil {
			return fmt.Errorf("%s sector %d: %w", s.tkey, s.sec, err)
		}
	}
	return nil
}

func (img *Image) getSectors() ([]byte, error) {
	layout, err := img.sectorLayout()
	if err != nil {
		return nil, err
	}
	var total int
	for _, s := range layout {
		total = max(total, s.offset+s.size)
	}
	out := make([]byte, total)
	for _, s := range layout {
		dat, err := img.drive.ReadSector(s.tkey, s.sec)
		if err != nil {
			return nil, fmt.Errorf("%s sector %d: %w", s.tkey, s.sec, err)
		}
		if s.size == 512 && len(dat) > 512 {
			dat = dat[len(dat)-512:]
		}
		copy(out[s.offset:s.offset+s.size], dat)
	}
	return out, nil
}

// Bytes renders the image in its file format.
func (img *Image) Bytes() ([]byte, error) {
	if err := img.drive.Flush(); err != nil {
		return nil, err
	}
	var data []byte
	if img.Type.sectorImage() {
		var err error
		if data, err = img.getSectors(); err != nil {
			return nil, err
		}
	} else {
		data = img.store.Bytes()
	}
	if img.Wrap2MG {
		_, f, err := inner2MG(img.Kind, img.Type)
		if err != nil {
			return nil, err
		}
		data = disk.Build2MG(f, img.drive.Volume, data)
	}
	return data, nil
}

// SaveAs writes the image to filename, converting between file formats as
// the extension asks.
func (img *Image) SaveAs(filename string) error {
	it, err := imageTypeFor(filename)
	if err != nil {
		return err
	}
	wrap := is2MG(filename)
	if wrap {
		if it, _, err = inner2MG(img.Kind, img.Type); err != nil {
			return err
		}
	}
	out := img
	switch {
	case (it == IT_NIB) != (img.Type == IT_NIB):
		// sync widths differ, so the tracks are laid down again
		if out, err = img.reencode(filename, it, wrap); err != nil {
			return err
		}
	case it != img.Type || wrap != img.Wrap2MG:
		out = &Image{Filename: filename, Type: it, Kind: img.Kind, Wrap2MG: wrap, store: img.store, drive: img.drive}
	}
	data, err := out.Bytes()
	if err != nil {
		return err
	}
	if _, err := os.Stat(filename); err == nil {
		backupFile(filename)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}
	loggy.Get(loggy.App).Logf("saved %s (%d bytes)", filename, len(data))
	return nil
}

// reencode copies every sector onto freshly formatted tracks of another
// image type.
func (img *Image) reencode(filename string, it ImageType, wrap bool) (*Image, error) {
	kind := img.Kind
	if it == IT_NIB && !kind.Is525() {
		return nil, fmt.Errorf("%w: NIB images hold 5.25 disks only", disk.ErrImageTypeMismatch)
	}
	out, err := newImage(filename, it, kind, nil, tracks.NewMemoryTracks(kind.TrackCount(), kind.TrackBytes))
	if err != nil {
		return nil, err
	}
	out.Wrap2MG = wrap
	out.drive.Volume = img.drive.Volume
	if err := out.drive.FormatDisk(); err != nil {
		return nil, err
	}
	layout, err := img.sectorLayout()
	if err != nil {
		return nil, err
	}
	for _, s := range layout {
		dat, err := img.drive.ReadSector(s.tkey, s.sec)
		if err != nil {
			return nil, fmt.Errorf("%s sector %d: %w", s.tkey, s.sec, err)
		}
		if err := out.drive.WriteSector(s.tkey, s.sec, dat); err != nil {
			return nil, fmt.Errorf("%s sector %d: %w", s.tkey, s.sec, err)
		}
	}
	loggy.Get(loggy.App).Logf("re-encoded %d sectors as %s", len(layout), it)
	return out, nil
}

func (img *Image) Save() error {
	return img.SaveAs(img.Filename)
}

func fts() string {
	t := time.Now()
	return fmt.Sprintf(
		"%.4d%.2d%.2d%.2d%.2d%.2d",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
	)
}

func backupFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	path, _ = filepath.Abs(path)
	path = strings.Replace(path, ":", "", -1)
	path = strings.Replace(path, "\\", "/", -1)

	bpath := filepath.Join(binpath(), "backup", path+"."+fts())
	os.MkdirAll(filepath.Dir(bpath), 0755)

	if err := os.WriteFile(bpath, data, 0644); err != nil {
		return err
	}

	loggy.Get(loggy.App).Logf("backed up disk to: %s", bpath)
	return nil
}
