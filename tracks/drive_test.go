package tracks

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/nibble"
)

func formattedDrive(t *testing.T, kind disk.DiskKind, nib bool) (*Drive, *MemoryTracks) {
	t.Helper()
	format, err := FormatForKind(kind, nib)
	if err != nil {
		t.Fatal(err)
	}
	store := NewMemoryTracks(kind.TrackCount(), kind.TrackBytes)
	d, err := NewDrive(kind, format, store, nib)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.FormatDisk(); err != nil {
		t.Fatalf("format disk: %v", err)
	}
	return d, store
}

func TestDriveTrackSwitching(t *testing.T) {
	d, store := formattedDrive(t, disk.A2DOS33, false)
	if err := d.WriteSector(disk.Track(3), 7, pattern(256)); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteSector(disk.CH(10, 0), 2, bytes.Repeat([]byte{0xa5}, 256)); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadSector(disk.Motor(12, 0), 7)
	if err != nil || !bytes.Equal(got, pattern(256)) {
		t.Fatalf("track 3 lost its write across a switch (%v)", err)
	}
	if err := d.Flush(); err != nil {
		t.Fatal(err)
	}

	// a second drive over the same store sees everything
	again, err := NewDrive(disk.A2DOS33, d.Format(), store, false)
	if err != nil {
		t.Fatal(err)
	}
	got, err = again.ReadSector(disk.Track(10), 2)
	if err != nil || got[0] != 0xa5 || got[255] != 0xa5 {
		t.Fatalf("track 10 was not written back (%v)", err)
	}
}

func TestDriveErrors(t *testing.T) {
	d, _ := formattedDrive(t, disk.A2DOS33, false)
	if _, err := d.ReadSector(disk.Track(35), 0); !errors.Is(err, disk.ErrTrackCountMismatch) {
		t.Fatalf("expected track count mismatch, got %v", err)
	}
	if _, err := d.ReadSector(disk.Motor(2, 0), 0); !errors.Is(err, disk.ErrTrackCountMismatch) {
		t.Fatalf("half track should not be readable, got %v", err)
	}
	d.Volume = 100
	if _, err := d.ReadSector(disk.Track(0), 0); err != nil {
		t.Fatalf("volume is not checked when seeking: %v", err)
	}

	blank, err := NewDrive(disk.A2DOS33, DiskApple52516(0), NewMemoryTracks(35, disk.TRACK_NIBBLE_LENGTH), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := blank.ReadSector(disk.Track(0), 0); !errors.Is(err, nibble.ErrBadTrack) {
		t.Fatalf("expected bad track on a blank disk, got %v", err)
	}
}

func TestDriveNib(t *testing.T) {
	d, store := formattedDrive(t, disk.A2DOS33, true)
	if err := d.WriteSector(disk.Track(34), 15, pattern(256)); err != nil {
		t.Fatal(err)
	}
	if err := d.Flush(); err != nil {
		t.Fatal(err)
	}
	img := store.Bytes()
	if len(img) != disk.DISK_NIBBLE_LENGTH {
		t.Fatalf("nib image is %d bytes", len(img))
	}
	reloaded, err := MemoryTracksFromBytes(img, disk.TRACK_NIBBLE_LENGTH)
	if err != nil {
		t.Fatal(err)
	}
	again, err := NewDrive(disk.A2DOS33, d.Format(), reloaded, true)
	if err != nil {
		t.Fatal(err)
	}
	got, err := again.ReadSector(disk.Track(34), 15)
	if err != nil || !bytes.Equal(got, pattern(256)) {
		t.Fatalf("nib read back failed (%v)", err)
	}
	if _, err := MemoryTracksFromBytes(img[:1000], disk.TRACK_NIBBLE_LENGTH); !errors.Is(err, disk.ErrImageSizeMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
}

func TestDrive800K(t *testing.T) {
	d, _ := formattedDrive(t, disk.A2800K, false)
	if err := d.WriteSector(disk.CH(70, 1), 3, pattern(524)); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadSector(disk.CH(70, 1), 3)
	if err != nil || !bytes.Equal(got, pattern(524)) {
		t.Fatalf("800K read back failed (%v)", err)
	}
	sol, err := d.TrackSolution(disk.CH(70, 1))
	if err != nil {
		t.Fatal(err)
	}
	if sol.Cylinder != 70 || sol.Head != 1 || sol.SectorCount() != 8 || sol.SpeedKbps != 500 {
		t.Fatalf("unexpected solution %s", sol)
	}
	nibs, zone, err := d.TrackNibbles(disk.CH(0, 0))
	if err != nil || zone.SectorCount() != 12 || len(nibs) < 9000 {
		t.Fatalf("track nibbles %d (%v)", len(nibs), err)
	}
}

func TestDriveConcurrentAccess(t *testing.T) {
	d, _ := formattedDrive(t, disk.A2DOS33, false)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// every goroutine drags the head to a different track
			errs <- d.WriteSector(disk.Track(n*4), byte(n), bytes.Repeat([]byte{byte(n + 1)}, 256))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 8; i++ {
		got, err := d.ReadSector(disk.Track(i*4), byte(i))
		if err != nil || got[0] != byte(i+1) || got[255] != byte(i+1) {
			t.Fatalf("track %d lost its write (%v)", i*4, err)
		}
	}
}
