package archive_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pinarch/internal/archive"
	"pinarch/internal/testutil"
)

// fixture is a snapshot export layout on disk: dated snapshot directories
// plus an originals/ media directory.
type fixture struct {
	base     string
	mediaDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	mediaDir := filepath.Join(base, "originals")
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		t.Fatalf("creating media dir: %v", err)
	}
	return &fixture{base: base, mediaDir: mediaDir}
}

func (f *fixture) addMedia(t *testing.T, fileID, ext string) {
	t.Helper()
	path := filepath.Join(f.mediaDir, fileID+"."+ext)
	if err := os.WriteFile(path, []byte("blob"), 0644); err != nil {
		t.Fatalf("writing media blob: %v", err)
	}
}

func (f *fixture) addSnapshot(t *testing.T, date string, pins ...string) {
	t.Helper()
	dir := filepath.Join(f.base, date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating snapshot dir: %v", err)
	}
	doc := "<html><body>" + strings.Join(pins, "\n") + "</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "feed.html"), []byte(doc), 0644); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}
}

func hex32(c byte) string {
	return strings.Repeat(string(c), 32)
}

func pinEntry(pinID, fileID, ext string) string {
	url := fmt.Sprintf("https://i.pinimg.com/originals/%s/%s/%s/%s.%s",
		fileID[0:2], fileID[2:4], fileID[4:6], fileID, ext)
	return fmt.Sprintf(`<div data-test-pin-id="%s"><img srcset="%s 1x"></div>`, pinID, url)
}

func TestImporter_Run(t *testing.T) {
	t.Run("imports a snapshot set and is idempotent", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		f := newFixture(t)
		f1, f2 := hex32('a'), hex32('b')
		f.addMedia(t, f1, "jpg")
		f.addMedia(t, f2, "jpg")
		f.addSnapshot(t, "20240101",
			pinEntry("101", f1, "jpg"),
			pinEntry("102", f1, "jpg"),
			pinEntry("103", f2, "jpg"),
		)

		im := archive.NewImporter(store, f.mediaDir, archive.NewNopLogger())

		stats, err := im.Run(f.base)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.SnapshotsProcessed != 1 {
			t.Errorf("SnapshotsProcessed = %d, want 1", stats.SnapshotsProcessed)
		}
		if stats.PinsFound != 3 {
			t.Errorf("PinsFound = %d, want 3", stats.PinsFound)
		}
		if stats.PinsImported != 3 {
			t.Errorf("PinsImported = %d, want 3", stats.PinsImported)
		}
		if stats.TotalInStore != 3 {
			t.Errorf("TotalInStore = %d, want 3", stats.TotalInStore)
		}

		// Second run inserts nothing; every candidate is a known pin_id.
		stats, err = im.Run(f.base)
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}
		if stats.PinsImported != 0 {
			t.Errorf("PinsImported = %d, want 0", stats.PinsImported)
		}
		if stats.PinsSkippedDuplicate != 3 {
			t.Errorf("PinsSkippedDuplicate = %d, want 3", stats.PinsSkippedDuplicate)
		}
		if stats.TotalInStore != 3 {
			t.Errorf("TotalInStore = %d, want 3", stats.TotalInStore)
		}
	})

	t.Run("skips candidates without a media blob", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		f := newFixture(t)
		present, absent := hex32('c'), hex32('d')
		f.addMedia(t, present, "jpg")
		f.addSnapshot(t, "20240101",
			pinEntry("201", present, "jpg"),
			pinEntry("202", absent, "jpg"),
		)

		im := archive.NewImporter(store, f.mediaDir, archive.NewNopLogger())

		stats, err := im.Run(f.base)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.PinsFound != 2 {
			t.Errorf("PinsFound = %d, want 2", stats.PinsFound)
		}
		if stats.PinsImported != 1 {
			t.Errorf("PinsImported = %d, want 1", stats.PinsImported)
		}
		if stats.PinsSkippedMissingMedia != 1 {
			t.Errorf("PinsSkippedMissingMedia = %d, want 1", stats.PinsSkippedMissingMedia)
		}
		if got := stats.PinsImported + stats.PinsSkippedDuplicate + stats.PinsSkippedMissingMedia; got != stats.PinsFound {
			t.Errorf("accounting mismatch: %d counted, %d found", got, stats.PinsFound)
		}

		pin, err := store.FindPinByPinID("202")
		if err != nil {
			t.Fatalf("FindPinByPinID() error = %v", err)
		}
		if pin != nil {
			t.Error("candidate without media was inserted")
		}
	})

	t.Run("keeps the oldest snapshot's source date", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		f := newFixture(t)
		fileID := hex32('e')
		f.addMedia(t, fileID, "jpg")
		f.addSnapshot(t, "20240101", pinEntry("301", fileID, "jpg"))
		f.addSnapshot(t, "20240105", pinEntry("301", fileID, "jpg"))

		im := archive.NewImporter(store, f.mediaDir, archive.NewNopLogger())

		stats, err := im.Run(f.base)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.SnapshotsProcessed != 2 {
			t.Errorf("SnapshotsProcessed = %d, want 2", stats.SnapshotsProcessed)
		}
		if stats.PinsImported != 1 || stats.PinsSkippedDuplicate != 1 {
			t.Errorf("imported = %d, duplicates = %d, want 1 and 1",
				stats.PinsImported, stats.PinsSkippedDuplicate)
		}

		pin, err := store.FindPinByPinID("301")
		if err != nil {
			t.Fatalf("FindPinByPinID() error = %v", err)
		}
		if pin == nil {
			t.Fatal("pin 301 not found")
		}
		want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
		if !pin.SourceDate.Valid || pin.SourceDate.Int64 != want {
			t.Errorf("SourceDate = %v, want %d", pin.SourceDate, want)
		}
	})

	t.Run("returns committed stats when a snapshot fails to scan", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		f := newFixture(t)
		f.addSnapshot(t, "20240001", pinEntry("401", hex32('f'), "jpg"))

		im := archive.NewImporter(store, f.mediaDir, archive.NewNopLogger())

		if _, err := im.Run(f.base); err == nil {
			t.Fatal("Run() expected error for invalid date directory")
		}
	})

	t.Run("empty base yields empty stats", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		f := newFixture(t)

		im := archive.NewImporter(store, f.mediaDir, archive.NewNopLogger())

		stats, err := im.Run(f.base)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.SnapshotsProcessed != 0 || stats.PinsFound != 0 || stats.TotalInStore != 0 {
			t.Errorf("stats = %+v, want all zero", stats)
		}
	})
}
