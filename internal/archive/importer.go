package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"pinarch/internal/model"
)

// ImportStats aggregates the outcome of one import run.
type ImportStats struct {
	SnapshotsProcessed      int
	PinsFound               int
	PinsImported            int
	PinsSkippedDuplicate    int
	PinsSkippedMissingMedia int
	TotalInStore            int64
}

// Importer merges snapshot documents into the catalog. Runs are idempotent:
// re-importing an unchanged snapshot set inserts nothing and counts every
// candidate as a duplicate.
type Importer struct {
	store    Store
	mediaDir string
	logger   Logger
}

// NewImporter creates an Importer. mediaDir is the directory of
// content-addressed media blobs (<file_id>.<ext>); candidates without a
// blob there are skipped, never inserted.
func NewImporter(store Store, mediaDir string, logger Logger) *Importer {
	return &Importer{
		store:    store,
		mediaDir: mediaDir,
		logger:   logger,
	}
}

// Run imports every snapshot under baseDir in chronological order. All
// inserts for one snapshot are committed together before the next snapshot
// is processed; if extraction or storage fails mid-run, prior snapshots
// remain committed and the returned stats reflect the committed work.
// The importer performs no network activity.
func (im *Importer) Run(baseDir string) (*ImportStats, error) {
	snapshots, err := ScanSnapshots(baseDir)
	if err != nil {
		return nil, fmt.Errorf("scanning snapshots: %w", err)
	}

	stats := &ImportStats{}

	for _, snap := range snapshots {
		pins, err := ExtractSnapshot(snap.Path, snap.SourceDate())
		if err != nil {
			return stats, err
		}
		stats.PinsFound += len(pins)

		records := make([]model.Pin, 0, len(pins))
		for _, pin := range pins {
			if !im.mediaExists(pin.FileID, pin.FileExtension) {
				stats.PinsSkippedMissingMedia++
				continue
			}
			records = append(records, pin.Pin())
		}

		imported, duplicates, err := im.store.ImportSnapshot(records)
		if err != nil {
			return stats, fmt.Errorf("importing snapshot %s: %w", snap.Path, err)
		}

		stats.SnapshotsProcessed++
		stats.PinsImported += imported
		stats.PinsSkippedDuplicate += duplicates

		im.logger.Info("snapshot imported",
			"path", snap.Path,
			"found", len(pins),
			"imported", imported,
			"duplicates", duplicates,
		)
	}

	total, err := im.store.CountPins()
	if err != nil {
		return stats, fmt.Errorf("counting pins: %w", err)
	}
	stats.TotalInStore = total

	return stats, nil
}

// mediaExists checks for the blob at the path built from the candidate's
// file id and extension.
func (im *Importer) mediaExists(fileID, ext string) bool {
	_, err := os.Stat(filepath.Join(im.mediaDir, fileID+"."+ext))
	return err == nil
}
