package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Snapshot is one discovered snapshot document: an HTML capture of the
// source site's feed, labeled by the capture date of its parent directory.
type Snapshot struct {
	Path string
	Date time.Time // Calendar date, midnight UTC
}

// SourceDate returns the snapshot's date label as epoch seconds UTC.
func (s Snapshot) SourceDate() int64 {
	return s.Date.Unix()
}

var dateDirPattern = regexp.MustCompile(`^\d{8}$`)

// reservedDirs are directory names under the base that never hold
// snapshots: media storage and pipeline code.
var reservedDirs = map[string]bool{
	"originals": true,
	"src":       true,
}

// ScanSnapshots discovers snapshot documents under baseDir, sorted by date
// label ascending (oldest first). Only directories named as an 8-digit
// calendar date are considered; order among same-date documents follows
// the filesystem listing. A directory name matching the digit pattern but
// not a valid calendar date is a fatal error at scan time.
func ScanSnapshots(baseDir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading base directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if !entry.IsDir() || reservedDirs[entry.Name()] {
			continue
		}
		if !dateDirPattern.MatchString(entry.Name()) {
			continue
		}

		date, err := time.ParseInLocation("20060102", entry.Name(), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot date directory %q: %w", entry.Name(), err)
		}

		docs, err := filepath.Glob(filepath.Join(baseDir, entry.Name(), "*.html"))
		if err != nil {
			return nil, fmt.Errorf("listing snapshot directory %q: %w", entry.Name(), err)
		}

		for _, doc := range docs {
			snapshots = append(snapshots, Snapshot{Path: doc, Date: date})
		}
	}

	// ReadDir returns entries sorted by name, which for 8-digit date labels
	// is already chronological; the stable sort keeps same-date documents
	// in listing order.
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Date.Before(snapshots[j].Date)
	})

	return snapshots, nil
}
