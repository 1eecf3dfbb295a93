package mirror

import "io"

// Mirror keeps off-site copies of the catalog database. Snapshots are
// keyed by the archive ID and carry a version marker so a restore can
// tell how far behind the local catalog a copy is.
type Mirror interface {
	// PutSnapshot stores a catalog snapshot for the archive, replacing any
	// previous one, and records its version.
	PutSnapshot(archiveID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the stored catalog snapshot to w.
	GetSnapshot(archiveID string, w io.Writer) error

	// SnapshotVersion returns the stored snapshot's version marker.
	// Returns 0 if no snapshot has been stored for this archive.
	SnapshotVersion(archiveID string) (int64, error)

	// ValidateSetup verifies that the mirror backend is accessible.
	ValidateSetup() error
}
