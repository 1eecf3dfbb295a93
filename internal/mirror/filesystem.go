package mirror

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSystemMirror is a filesystem-based implementation of the Mirror
// interface. It stores snapshots in a directory structure:
//
//	<root>/
//	  snapshots/
//	    <archiveID>.db       (catalog snapshots)
//	    <archiveID>.version  (version markers)
type FileSystemMirror struct {
	name         string
	root         string
	snapshotsDir string
}

// NewFileSystemMirror creates a new filesystem mirror rooted at the given path.
func NewFileSystemMirror(name, root string) (*FileSystemMirror, error) {
	snapshotsDir := filepath.Join(root, "snapshots")

	if err := os.MkdirAll(snapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	return &FileSystemMirror{
		name:         name,
		root:         root,
		snapshotsDir: snapshotsDir,
	}, nil
}

// PutSnapshot stores a catalog snapshot along with its version marker.
func (m *FileSystemMirror) PutSnapshot(archiveID string, r io.Reader, size int64, version int64) error {
	destPath := filepath.Join(m.snapshotsDir, archiveID+".db")
	if err := m.writeFile(destPath, r, size); err != nil {
		return err
	}

	versionPath := filepath.Join(m.snapshotsDir, archiveID+".version")
	versionData := strconv.FormatInt(version, 10)
	return os.WriteFile(versionPath, []byte(versionData), 0644)
}

// GetSnapshot retrieves the stored catalog snapshot and writes it to w.
func (m *FileSystemMirror) GetSnapshot(archiveID string, w io.Writer) error {
	srcPath := filepath.Join(m.snapshotsDir, archiveID+".db")

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("snapshot not found for archive: %s", archiveID)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	return nil
}

// SnapshotVersion returns the version marker for an archive's snapshot.
// Returns 0 if no version file exists.
func (m *FileSystemMirror) SnapshotVersion(archiveID string) (int64, error) {
	versionPath := filepath.Join(m.snapshotsDir, archiveID+".version")
	data, err := os.ReadFile(versionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the mirror directories are accessible.
func (m *FileSystemMirror) ValidateSetup() error {
	info, err := os.Stat(m.root)
	if err != nil {
		return fmt.Errorf("mirror root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mirror root is not a directory: %s", m.root)
	}

	info, err = os.Stat(m.snapshotsDir)
	if err != nil {
		return fmt.Errorf("mirror directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mirror path is not a directory: %s", m.snapshotsDir)
	}

	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (m *FileSystemMirror) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemMirror implements the Mirror interface
var _ Mirror = (*FileSystemMirror)(nil)
