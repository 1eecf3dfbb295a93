package mirror

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MemoryMirror is an in-memory implementation of the Mirror interface,
// useful for testing. This implementation is safe for concurrent use.
type MemoryMirror struct {
	name      string
	snapshots map[string][]byte // archiveID -> snapshot
	versions  map[string]int64  // archiveID -> version
	mu        sync.RWMutex
}

// NewMemoryMirror creates a new in-memory mirror with the given name.
func NewMemoryMirror(name string) *MemoryMirror {
	return &MemoryMirror{
		name:      name,
		snapshots: make(map[string][]byte),
		versions:  make(map[string]int64),
	}
}

// PutSnapshot stores a catalog snapshot along with its version marker.
func (m *MemoryMirror) PutSnapshot(archiveID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[archiveID] = data
	m.versions[archiveID] = version
	return nil
}

// GetSnapshot retrieves the stored catalog snapshot.
func (m *MemoryMirror) GetSnapshot(archiveID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshots[archiveID]
	if !ok {
		return fmt.Errorf("snapshot not found for archive: %s", archiveID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// SnapshotVersion returns the version marker for an archive's snapshot.
// Returns 0 if no snapshot has been stored.
func (m *MemoryMirror) SnapshotVersion(archiveID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[archiveID], nil
}

// ValidateSetup always succeeds for in-memory mirror.
func (m *MemoryMirror) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryMirror implements the Mirror interface
var _ Mirror = (*MemoryMirror)(nil)
