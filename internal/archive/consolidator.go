package archive

import "fmt"

// ConsolidateStats aggregates the outcome of one consolidation pass.
type ConsolidateStats struct {
	GroupsConsolidated int
	DuplicatesRemoved  int
}

// Consolidator collapses catalog records that share a file_id into a
// single survivor. It is a pure maintenance pass over the store with no
// interaction with snapshots.
type Consolidator struct {
	store  Store
	logger Logger
}

// NewConsolidator creates a Consolidator.
func NewConsolidator(store Store, logger Logger) *Consolidator {
	return &Consolidator{store: store, logger: logger}
}

// Run consolidates every duplicate group. Within a group (ordered oldest
// first by source date, then insertion order) the first record survives,
// its rating grows by the number of duplicates, and the rest are deleted.
// Each group is computed from the closed grouping snapshot and applied in
// one transaction, so ratings never double count.
func (c *Consolidator) Run() (*ConsolidateStats, error) {
	groups, err := c.store.DuplicateGroups()
	if err != nil {
		return nil, fmt.Errorf("grouping duplicates: %w", err)
	}

	stats := &ConsolidateStats{}

	for _, group := range groups {
		if len(group.Pins) < 2 {
			// The grouping query only returns groups with duplicates.
			continue
		}

		survivor := group.Pins[0]
		duplicates := group.Pins[1:]
		if len(duplicates) >= len(group.Pins) {
			return stats, fmt.Errorf("file_id %s: %w", group.FileID, ErrNoSurvivor)
		}

		rating := survivor.Rating + int64(len(duplicates))
		deleteIDs := make([]int64, len(duplicates))
		for i, dup := range duplicates {
			deleteIDs[i] = dup.ID
		}

		if err := c.store.ConsolidateGroup(survivor.ID, rating, deleteIDs); err != nil {
			return stats, fmt.Errorf("consolidating file_id %s: %w", group.FileID, err)
		}

		stats.GroupsConsolidated++
		stats.DuplicatesRemoved += len(duplicates)

		c.logger.Info("group consolidated",
			"file_id", group.FileID,
			"survivor", survivor.PinID,
			"rating", rating,
			"removed", len(duplicates),
		)
	}

	return stats, nil
}
