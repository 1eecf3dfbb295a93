package archive

import "pinarch/internal/model"

// DuplicateGroup is the set of catalog records sharing one file_id,
// ordered oldest first by (source_date asc, id asc). The grouping query
// returns only groups with more than one member.
type DuplicateGroup struct {
	FileID string
	Pins   []model.Pin
}

// Store is the persistence boundary used by the import pipeline and the
// duplicate consolidator.
type Store interface {
	// PinExists reports whether a record with the given pin_id exists.
	PinExists(pinID string) (bool, error)

	// InsertPin persists the record with a new surrogate id. Returns false
	// without mutation if the pin_id already exists; calling it again with
	// the same pin_id is a no-op.
	InsertPin(pin model.Pin) (bool, error)

	// ImportSnapshot inserts all candidates from one snapshot in a single
	// transaction (the import pipeline's commit unit). Returns the number
	// inserted and the number rejected as duplicate pin_ids.
	ImportSnapshot(pins []model.Pin) (imported, duplicates int, err error)

	// CountPins returns the total number of catalog records.
	CountPins() (int64, error)

	// DuplicateGroups returns every file_id referenced by more than one
	// record, each group ordered oldest first. The result is a closed
	// snapshot: callers apply mutations without re-reading the groups.
	DuplicateGroups() ([]DuplicateGroup, error)

	// SetRating updates the rating of the record with the given surrogate id.
	SetRating(id int64, rating int64) error

	// DeletePin removes the record with the given surrogate id.
	DeletePin(id int64) error

	// ConsolidateGroup applies one group's consolidation atomically:
	// the survivor's rating is updated and every listed id is deleted,
	// all in a single transaction.
	ConsolidateGroup(survivorID int64, rating int64, deleteIDs []int64) error
}
