package model

import "database/sql"

// Pin is one canonical catalog record, backed by a row in the pins table.
type Pin struct {
	ID               int64         // Surrogate key, auto-increment (insertion order)
	PinID            string        // External pin identifier, globally unique
	FileID           string        // 32-char lowercase hex media identifier
	FileExtension    string        // Media file extension ("jpg", "png", ...)
	SourceURL        string        // Canonical link to the pin on the source site
	OriginalMediaURL string        // Link to the full-resolution media
	SourceDate       sql.NullInt64 // Epoch seconds UTC; earliest observed date
	Rating           int64         // Count of duplicates folded into this record
}

// ParsedPin is a candidate record extracted from one snapshot document.
// It is never persisted directly; the import pipeline converts it to a Pin.
type ParsedPin struct {
	PinID            string
	FileID           string
	FileExtension    string
	SourceURL        string
	OriginalMediaURL string
	SourceDate       int64 // Epoch seconds UTC, from the snapshot's date label
}

// Pin converts a parsed candidate into a persistable record with rating 0.
func (p ParsedPin) Pin() Pin {
	return Pin{
		PinID:            p.PinID,
		FileID:           p.FileID,
		FileExtension:    p.FileExtension,
		SourceURL:        p.SourceURL,
		OriginalMediaURL: p.OriginalMediaURL,
		SourceDate:       sql.NullInt64{Int64: p.SourceDate, Valid: true},
	}
}

// ImportRun tracks a CLI operation that may mutate the catalog.
type ImportRun struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  int64         // Epoch seconds UTC
	FinishedAt sql.NullInt64 // Epoch seconds UTC; NULL while running
	Status     string        // "success" or "error"
}
