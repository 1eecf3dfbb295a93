package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pinarch/internal/archive"
	"pinarch/internal/database/migrations"
	"pinarch/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const pinColumns = "id, pin_id, file_id, file_extension, source_url, original_media_url, source_date, rating"

// SQLiteStore implements the archive.Store interface plus the queries the
// serving layer needs, using SQLite. Rows are mapped to model types here
// and nowhere else.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite database connection.
// This is exported for use in tools and tests that need a properly
// configured SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// The catalog is single-writer; one connection also keeps ":memory:"
	// databases from being duplicated across pool connections.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Pin operations

// PinExists reports whether a record with the given pin_id exists.
func (s *SQLiteStore) PinExists(pinID string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM pins WHERE pin_id = ?", pinID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking pin existence: %w", err)
	}
	return true, nil
}

const insertPinSQL = `
INSERT INTO pins (pin_id, file_id, file_extension, source_url, original_media_url, source_date, rating)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(pin_id) DO NOTHING`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertPin(e execer, pin model.Pin) (bool, error) {
	res, err := e.Exec(insertPinSQL,
		pin.PinID, pin.FileID, pin.FileExtension,
		pin.SourceURL, pin.OriginalMediaURL, pin.SourceDate, pin.Rating)
	if err != nil {
		return false, fmt.Errorf("inserting pin %s: %w", pin.PinID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting pin %s: %w", pin.PinID, err)
	}
	return affected == 1, nil
}

// InsertPin persists the record with a new surrogate id and returns true.
// If the pin_id already exists nothing is mutated and it returns false;
// repeated calls with the same pin_id are no-ops.
func (s *SQLiteStore) InsertPin(pin model.Pin) (bool, error) {
	return insertPin(s.db, pin)
}

// ImportSnapshot inserts all candidates from one snapshot in a single
// transaction. Returns the number inserted and the number rejected as
// duplicate pin_ids.
func (s *SQLiteStore) ImportSnapshot(pins []model.Pin) (int, int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	imported, duplicates := 0, 0
	for _, pin := range pins {
		inserted, err := insertPin(tx, pin)
		if err != nil {
			return 0, 0, err
		}
		if inserted {
			imported++
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing transaction: %w", err)
	}

	return imported, duplicates, nil
}

// CountPins returns the total number of catalog records.
func (s *SQLiteStore) CountPins() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pins").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting pins: %w", err)
	}
	return count, nil
}

// DuplicateGroups returns every file_id referenced by more than one record.
// Groups are ordered oldest first by (source_date asc, id asc). The whole
// result is read before returning, so callers work against a closed
// snapshot of group membership.
func (s *SQLiteStore) DuplicateGroups() ([]archive.DuplicateGroup, error) {
	rows, err := s.db.Query(`
		SELECT ` + pinColumns + `
		FROM pins
		WHERE file_id IN (SELECT file_id FROM pins GROUP BY file_id HAVING COUNT(*) > 1)
		ORDER BY file_id, source_date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []archive.DuplicateGroup
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		if len(groups) == 0 || groups[len(groups)-1].FileID != pin.FileID {
			groups = append(groups, archive.DuplicateGroup{FileID: pin.FileID})
		}
		last := &groups[len(groups)-1]
		last.Pins = append(last.Pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading duplicate groups: %w", err)
	}

	return groups, nil
}

// SetRating updates the rating of the record with the given surrogate id.
func (s *SQLiteStore) SetRating(id int64, rating int64) error {
	if _, err := s.db.Exec("UPDATE pins SET rating = ? WHERE id = ?", rating, id); err != nil {
		return fmt.Errorf("setting rating: %w", err)
	}
	return nil
}

// DeletePin removes the record with the given surrogate id.
func (s *SQLiteStore) DeletePin(id int64) error {
	if _, err := s.db.Exec("DELETE FROM pins WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting pin: %w", err)
	}
	return nil
}

// ConsolidateGroup updates the survivor's rating and deletes every listed
// id in a single transaction.
func (s *SQLiteStore) ConsolidateGroup(survivorID int64, rating int64, deleteIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE pins SET rating = ? WHERE id = ?", rating, survivorID); err != nil {
		return fmt.Errorf("updating survivor rating: %w", err)
	}

	for _, id := range deleteIDs {
		if _, err := tx.Exec("DELETE FROM pins WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting duplicate %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Serving-layer queries

// ListPins returns one page of records. sort is "newest", "oldest", or
// "random"; newest/oldest order over (source_date, id).
func (s *SQLiteStore) ListPins(offset, limit int, sort string) ([]model.Pin, error) {
	var orderClause string
	switch sort {
	case "oldest":
		orderClause = "ORDER BY source_date ASC, id ASC"
	case "random":
		orderClause = "ORDER BY RANDOM()"
	case "newest":
		orderClause = "ORDER BY source_date DESC, id DESC"
	default:
		return nil, fmt.Errorf("unknown sort order: %s", sort)
	}

	rows, err := s.db.Query(
		"SELECT "+pinColumns+" FROM pins "+orderClause+" LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing pins: %w", err)
	}
	defer rows.Close()

	var pins []model.Pin
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading pins: %w", err)
	}

	return pins, nil
}

// FindPinByPinID returns the record with the given pin_id, or nil if none.
func (s *SQLiteStore) FindPinByPinID(pinID string) (*model.Pin, error) {
	return s.findPin("pin_id", pinID)
}

// FindPinByFileID returns one record referencing the given file_id, or nil
// if none. After consolidation the match is unique.
func (s *SQLiteStore) FindPinByFileID(fileID string) (*model.Pin, error) {
	return s.findPin("file_id", fileID)
}

func (s *SQLiteStore) findPin(column, value string) (*model.Pin, error) {
	row := s.db.QueryRow("SELECT "+pinColumns+" FROM pins WHERE "+column+" = ? LIMIT 1", value)
	pin, err := scanPin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

// DeletePinByPinID removes the record with the given pin_id.
func (s *SQLiteStore) DeletePinByPinID(pinID string) error {
	if _, err := s.db.Exec("DELETE FROM pins WHERE pin_id = ?", pinID); err != nil {
		return fmt.Errorf("deleting pin %s: %w", pinID, err)
	}
	return nil
}

// Import run tracking

// CreateImportRun records the start of a DB-mutating command.
func (s *SQLiteStore) CreateImportRun(operation, parameters string) (*model.ImportRun, error) {
	startedAt := time.Now().UTC().Unix()
	res, err := s.db.Exec(
		"INSERT INTO import_runs (operation, parameters, started_at) VALUES (?, ?, ?)",
		operation, parameters, startedAt)
	if err != nil {
		return nil, fmt.Errorf("creating import run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating import run: %w", err)
	}
	return &model.ImportRun{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt,
		Status:     "success",
	}, nil
}

// FinishImportRun stamps the run's finish time and final status.
func (s *SQLiteStore) FinishImportRun(id int64, status string) error {
	_, err := s.db.Exec(
		"UPDATE import_runs SET finished_at = ?, status = ? WHERE id = ?",
		time.Now().UTC().Unix(), status, id)
	if err != nil {
		return fmt.Errorf("finishing import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListImportRuns(limit int) ([]model.ImportRun, error) {
	rows, err := s.db.Query(`
		SELECT id, operation, parameters, started_at, finished_at, status
		FROM import_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing import runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		var run model.ImportRun
		if err := rows.Scan(&run.ID, &run.Operation, &run.Parameters,
			&run.StartedAt, &run.FinishedAt, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning import run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading import runs: %w", err)
	}

	return runs, nil
}

// MaxImportRunID returns the highest run id, or 0 for a fresh catalog.
func (s *SQLiteStore) MaxImportRunID() (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(id) FROM import_runs").Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max import run id: %w", err)
	}
	return id.Int64, nil
}

// Lifecycle

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPin(row rowScanner) (model.Pin, error) {
	var pin model.Pin
	err := row.Scan(&pin.ID, &pin.PinID, &pin.FileID, &pin.FileExtension,
		&pin.SourceURL, &pin.OriginalMediaURL, &pin.SourceDate, &pin.Rating)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Pin{}, err
	}
	if err != nil {
		return model.Pin{}, fmt.Errorf("scanning pin: %w", err)
	}
	return pin, nil
}

// Compile-time check that SQLiteStore implements archive.Store interface
var _ archive.Store = (*SQLiteStore)(nil)
