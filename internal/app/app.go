package app

import (
	"fmt"
	"os"
	"time"

	"pinarch/internal/archive"
	"pinarch/internal/config"
	"pinarch/internal/database"
	"pinarch/internal/encryption"
	"pinarch/internal/mirror"
	"pinarch/internal/model"
)

// App is the application layer between the CLI and the archive pipelines.
// It constructs all dependencies from config, exposes high-level
// operations, and manages the store lifecycle on Close.
type App struct {
	cfg          *config.Config
	store        *database.SQLiteStore
	importer     *archive.Importer
	consolidator *archive.Consolidator
	logger       archive.Logger
	op           *Operation
	logFile      *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Import",
// "Consolidate"). The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := store.MigrateUp(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	adapter := &slogAdapter{l: logger}
	return &App{
		cfg:          cfg,
		store:        store,
		importer:     archive.NewImporter(store, cfg.MediaDir(), adapter),
		consolidator: archive.NewConsolidator(store, adapter),
		logger:       adapter,
		op:           NewOperation(operation, ""),
		logFile:      logFile,
	}, nil
}

// Config returns the application configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Store exposes the catalog store to the serving layer.
func (a *App) Store() *database.SQLiteStore { return a.store }

// Logger exposes the structured logger.
func (a *App) Logger() archive.Logger { return a.logger }

// persistOperation saves the operation to the database, giving it an
// auto-increment ID. This should only be called for DB-mutating commands.
func (a *App) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	a.op.Parameters = parameters
	run, err := a.store.CreateImportRun(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = run.ID
	return nil
}

// MarkFailed records that the current operation ended in error; Close
// finalizes the run row with that status.
func (a *App) MarkFailed() {
	a.op.Status = "error"
}

// Import merges every snapshot under basePath into the catalog and
// returns the run statistics.
func (a *App) Import(basePath string) (*archive.ImportStats, error) {
	if err := a.persistOperation(basePath); err != nil {
		return nil, err
	}
	return a.importer.Run(basePath)
}

// Consolidate collapses duplicate media references into single survivors.
func (a *App) Consolidate() (*archive.ConsolidateStats, error) {
	if err := a.persistOperation(""); err != nil {
		return nil, err
	}
	return a.consolidator.Run()
}

// Stats returns the total number of catalog records.
func (a *App) Stats() (int64, error) {
	return a.store.CountPins()
}

// History returns the most recent operations, newest first.
func (a *App) History(limit int) ([]model.ImportRun, error) {
	return a.store.ListImportRuns(limit)
}

// Backup snapshots the catalog database and pushes it to the configured
// mirror. When encrypt is true the snapshot is age-encrypted with the
// configured public key first. The snapshot version is the current
// operation counter, so a mirror copy can be compared against the local
// catalog.
func (a *App) Backup(encrypt bool) error {
	m, err := mirror.NewMirrorFromConfig(a.cfg.Mirror)
	if err != nil {
		return fmt.Errorf("creating mirror: %w", err)
	}
	if err := m.ValidateSetup(); err != nil {
		return fmt.Errorf("validating mirror: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "pinarch-backup-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for backup: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	os.Remove(tmpPath) // VACUUM INTO refuses to overwrite
	defer os.Remove(tmpPath)

	if err := a.store.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}

	uploadPath := tmpPath
	if encrypt {
		enc := encryption.NewAgeEncryptor(a.cfg.Encryption)
		if !enc.IsConfigured() {
			return fmt.Errorf("encryption keys not configured (run: pinarch keys init)")
		}

		encPath := tmpPath + ".age"
		if err := encryptFile(enc, tmpPath, encPath); err != nil {
			return err
		}
		defer os.Remove(encPath)
		uploadPath = encPath
	}

	version, err := a.store.MaxImportRunID()
	if err != nil {
		return fmt.Errorf("determining backup version: %w", err)
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return fmt.Errorf("opening backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}

	if err := m.PutSnapshot(a.cfg.ArchiveID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading backup to mirror: %w", err)
	}

	a.logger.Info("catalog backed up", "mirror", a.cfg.Mirror.Type, "version", version)
	return nil
}

// RestoreBackup fetches the catalog snapshot from the mirror and writes it
// to outPath. When the stored snapshot is encrypted, passphrase unlocks
// the private key for decryption.
func (a *App) RestoreBackup(outPath string, encrypted bool, passphrase string) error {
	m, err := mirror.NewMirrorFromConfig(a.cfg.Mirror)
	if err != nil {
		return fmt.Errorf("creating mirror: %w", err)
	}

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if !encrypted {
		if err := m.GetSnapshot(a.cfg.ArchiveID, out); err != nil {
			return fmt.Errorf("fetching backup: %w", err)
		}
		return nil
	}

	enc := encryption.NewAgeEncryptor(a.cfg.Encryption)
	dctx, err := enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "pinarch-restore-*.age")
	if err != nil {
		return fmt.Errorf("creating temp file for restore: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	defer tmpFile.Close()

	if err := m.GetSnapshot(a.cfg.ArchiveID, tmpFile); err != nil {
		return fmt.Errorf("fetching backup: %w", err)
	}
	if _, err := tmpFile.Seek(0, 0); err != nil {
		return fmt.Errorf("rewinding backup: %w", err)
	}

	if err := dctx.Decrypt(tmpFile, out); err != nil {
		return fmt.Errorf("decrypting backup: %w", err)
	}

	return nil
}

// encryptFile age-encrypts src into dest.
func encryptFile(enc *encryption.AgeEncryptor, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot for encryption: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	defer out.Close()

	if err := enc.Encrypt(in, out); err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	return nil
}

// Close finalizes the operation record and closes all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.store.FinishImportRun(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
