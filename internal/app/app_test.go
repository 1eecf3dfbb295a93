package app_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pinarch/internal/app"
	"pinarch/internal/config"
	"pinarch/internal/database"
	"pinarch/internal/encryption"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-archive", base)
	if err := os.MkdirAll(cfg.MediaDir(), 0755); err != nil {
		t.Fatalf("creating media dir: %v", err)
	}
	return cfg
}

func writeSnapshot(t *testing.T, cfg *config.Config, date string, pinIDs ...string) {
	t.Helper()
	dir := filepath.Join(cfg.BaseDir, date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating snapshot dir: %v", err)
	}

	var entries []string
	for i, pinID := range pinIDs {
		fileID := strings.Repeat(fmt.Sprintf("%x", i%16), 32)
		url := fmt.Sprintf("https://i.pinimg.com/originals/%s/%s/%s/%s.jpg",
			fileID[0:2], fileID[2:4], fileID[4:6], fileID)
		entries = append(entries, fmt.Sprintf(
			`<div data-test-pin-id="%s"><img srcset="%s 1x"></div>`, pinID, url))

		blob := filepath.Join(cfg.MediaDir(), fileID+".jpg")
		if err := os.WriteFile(blob, []byte("blob"), 0644); err != nil {
			t.Fatalf("writing media blob: %v", err)
		}
	}

	doc := "<html><body>" + strings.Join(entries, "\n") + "</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "feed.html"), []byte(doc), 0644); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}
}

func TestApp_ImportAndHistory(t *testing.T) {
	cfg := testConfig(t)
	writeSnapshot(t, cfg, "20240101", "101", "102")

	a, err := app.NewApp(cfg, "Import")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	stats, err := a.Import(cfg.BaseDir)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if stats.PinsImported != 2 {
		t.Errorf("PinsImported = %d, want 2", stats.PinsImported)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The run outlives the app: reopen and inspect history.
	a, err = app.NewApp(cfg, "History")
	if err != nil {
		t.Fatalf("reopening app: %v", err)
	}
	defer a.Close()

	runs, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Operation != "Import" || runs[0].Status != "success" {
		t.Errorf("run = %+v", runs[0])
	}
	if !runs[0].FinishedAt.Valid {
		t.Error("FinishedAt not stamped on Close")
	}

	total, err := a.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if total != 2 {
		t.Errorf("Stats() = %d, want 2", total)
	}
}

func TestApp_MarkFailed(t *testing.T) {
	cfg := testConfig(t)

	a, err := app.NewApp(cfg, "Import")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	// Importing a missing directory fails after the run row exists.
	if _, err := a.Import(filepath.Join(cfg.BaseDir, "missing")); err == nil {
		t.Fatal("Import() expected error for missing directory")
	}
	a.MarkFailed()

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a, err = app.NewApp(cfg, "History")
	if err != nil {
		t.Fatalf("reopening app: %v", err)
	}
	defer a.Close()

	runs, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "error" {
		t.Errorf("runs = %+v, want one run with status error", runs)
	}
}

func TestApp_Consolidate(t *testing.T) {
	cfg := testConfig(t)
	// Two snapshots list different pins over the same media file.
	writeSnapshot(t, cfg, "20240101", "101")
	writeSnapshot(t, cfg, "20240105", "201")

	a, err := app.NewApp(cfg, "Import")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Import(cfg.BaseDir); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	stats, err := a.Consolidate()
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if stats.GroupsConsolidated != 1 || stats.DuplicatesRemoved != 1 {
		t.Errorf("stats = %+v, want one group, one removed", stats)
	}

	total, err := a.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if total != 1 {
		t.Errorf("Stats() = %d, want 1", total)
	}
}

func TestApp_BackupRestore(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		cfg := testConfig(t)
		writeSnapshot(t, cfg, "20240101", "101")

		a, err := app.NewApp(cfg, "Backup")
		if err != nil {
			t.Fatalf("NewApp() error = %v", err)
		}
		defer a.Close()

		if _, err := a.Import(cfg.BaseDir); err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if err := a.Backup(false); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}

		out := filepath.Join(t.TempDir(), "restored.db")
		if err := a.RestoreBackup(out, false, ""); err != nil {
			t.Fatalf("RestoreBackup() error = %v", err)
		}

		restored, err := database.NewSQLiteStore(out)
		if err != nil {
			t.Fatalf("opening restored catalog: %v", err)
		}
		defer restored.Close()

		count, err := restored.CountPins()
		if err != nil {
			t.Fatalf("CountPins() error = %v", err)
		}
		if count != 1 {
			t.Errorf("restored CountPins() = %d, want 1", count)
		}
	})

	t.Run("encrypted", func(t *testing.T) {
		cfg := testConfig(t)
		writeSnapshot(t, cfg, "20240101", "101")

		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if err := enc.Setup("test-passphrase"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}

		a, err := app.NewApp(cfg, "Backup")
		if err != nil {
			t.Fatalf("NewApp() error = %v", err)
		}
		defer a.Close()

		if _, err := a.Import(cfg.BaseDir); err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if err := a.Backup(true); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}

		out := filepath.Join(t.TempDir(), "restored.db")
		if err := a.RestoreBackup(out, true, "test-passphrase"); err != nil {
			t.Fatalf("RestoreBackup() error = %v", err)
		}

		restored, err := database.NewSQLiteStore(out)
		if err != nil {
			t.Fatalf("opening restored catalog: %v", err)
		}
		defer restored.Close()

		count, err := restored.CountPins()
		if err != nil {
			t.Fatalf("CountPins() error = %v", err)
		}
		if count != 1 {
			t.Errorf("restored CountPins() = %d, want 1", count)
		}
	})

	t.Run("encrypted backup requires keys", func(t *testing.T) {
		cfg := testConfig(t)

		a, err := app.NewApp(cfg, "Backup")
		if err != nil {
			t.Fatalf("NewApp() error = %v", err)
		}
		defer a.Close()

		if err := a.Backup(true); err == nil {
			t.Error("Backup(true) expected error without keys")
		}
	})
}
