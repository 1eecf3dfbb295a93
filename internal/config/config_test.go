package config

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestConfig_RoundTrip(t *testing.T) {
	cfg := NewConfig("archive-123", "/data/pinarch")
	cfg.Mirror = MirrorConfig{
		Type:     "s3",
		Name:     "offsite",
		S3Bucket: "pinarch-backups",
		S3Prefix: "prod",
		S3Region: "eu-west-1",
	}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.ArchiveID != "archive-123" {
		t.Errorf("ArchiveID = %s", got.ArchiveID)
	}
	if got.BaseDir != "/data/pinarch" {
		t.Errorf("BaseDir = %s", got.BaseDir)
	}
	if got.Database.Type != "sqlite" || got.Database.DataDir != "/data/pinarch" {
		t.Errorf("Database = %+v", got.Database)
	}
	if got.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", got.Server.Port)
	}
	if got.Mirror.Type != "s3" || got.Mirror.S3Bucket != "pinarch-backups" {
		t.Errorf("Mirror = %+v", got.Mirror)
	}
	if got.Encryption.PublicKeyPath != filepath.Join("/data/pinarch", "keys", "pinarch.pub") {
		t.Errorf("Encryption.PublicKeyPath = %s", got.Encryption.PublicKeyPath)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := NewConfig("id", "/base")

	if cfg.MediaDir() != filepath.Join("/base", "originals") {
		t.Errorf("MediaDir() = %s", cfg.MediaDir())
	}
	if cfg.LogDir != filepath.Join("/base", "log") {
		t.Errorf("LogDir = %s", cfg.LogDir)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %s", cfg.Server.Host)
	}
	if cfg.Server.AllowedOriginPattern == "" {
		t.Error("AllowedOriginPattern is empty")
	}
	if cfg.Mirror.Type != "filesystem" {
		t.Errorf("Mirror.Type = %s, want filesystem", cfg.Mirror.Type)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates a config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", "pinarch.toml")
		cfg := NewConfig("id", "/base")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.ArchiveID != "id" {
			t.Errorf("ArchiveID = %s, want id", got.ArchiveID)
		}
	})

	t.Run("refuses to overwrite an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pinarch.toml")
		cfg := NewConfig("id", "/base")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Error("second Init() expected error for existing file")
		}
	})
}

func TestReadFromFile_Missing(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("ReadFromFile() expected error for missing file")
	}
}
