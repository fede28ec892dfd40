package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Receive.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", cfg.Receive.BatchSize)
	}
	if cfg.Receive.BulkThreshold != 500 {
		t.Errorf("bulk threshold = %d, want 500", cfg.Receive.BulkThreshold)
	}
	if cfg.Receive.AckBatchSize != 100 {
		t.Errorf("ack batch size = %d, want 100", cfg.Receive.AckBatchSize)
	}
	if cfg.Jobs.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Jobs.Concurrency)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Account.UserID = "u-1"
	cfg.Account.SessionID = "s-1"
	cfg.Transport.URL = "wss://example.test/ws"
	cfg.Receive.BatchSize = 25

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Account.UserID != "u-1" || loaded.Account.SessionID != "s-1" {
		t.Errorf("account = %+v", loaded.Account)
	}
	if loaded.Transport.URL != "wss://example.test/ws" {
		t.Errorf("url = %q", loaded.Transport.URL)
	}
	if loaded.Receive.BatchSize != 25 {
		t.Errorf("batch size = %d, want 25", loaded.Receive.BatchSize)
	}
	if loaded.Receive.BulkPageSize != 2000 {
		t.Errorf("bulk page size = %d, want 2000", loaded.Receive.BulkPageSize)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	partial := "[account]\nuser_id = \"u-2\"\n"
	if err := os.WriteFile(path, []byte(partial), 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Account.UserID != "u-2" {
		t.Errorf("user id = %q, want u-2", loaded.Account.UserID)
	}
	if loaded.Receive.KeyRefreshSeconds != 60 {
		t.Errorf("key refresh = %d, want default 60", loaded.Receive.KeyRefreshSeconds)
	}
}
