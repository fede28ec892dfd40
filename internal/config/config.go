package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.helia/config.toml.
type Config struct {
	Account   Account   `toml:"account"`
	Transport Transport `toml:"transport"`
	Receive   Receive   `toml:"receive"`
	Jobs      Jobs      `toml:"jobs"`
}

// Account identifies the local user and device session.
type Account struct {
	UserID    string `toml:"user_id"`
	SessionID string `toml:"session_id"`
}

// Transport holds the realtime endpoint settings.
type Transport struct {
	URL string `toml:"url"`
	API string `toml:"api"`
}

// Receive tunes the ingestion pipeline.
type Receive struct {
	BatchSize             int `toml:"batch_size"`
	BulkThreshold         int `toml:"bulk_threshold"`
	BulkPageSize          int `toml:"bulk_page_size"`
	CompanionBulkPageSize int `toml:"companion_bulk_page_size"`
	AckBatchSize          int `toml:"ack_batch_size"`
	KeyRefreshSeconds     int `toml:"key_refresh_seconds"`
	CallTimeoutSeconds    int `toml:"call_timeout_seconds"`
}

// Jobs tunes the background job queue.
type Jobs struct {
	Concurrency int `toml:"concurrency"`
}

// Default returns the built-in tuning values.
func Default() *Config {
	return &Config{
		Receive: Receive{
			BatchSize:             50,
			BulkThreshold:         500,
			BulkPageSize:          2000,
			CompanionBulkPageSize: 1000,
			AckBatchSize:          100,
			KeyRefreshSeconds:     60,
			CallTimeoutSeconds:    60,
		},
		Jobs: Jobs{Concurrency: 4},
	}
}

// Load reads config from the given path on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
