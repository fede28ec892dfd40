// Package home resolves the on-disk layout under ~/.helia.
package home

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.helia.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".helia")
}

// AccountDir returns the account-specific directory.
func AccountDir(accountID string) string {
	return filepath.Join(BaseDir(), "accounts", accountID)
}

// DBPath returns the app database path for an account.
func DBPath(accountID string) string {
	return filepath.Join(AccountDir(accountID), "helia.db")
}

// LogPath returns the daemon log file path for an account.
func LogPath(accountID string) string {
	return filepath.Join(AccountDir(accountID), "logs", "heliad.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(accountID string) error {
	dirs := []string{
		AccountDir(accountID),
		filepath.Join(AccountDir(accountID), "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
