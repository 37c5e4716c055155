package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirName is the name of the per-project and per-user data directory.
const DataDirName = ".cellnet"

// GlobalCellnetPath returns the path to the global .cellnet directory.
// On Unix: ~/.cellnet
// On Windows: %USERPROFILE%\.cellnet
func GlobalCellnetPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DataDirName), nil
}

// LocalCellnetPath returns the path to the .cellnet directory for the given
// project root.
func LocalCellnetPath(projectRoot string) string {
	return filepath.Join(projectRoot, DataDirName)
}

// EnsureDir creates dir if it doesn't exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
