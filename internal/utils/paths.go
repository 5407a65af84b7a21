// internal/utils/paths.go

package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AppDirName is the per-user application directory under ~/.config.
	AppDirName = ".config/agentmgr"
)

// AppDir returns (and creates) the per-user application data directory.
func AppDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, AppDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create app directory: %w", err)
	}
	return dir, nil
}

// AppFile returns the path of name inside AppDir.
func AppFile(name string) (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
