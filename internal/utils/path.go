// internal/utils/path.go

package utils

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ToRemotePath converts a path to the forward-slash form used by remote hosts
// and sftp, independent of the local OS.
func ToRemotePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return p
	}
	return path.Clean(p)
}

// RemoteJoin joins remote path elements with forward slashes.
func RemoteJoin(elem ...string) string {
	return path.Join(elem...)
}

// RemoteParent returns the parent directory of a remote path.
func RemoteParent(p string) string {
	return path.Dir(ToRemotePath(p))
}

// ExpandHome expands a leading ~/ to the local home directory.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	return p
}
