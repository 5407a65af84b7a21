// internal/shellsafe/shells.go

package shellsafe

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShellNotAllowed is returned for shells outside the allow-list.
var ErrShellNotAllowed = errors.New("shell not allowed")

var shellDirs = []string{
	"/bin",
	"/usr/bin",
	"/usr/local/bin",
	"/home/linuxbrew/.linuxbrew/bin",
	"/opt/homebrew/bin",
}

var shellNames = []string{"bash", "sh", "zsh", "fish"}

var allowedShells = func() map[string]struct{} {
	m := make(map[string]struct{}, len(shellDirs)*len(shellNames))
	for _, dir := range shellDirs {
		for _, name := range shellNames {
			m[dir+"/"+name] = struct{}{}
		}
	}
	return m
}()

// IsAllowedShell reports whether path is one of the known absolute shell binaries.
func IsAllowedShell(path string) bool {
	_, ok := allowedShells[path]
	return ok
}

// ValidateShell returns a descriptive error when path is not allowed.
func ValidateShell(path string) error {
	if IsAllowedShell(path) {
		return nil
	}
	return fmt.Errorf("%w: %q (allowed: bash, sh, zsh, fish under /bin, /usr/bin, /usr/local/bin or Homebrew)", ErrShellNotAllowed, path)
}

// AllowedShells returns the allow-list, sorted.
func AllowedShells() []string {
	out := make([]string, 0, len(allowedShells))
	for p := range allowedShells {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
