// internal/ssh/hostkeys.go

package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"agentManager/internal/utils"
)

const knownHostsFileName = "known_hosts"

// AppKnownHostsPath is the known_hosts file owned by this application.
func AppKnownHostsPath() (string, error) {
	dir, err := utils.AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ssh", knownHostsFileName), nil
}

// UserKnownHostsPath is ~/.ssh/known_hosts.
func UserKnownHostsPath() string {
	return utils.ExpandHome("~/.ssh/" + knownHostsFileName)
}

var knownHostsMu sync.Mutex

// TrustOnFirstUse verifies host keys against appFile and the read-only extra
// files. A host that appears in none of them is accepted and recorded in
// appFile; a host whose key changed is rejected.
func TrustOnFirstUse(appFile string, extra ...string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		knownHostsMu.Lock()
		defer knownHostsMu.Unlock()

		var files []string
		for _, f := range append(append([]string(nil), extra...), appFile) {
			if _, err := os.Stat(f); err == nil {
				files = append(files, f)
			}
		}

		if len(files) > 0 {
			check, err := knownhosts.New(files...)
			if err != nil {
				return fmt.Errorf("failed to load known_hosts: %w", err)
			}
			err = check(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
				return err
			}
		}

		return appendKnownHost(appFile, hostname, key)
	}
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file %s: %w", path, err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write known_hosts file %s: %w", path, err)
	}
	return nil
}

// DefaultHostKeyCallback trusts ~/.ssh/known_hosts and records new hosts in
// the application's own known_hosts file.
func DefaultHostKeyCallback() (ssh.HostKeyCallback, error) {
	appFile, err := AppKnownHostsPath()
	if err != nil {
		return nil, err
	}
	return TrustOnFirstUse(appFile, UserKnownHostsPath()), nil
}
