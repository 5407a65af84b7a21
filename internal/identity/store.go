// internal/identity/store.go

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"agentManager/internal/ptyid"
	"agentManager/internal/utils"
)

// FileName is the identity map's file name inside the app directory.
const FileName = "pty-session-map.json"

// Entry is one persisted channel identity.
type Entry struct {
	UUID string `json:"uuid"`
	Cwd  string `json:"cwd"`
}

// Store is a write-through JSON map of channel id to Entry. The file is read
// on first use and rewritten atomically, under a cross-process lock, on every
// mutation.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	entries map[string]Entry
}

// NewStore returns a store backed by path. Nothing is read until first use.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// DefaultPath returns the identity map location in the app directory.
func DefaultPath() (string, error) {
	return utils.AppFile(FileName)
}

func (s *Store) readFile() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity map: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse identity map: %w", err)
	}
	return entries, nil
}

// ensureLoaded must be called with s.mu held. A corrupt file is logged and
// treated as empty so that agents can still start.
func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	entries, err := s.readFile()
	if err != nil {
		s.logger.Warn("identity map unreadable, starting empty", "path", s.path, "err", err)
		entries = make(map[string]Entry)
	}
	s.entries = entries
	s.loaded = true
}

// mutate re-reads the file under the file lock, applies fn and writes the
// result back. The in-memory cache is replaced only after a successful write.
func (s *Store) mutate(fn func(map[string]Entry)) error {
	if err := utils.EnsureDir(s.path); err != nil {
		return fmt.Errorf("lock identity map: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock identity map: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	entries, err := s.readFile()
	if err != nil {
		s.ensureLoaded()
		entries = make(map[string]Entry, len(s.entries))
		for k, v := range s.entries {
			entries[k] = v
		}
	}
	fn(entries)

	if err := utils.AtomicWriteJSON(s.path, entries, 0600); err != nil {
		return fmt.Errorf("save identity map: %w", err)
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// KnownID returns the stored UUID for channelID.
func (s *Store) KnownID(channelID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	e, ok := s.entries[channelID]
	if !ok || e.UUID == "" {
		return "", false
	}
	return e.UUID, true
}

// MarkCreated upserts the entry for channelID and persists it before returning.
func (s *Store) MarkCreated(channelID, id, cwd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(func(m map[string]Entry) {
		m[channelID] = Entry{UUID: id, Cwd: cwd}
	})
}

// Remove deletes the entry for channelID. Removing an unknown id is a no-op.
func (s *Store) Remove(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	if _, ok := s.entries[channelID]; !ok {
		return nil
	}
	return s.mutate(func(m map[string]Entry) {
		delete(m, channelID)
	})
}

// HasSibling reports whether another channel of the same provider already
// owns an identity in cwd.
func (s *Store) HasSibling(channelID, providerID, cwd string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	for id, e := range s.entries {
		if id == channelID || e.Cwd != cwd {
			continue
		}
		if belongsTo(id, providerID) {
			return true
		}
	}
	return false
}

func belongsTo(channelID, providerID string) bool {
	rest, ok := strings.CutPrefix(channelID, providerID+"-")
	if !ok {
		return false
	}
	return strings.HasPrefix(rest, string(ptyid.KindMain)+"-") ||
		strings.HasPrefix(rest, string(ptyid.KindChat)+"-")
}

// Entries returns a copy of the map.
func (s *Store) Entries() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
