// internal/store/store.go

// Package store persists tasks and conversations as one JSON document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"agentManager/internal/models"
	"agentManager/internal/utils"
)

// FileName is the task store's file name inside the app directory.
const FileName = "tasks.json"

var ErrNotFound = errors.New("record not found")

type document struct {
	Tasks         map[string]models.Task         `json:"tasks"`
	Conversations map[string]models.Conversation `json:"conversations"`
}

func newDocument() *document {
	return &document{
		Tasks:         make(map[string]models.Task),
		Conversations: make(map[string]models.Conversation),
	}
}

// Store is a write-through JSON store guarded by a cross-process file lock.
type Store struct {
	path string
	lock *flock.Flock

	mu  sync.RWMutex
	doc *document
}

// Open loads the store at path, starting empty when the file is missing.
func Open(path string) (*Store, error) {
	if err := utils.EnsureDir(path); err != nil {
		return nil, err
	}
	s := &Store{path: path, lock: flock.New(path + ".lock")}
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

// DefaultPath returns the task store location in the app directory.
func DefaultPath() (string, error) {
	return utils.AppFile(FileName)
}

func (s *Store) read() (*document, error) {
	doc := newDocument()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read task store: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse task store: %w", err)
	}
	if doc.Tasks == nil {
		doc.Tasks = make(map[string]models.Task)
	}
	if doc.Conversations == nil {
		doc.Conversations = make(map[string]models.Conversation)
	}
	return doc, nil
}

// update re-reads the file under the lock, applies fn and writes it back.
func (s *Store) update(fn func(*document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := utils.EnsureDir(s.path); err != nil {
		return fmt.Errorf("lock task store: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock task store: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	if err := utils.AtomicWriteJSON(s.path, doc, 0600); err != nil {
		return fmt.Errorf("save task store: %w", err)
	}
	s.doc = doc
	return nil
}

// Tasks returns every task, oldest first.
func (s *Store) Tasks() []models.Task {
	s.mu.RLock()
	out := make([]models.Task, 0, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Task(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.doc.Tasks[id]
	return t, ok
}

// SaveTask upserts t, stamping UpdatedAt (and CreatedAt for new tasks).
func (s *Store) SaveTask(t models.Task) error {
	return s.update(func(d *document) error {
		now := time.Now().UTC()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		d.Tasks[t.ID] = t
		return nil
	})
}

// UpdateTask applies fn to the stored task id.
func (s *Store) UpdateTask(id string, fn func(*models.Task)) (models.Task, error) {
	var out models.Task
	err := s.update(func(d *document) error {
		t, ok := d.Tasks[id]
		if !ok {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		fn(&t)
		t.UpdatedAt = time.Now().UTC()
		d.Tasks[id] = t
		out = t
		return nil
	})
	return out, err
}

// DeleteTask removes the task and its conversations.
func (s *Store) DeleteTask(id string) error {
	return s.update(func(d *document) error {
		delete(d.Tasks, id)
		for cid, c := range d.Conversations {
			if c.TaskID == id {
				delete(d.Conversations, cid)
			}
		}
		return nil
	})
}

// Conversations returns the conversations of taskID, main first.
func (s *Store) Conversations(taskID string) []models.Conversation {
	s.mu.RLock()
	var out []models.Conversation
	for _, c := range s.doc.Conversations {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsMain != out[j].IsMain {
			return out[i].IsMain
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Conversation(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.doc.Conversations[id]
	return c, ok
}

func (s *Store) SaveConversation(c models.Conversation) error {
	return s.update(func(d *document) error {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		d.Conversations[c.ID] = c
		return nil
	})
}

func (s *Store) DeleteConversation(id string) error {
	return s.update(func(d *document) error {
		delete(d.Conversations, id)
		return nil
	})
}
