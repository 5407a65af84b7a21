package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"agentManager/internal/agent"
	"agentManager/internal/identity"
	"agentManager/internal/providers"
	"agentManager/internal/ssh"
	"agentManager/internal/store"
	"agentManager/internal/workspace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChannel is ready immediately and records writes.
type fakeChannel struct {
	id    string
	ready chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	writes []string
	onData func([]byte)
	exits  []func(error)
	ended  bool
}

func newFakeChannel(id string) *fakeChannel {
	c := &fakeChannel{id: id, ready: make(chan struct{}), done: make(chan struct{})}
	close(c.ready)
	return c
}

func (c *fakeChannel) ID() string                        { return c.id }
func (c *fakeChannel) Ready() <-chan struct{}            { return c.ready }
func (c *fakeChannel) Done() <-chan struct{}             { return c.done }
func (c *fakeChannel) WaitReady(context.Context) error   { return nil }
func (c *fakeChannel) Resize(int, int) error             { return nil }
func (c *fakeChannel) Close()                            { c.end(nil) }

func (c *fakeChannel) OnData(fn func([]byte)) {
	c.mu.Lock()
	c.onData = fn
	c.mu.Unlock()
}

// emit delivers p to the current data hook, dropping it when there is none.
func (c *fakeChannel) emit(p []byte) {
	c.mu.Lock()
	fn := c.onData
	c.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (c *fakeChannel) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return ssh.ErrChannelClosed
	}
	c.writes = append(c.writes, string(p))
	return nil
}

func (c *fakeChannel) OnExit(fn func(error)) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		fn(nil)
		return
	}
	c.exits = append(c.exits, fn)
	c.mu.Unlock()
}

func (c *fakeChannel) end(err error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	close(c.done)
	hooks := c.exits
	c.mu.Unlock()
	for _, h := range hooks {
		h(err)
	}
}

func (c *fakeChannel) hookCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exits)
}

func (c *fakeChannel) lastLine() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return ""
	}
	return c.writes[len(c.writes)-1]
}

type channels struct {
	mu      sync.Mutex
	byID    map[string]*fakeChannel
	failErr error
}

func (c *channels) open(_ context.Context, _ string, opts ssh.ChannelOptions) (agent.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return nil, c.failErr
	}
	if c.byID == nil {
		c.byID = make(map[string]*fakeChannel)
	}
	ch := newFakeChannel(opts.ID)
	c.byID[opts.ID] = ch
	return ch, nil
}

func (c *channels) get(id string) *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byID[id]
}

// fakeTransport answers commands through respond and records uploads.
type fakeTransport struct {
	mu       sync.Mutex
	commands []string
	uploads  [][2]string
	respond  func(command string) (ssh.CommandResult, error)
}

func (t *fakeTransport) ExecuteCommand(_ context.Context, _ string, command, _ string) (ssh.CommandResult, error) {
	t.mu.Lock()
	t.commands = append(t.commands, command)
	respond := t.respond
	t.mu.Unlock()
	if respond == nil {
		return ssh.CommandResult{}, nil
	}
	return respond(command)
}

func (t *fakeTransport) UploadFile(_ context.Context, _ string, localPath, remotePath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads = append(t.uploads, [2]string{localPath, remotePath})
	return nil
}

func (t *fakeTransport) count(substr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

// fakeWorkspaces hands out numbered worktrees next to the project.
type fakeWorkspaces struct {
	mu       sync.Mutex
	created  int
	missing  map[string]bool
	removed  []string
	failWith error
}

func (w *fakeWorkspaces) Create(_ context.Context, _, projectPath, name string) (workspace.Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failWith != nil {
		return workspace.Workspace{}, w.failWith
	}
	w.created++
	leaf := workspace.Slug(name) + "-" + string(rune('0'+w.created))
	return workspace.Workspace{
		Path:   filepath.ToSlash(filepath.Join(filepath.Dir(projectPath), "worktrees", leaf)),
		Branch: workspace.BranchPrefix + leaf,
	}, nil
}

func (w *fakeWorkspaces) Exists(_ context.Context, _, path string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.missing[path], nil
}

func (w *fakeWorkspaces) Remove(_ context.Context, _, projectPath, path, _ string) error {
	if workspace.IsPrimary(projectPath, path) {
		return workspace.ErrPrimaryWorkspace
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = append(w.removed, path)
	return nil
}

type harness struct {
	orch       *Orchestrator
	store      *store.Store
	identity   *identity.Store
	channels   *channels
	transport  *fakeTransport
	workspaces *fakeWorkspaces
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, store.FileName))
	require.NoError(t, err)
	ids := identity.NewStore(filepath.Join(dir, identity.FileName), quietLogger())

	h := &harness{
		store:      st,
		identity:   ids,
		channels:   &channels{},
		transport:  &fakeTransport{},
		workspaces: &fakeWorkspaces{missing: map[string]bool{}},
	}
	registry := providers.Default()
	sessions := agent.NewService(agent.Options{
		Open:     h.channels.open,
		Identity: ids,
		Registry: registry,
		Logger:   quietLogger(),
		Environ:  func() []string { return nil },
	})
	h.orch = New(Options{
		Transport:  h.transport,
		Sessions:   sessions,
		Identity:   ids,
		Registry:   registry,
		Store:      st,
		Workspaces: h.workspaces,
		Logger:     quietLogger(),
	})
	return h
}

var errBoom = errors.New("boom")
