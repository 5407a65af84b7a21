// internal/orchestrator/orchestrator.go

// Package orchestrator ties tasks, workspaces and agent sessions together. It
// owns the in-memory agent records and keeps the persisted task status in step
// with the sessions that are actually running.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"agentManager/internal/agent"
	"agentManager/internal/apperr"
	"agentManager/internal/models"
	"agentManager/internal/providers"
	"agentManager/internal/ptyid"
	"agentManager/internal/ssh"
	"agentManager/internal/store"
	"agentManager/internal/workspace"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrUnknownProvider is shared with the session service.
	ErrUnknownProvider = agent.ErrUnknownProvider
)

// DefaultDetectionTTL is how long agent detection results are reused.
const DefaultDetectionTTL = 5 * time.Minute

// Transport runs one-shot commands and uploads files on a connection.
type Transport interface {
	ExecuteCommand(ctx context.Context, id, command, cwd string) (ssh.CommandResult, error)
	UploadFile(ctx context.Context, id, localPath, remotePath string) error
}

// Workspaces creates and removes task worktrees.
type Workspaces interface {
	Create(ctx context.Context, connID, projectPath, name string) (workspace.Workspace, error)
	Exists(ctx context.Context, connID, path string) (bool, error)
	Remove(ctx context.Context, connID, projectPath, path, branch string) error
}

// IdentityStore is the part of the session identity store used on teardown.
type IdentityStore interface {
	Remove(channelID string) error
}

type Options struct {
	Transport  Transport
	Sessions   *agent.Service
	Identity   IdentityStore
	Registry   *providers.Registry
	Store      *store.Store
	Workspaces Workspaces
	Logger     *slog.Logger
	// DetectionTTL defaults to DefaultDetectionTTL.
	DetectionTTL time.Duration

	// Terminal defaults for new sessions.
	Shell      string
	Cols, Rows int
}

type agentEntry struct {
	rec  models.AgentRecord
	sess *agent.Session
}

type detection struct {
	providers []string
	at        time.Time
}

// Orchestrator is safe for concurrent use. Operations on one task are
// serialized.
type Orchestrator struct {
	opts    Options
	logger  *slog.Logger
	clockFn func() time.Time

	mu     sync.Mutex
	agents map[string]*agentEntry
	locks  map[string]*sync.Mutex

	detectMu sync.Mutex
	detected map[string]detection
}

func New(opts Options) *Orchestrator {
	if opts.DetectionTTL <= 0 {
		opts.DetectionTTL = DefaultDetectionTTL
	}
	if opts.Registry == nil {
		opts.Registry = providers.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts:     opts,
		logger:   logger.With("component", "orchestrator"),
		clockFn:  time.Now,
		agents:   make(map[string]*agentEntry),
		locks:    make(map[string]*sync.Mutex),
		detected: make(map[string]detection),
	}
}

// Recover resets tasks left running by a previous process. Sessions never
// survive a restart, so this must run before anything else.
func (o *Orchestrator) Recover() (int, error) {
	n := 0
	for _, t := range o.opts.Store.Tasks() {
		if t.Status != models.TaskRunning {
			continue
		}
		if _, err := o.opts.Store.UpdateTask(t.ID, func(t *models.Task) {
			t.Status = models.TaskIdle
		}); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		o.logger.Info("reset stale running tasks", "count", n)
	}
	return n, nil
}

func (o *Orchestrator) taskLock(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Tasks returns the persisted tasks, oldest first.
func (o *Orchestrator) Tasks() []models.Task {
	return o.opts.Store.Tasks()
}

func (o *Orchestrator) Task(id string) (models.Task, error) {
	t, ok := o.opts.Store.Task(id)
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return t, nil
}

// Conversations returns the conversations of a task, main first.
func (o *Orchestrator) Conversations(taskID string) []models.Conversation {
	return o.opts.Store.Conversations(taskID)
}

// Agents returns a snapshot of the agent records, sorted by channel id.
func (o *Orchestrator) Agents() []models.AgentRecord {
	o.mu.Lock()
	out := make([]models.AgentRecord, 0, len(o.agents))
	for _, e := range o.agents {
		out = append(out, e.rec)
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Session returns the live session behind channelID.
func (o *Orchestrator) Session(channelID string) (*agent.Session, bool) {
	return o.opts.Sessions.Get(channelID)
}

// Attach routes the output of channelID to onData and its end to onExit.
// Output produced before the first attach is flushed to onData first. The
// returned detach func stops delivery; later output is buffered again.
func (o *Orchestrator) Attach(channelID string, onData func([]byte), onExit func(error)) (func(), error) {
	sess, ok := o.opts.Sessions.Get(channelID)
	if !ok {
		return nil, apperr.New(apperr.Session, "attach", channelID, agent.ErrSessionNotFound)
	}
	sess.OnOutput(onData)
	stop := sess.Watch(onExit)
	return func() {
		stop()
		sess.OnOutput(nil)
	}, nil
}

// ParseChannel splits a channel id using the registered provider ids.
func (o *Orchestrator) ParseChannel(channelID string) (ptyid.ID, error) {
	return ptyid.Parse(channelID, o.opts.Registry.IDs())
}

// SendInput writes raw input to the agent on channelID.
func (o *Orchestrator) SendInput(channelID string, data []byte) error {
	return o.opts.Sessions.Write(channelID, data)
}

// Resize changes the terminal size of the agent on channelID.
func (o *Orchestrator) Resize(channelID string, cols, rows int) error {
	return o.opts.Sessions.Resize(channelID, cols, rows)
}

func (o *Orchestrator) track(rec models.AgentRecord, sess *agent.Session) {
	o.mu.Lock()
	o.agents[rec.ChannelID] = &agentEntry{rec: rec, sess: sess}
	o.mu.Unlock()
}

// onExit runs when sess ends. Stale hooks from a replaced session are
// ignored. The task settles to idle once none of its agents is running.
func (o *Orchestrator) onExit(channelID string, sess *agent.Session, err error) {
	o.mu.Lock()
	e, ok := o.agents[channelID]
	if !ok || e.sess != sess {
		o.mu.Unlock()
		return
	}
	e.rec.Running = false
	e.rec.StoppedAt = o.clockFn()
	taskID := e.rec.TaskID
	busy := false
	for _, other := range o.agents {
		if other.rec.TaskID == taskID && other.rec.Running {
			busy = true
			break
		}
	}
	o.mu.Unlock()

	o.logger.Info("agent exited", "channel", channelID, "task", taskID, "err", err)
	if busy {
		return
	}
	if _, uerr := o.opts.Store.UpdateTask(taskID, func(t *models.Task) {
		if t.Status == models.TaskRunning {
			t.Status = models.TaskIdle
		}
	}); uerr != nil && !errors.Is(uerr, store.ErrNotFound) {
		o.logger.Warn("task status not reset after exit", "task", taskID, "err", uerr)
	}
}

func (o *Orchestrator) runningFor(taskID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ids []string
	for id, e := range o.agents {
		if e.rec.TaskID == taskID && e.rec.Running {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) stopChannel(channelID string) {
	if err := o.opts.Sessions.StopSession(channelID); err != nil && !errors.Is(err, agent.ErrSessionNotFound) {
		o.logger.Warn("stop session failed", "channel", channelID, "err", err)
	}
}

// Shutdown stops every session and settles running tasks to idle.
func (o *Orchestrator) Shutdown() {
	o.opts.Sessions.StopAll()
	if _, err := o.Recover(); err != nil {
		o.logger.Warn("task status not reset on shutdown", "err", err)
	}
}
