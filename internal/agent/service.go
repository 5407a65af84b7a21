// internal/agent/service.go

// Package agent starts agent CLIs inside interactive channels: it builds the
// init sequence, feeds it to the channel and keeps per-session bookkeeping.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"agentManager/internal/apperr"
	"agentManager/internal/identity"
	"agentManager/internal/providers"
	"agentManager/internal/ptyid"
	"agentManager/internal/shellsafe"
	"agentManager/internal/ssh"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already running")
	ErrUnknownProvider = errors.New("unknown provider")
)

// DefaultKeystrokeDelay is how long a terminal-UI agent gets to draw before
// its prompt is typed in.
const DefaultKeystrokeDelay = 1500 * time.Millisecond

// Channel is the interactive terminal a session runs in.
type Channel interface {
	ID() string
	Ready() <-chan struct{}
	WaitReady(ctx context.Context) error
	Write(p []byte) error
	Resize(cols, rows int) error
	OnData(fn func([]byte))
	OnExit(fn func(error))
	Close()
	Done() <-chan struct{}
}

// OpenFunc opens an interactive channel on a connection.
type OpenFunc func(ctx context.Context, connectionID string, opts ssh.ChannelOptions) (Channel, error)

// FromPool opens channels on pool.
func FromPool(pool *ssh.Pool) OpenFunc {
	return func(ctx context.Context, connectionID string, opts ssh.ChannelOptions) (Channel, error) {
		ch, err := pool.OpenInteractiveChannel(ctx, connectionID, opts)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// IdentityResolver decides the session identity arguments. KnownID and Remove
// let a failed start forget an identity it minted.
type IdentityResolver interface {
	ResolveArgs(req identity.Request) ([]string, error)
	KnownID(channelID string) (string, bool)
	Remove(channelID string) error
}

type Options struct {
	Open     OpenFunc
	Identity IdentityResolver
	Registry *providers.Registry
	Logger   *slog.Logger
	// KeystrokeDelay defaults to DefaultKeystrokeDelay.
	KeystrokeDelay time.Duration
	// Environ is the local environment scanned for passthrough credentials.
	// Defaults to os.Environ.
	Environ func() []string
}

// StartOptions describe one session start.
type StartOptions struct {
	// SessionID is the channel id, {provider}-{main|chat}-{id}.
	SessionID    string
	ConnectionID string
	ProviderID   string
	Kind         ptyid.Kind
	Cwd          string
	Shell        string
	Cols, Rows   int
	Prompt       string
	AutoApprove  bool
	Resume       bool
	Env          map[string]string
	ExtraArgs    []string
}

// Service owns the table of running sessions.
type Service struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(opts Options) *Service {
	if opts.KeystrokeDelay <= 0 {
		opts.KeystrokeDelay = DefaultKeystrokeDelay
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	if opts.Registry == nil {
		opts.Registry = providers.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:     opts,
		logger:   logger.With("component", "agent"),
		sessions: make(map[string]*Session),
	}
}

// StartSession opens a channel, waits for its writer, writes the init lines
// one by one and, for terminal-UI agents, types the prompt in afterwards.
// Waiting for the writer is bounded only by ctx.
func (s *Service) StartSession(ctx context.Context, o StartOptions) (*Session, error) {
	if o.SessionID == "" {
		return nil, apperr.New(apperr.Validation, "start session", "", errors.New("session id cannot be empty"))
	}
	if o.Shell != "" {
		if err := shellsafe.ValidateShell(o.Shell); err != nil {
			return nil, apperr.New(apperr.Validation, "start session", o.SessionID, err)
		}
	}
	p, ok := s.opts.Registry.Get(o.ProviderID)
	if !ok {
		return nil, apperr.New(apperr.Validation, "start session", o.SessionID,
			fmt.Errorf("%w: %s", ErrUnknownProvider, o.ProviderID))
	}
	if _, exists := s.Get(o.SessionID); exists {
		return nil, apperr.New(apperr.Session, "start session", o.SessionID, ErrSessionExists)
	}

	logger := s.logger.With("channel", o.SessionID, "provider", p.ID, "connection", o.ConnectionID)

	var identityArgs []string
	minted := false
	if s.opts.Identity != nil {
		_, known := s.opts.Identity.KnownID(o.SessionID)
		args, err := s.opts.Identity.ResolveArgs(identity.Request{
			IdentityFlag: p.SessionIDFlag,
			ChannelID:    o.SessionID,
			ProviderID:   p.ID,
			Kind:         o.Kind,
			Cwd:          o.Cwd,
			Resume:       o.Resume,
		})
		if err != nil {
			logger.Warn("session identity not persisted", "err", err)
		}
		identityArgs = args
		if !known {
			_, minted = s.opts.Identity.KnownID(o.SessionID)
		}
	}
	// A session id that no agent ever ran under must not be resumed later.
	started := false
	defer func() {
		if started || !minted {
			return
		}
		if err := s.opts.Identity.Remove(o.SessionID); err != nil {
			logger.Warn("failed to forget unused session identity", "err", err)
		}
	}()

	command := BuildCommand(p, CommandOptions{
		Prompt:      o.Prompt,
		AutoApprove: o.AutoApprove,
		Resume:      o.Resume,
		ExtraArgs:   o.ExtraArgs,
	}, identityArgs)
	lines := InitLines(InitOptions{
		Provider: p,
		Cwd:      o.Cwd,
		Env:      mergeEnv(PassthroughEnv(s.opts.Environ()), o.Env),
		Command:  command,
	})

	ch, err := s.opts.Open(ctx, o.ConnectionID, ssh.ChannelOptions{
		ID:    o.SessionID,
		Cols:  o.Cols,
		Rows:  o.Rows,
		Shell: o.Shell,
	})
	if err != nil {
		return nil, err
	}

	sess := &Session{
		id:         o.SessionID,
		connID:     o.ConnectionID,
		providerID: p.ID,
		cwd:        o.Cwd,
		command:    command,
		startedAt:  time.Now(),
		ch:         ch,
	}
	s.mu.Lock()
	if _, exists := s.sessions[o.SessionID]; exists {
		s.mu.Unlock()
		ch.Close()
		return nil, apperr.New(apperr.Session, "start session", o.SessionID, ErrSessionExists)
	}
	s.sessions[o.SessionID] = sess
	s.mu.Unlock()
	ch.OnExit(sess.end)
	ch.OnExit(func(err error) {
		s.forget(sess)
		logger.Info("session ended", "err", err)
	})

	if err := ch.WaitReady(ctx); err != nil {
		ch.Close()
		return nil, apperr.New(apperr.Session, "start session", o.SessionID, err)
	}

	for i, line := range lines {
		if err := ch.Write([]byte(line + "\n")); err != nil {
			logger.Warn("init line write failed", "line", i, "err", err)
			ch.Close()
			return nil, apperr.New(apperr.Session, "start session", o.SessionID, err)
		}
	}

	if NeedsKeystrokeInjection(p, o.Prompt) {
		go s.injectPrompt(sess, o.Prompt, logger)
	}

	started = true
	logger.Info("session started", "cwd", o.Cwd, "resume", o.Resume)
	return sess, nil
}

func (s *Service) injectPrompt(sess *Session, prompt string, logger *slog.Logger) {
	timer := time.NewTimer(s.opts.KeystrokeDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-sess.ch.Done():
		return
	}
	if err := sess.ch.Write([]byte(prompt + "\n")); err != nil {
		logger.Warn("prompt injection failed", "err", err)
	}
}

func (s *Service) forget(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
}

// Get returns the running session with id.
func (s *Service) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// List returns the running sessions sorted by id.
func (s *Service) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Service) lookup(op, id string) (*Session, error) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, apperr.New(apperr.Session, op, id, ErrSessionNotFound)
	}
	return sess, nil
}

// Write sends data to session id. Data written before the channel is ready
// is dropped with a warning.
func (s *Service) Write(id string, data []byte) error {
	sess, err := s.lookup("write", id)
	if err != nil {
		return err
	}
	err = sess.ch.Write(data)
	if errors.Is(err, ssh.ErrNotReady) {
		s.logger.Warn("write before ready dropped", "channel", id, "bytes", len(data))
		return nil
	}
	return err
}

// WriteString is Write for text input.
func (s *Service) WriteString(id, text string) error {
	return s.Write(id, []byte(text))
}

// Resize changes the terminal size of session id.
func (s *Service) Resize(id string, cols, rows int) error {
	sess, err := s.lookup("resize", id)
	if err != nil {
		return err
	}
	return sess.ch.Resize(cols, rows)
}

// StopSession closes session id and drops its bookkeeping.
func (s *Service) StopSession(id string) error {
	sess, err := s.lookup("stop", id)
	if err != nil {
		return err
	}
	sess.ch.Close()
	s.forget(sess)
	return nil
}

// StopAll closes every session.
func (s *Service) StopAll() {
	for _, sess := range s.List() {
		_ = s.StopSession(sess.id)
	}
}
