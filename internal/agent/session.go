// internal/agent/session.go

package agent

import (
	"sync"
	"time"
)

// Session is one running agent.
type Session struct {
	id         string
	connID     string
	providerID string
	cwd        string
	command    string
	startedAt  time.Time
	ch         Channel

	watchMu   sync.Mutex
	watchers  map[int]func(error)
	nextWatch int
	ended     bool
	endErr    error
}

func (s *Session) ID() string           { return s.id }
func (s *Session) ConnectionID() string { return s.connID }
func (s *Session) ProviderID() string   { return s.providerID }
func (s *Session) Cwd() string          { return s.cwd }
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Command is the agent command line the session execs.
func (s *Session) Command() string { return s.command }

// OnOutput attaches the output hook. Output produced before the first hook
// is attached is delivered to it first, in order.
func (s *Session) OnOutput(fn func([]byte)) { s.ch.OnData(fn) }

// OnExit registers a listener for the end of the session. Every listener runs
// exactly once.
func (s *Session) OnExit(fn func(error)) { s.ch.OnExit(fn) }

// Watch is OnExit for short-lived listeners: the returned stop func removes
// fn, so repeated attach and detach does not pile up hooks on the channel.
// fn runs immediately when the session has already ended.
func (s *Session) Watch(fn func(error)) (stop func()) {
	s.watchMu.Lock()
	if s.ended {
		err := s.endErr
		s.watchMu.Unlock()
		fn(err)
		return func() {}
	}
	if s.watchers == nil {
		s.watchers = make(map[int]func(error))
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Session) end(err error) {
	s.watchMu.Lock()
	if s.ended {
		s.watchMu.Unlock()
		return
	}
	s.ended = true
	s.endErr = err
	watchers := s.watchers
	s.watchers = nil
	s.watchMu.Unlock()

	for _, fn := range watchers {
		fn(err)
	}
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.ch.Done() }

// Ready is closed once the session accepts input.
func (s *Session) Ready() <-chan struct{} { return s.ch.Ready() }
