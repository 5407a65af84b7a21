package agent

import (
	"context"
	"sync"
	"time"

	"agentManager/internal/ssh"
)

// recordingChannel is a Channel double that records writes in order and
// answers each one with scripted output.
type recordingChannel struct {
	id    string
	ready chan struct{}
	done  chan struct{}

	script func(line string) string

	mu      sync.Mutex
	writes  []string
	onData  func([]byte)
	pending [][]byte
	exits   []func(error)
	ended   bool
	resizes [][2]int
}

func newRecordingChannel(id string, readyAfter time.Duration) *recordingChannel {
	c := &recordingChannel{id: id, ready: make(chan struct{}), done: make(chan struct{})}
	if readyAfter < 0 {
		return c
	}
	go func() {
		time.Sleep(readyAfter)
		close(c.ready)
	}()
	return c
}

func (c *recordingChannel) ID() string              { return c.id }
func (c *recordingChannel) Ready() <-chan struct{} { return c.ready }
func (c *recordingChannel) Done() <-chan struct{}  { return c.done }

func (c *recordingChannel) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *recordingChannel) Write(p []byte) error {
	select {
	case <-c.ready:
	default:
		return ssh.ErrNotReady
	}
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ssh.ErrChannelClosed
	}
	c.writes = append(c.writes, string(p))
	script := c.script
	c.mu.Unlock()

	if script != nil {
		c.emit([]byte(script(string(p))))
	}
	return nil
}

func (c *recordingChannel) emit(p []byte) {
	c.mu.Lock()
	fn := c.onData
	if fn == nil {
		c.pending = append(c.pending, p)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(p)
}

func (c *recordingChannel) Resize(cols, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resizes = append(c.resizes, [2]int{cols, rows})
	return nil
}

func (c *recordingChannel) OnData(fn func([]byte)) {
	c.mu.Lock()
	c.onData = fn
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, p := range pending {
		fn(p)
	}
}

func (c *recordingChannel) OnExit(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exits = append(c.exits, fn)
}

func (c *recordingChannel) Close() { c.end(nil) }

func (c *recordingChannel) end(err error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	hooks := c.exits
	close(c.done)
	c.mu.Unlock()
	for _, h := range hooks {
		h(err)
	}
}

func (c *recordingChannel) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// opener hands out recording channels and remembers them by id.
type opener struct {
	mu         sync.Mutex
	readyAfter time.Duration
	script     func(string) string
	opened     map[string]*recordingChannel
	opts       []ssh.ChannelOptions
	// failNext, when set, is returned by the next open.
	failNext error
}

func (o *opener) open(_ context.Context, _ string, opts ssh.ChannelOptions) (Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failNext; err != nil {
		o.failNext = nil
		return nil, err
	}
	if o.opened == nil {
		o.opened = make(map[string]*recordingChannel)
	}
	ch := newRecordingChannel(opts.ID, o.readyAfter)
	ch.script = o.script
	o.opened[opts.ID] = ch
	o.opts = append(o.opts, opts)
	return ch, nil
}

func (o *opener) get(id string) *recordingChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[id]
}
