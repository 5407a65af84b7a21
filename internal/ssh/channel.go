// internal/ssh/channel.go

package ssh

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// backend is the process side of a channel: a remote PTY session or a local
// pseudo-terminal.
type backend interface {
	io.ReadWriter
	Resize(cols, rows int) error
	// Wait blocks until the process ends and returns its exit error.
	Wait() error
	Close() error
}

type startFunc func(ctx context.Context) (backend, error)

type winSize struct {
	cols, rows int
}

// Channel is an interactive terminal session. It is usable as soon as it is
// returned: output is buffered until a hook is attached, and the writer
// becomes available once the PTY is allocated (see WaitReady).
type Channel struct {
	id     string
	connID string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error

	done    chan struct{}
	endOnce sync.Once

	writeMu   sync.Mutex
	deliverMu sync.Mutex

	mu         sync.Mutex
	be         backend
	closed     bool
	onData     func([]byte)
	pending    [][]byte
	exitHooks  []func(error)
	exitErr    error
	pendingWin *winSize
	onEnd      func()
}

func newChannel(parent context.Context, id, connID string, logger *slog.Logger) *Channel {
	ctx, cancel := context.WithCancel(parent)
	return &Channel{
		id:     id,
		connID: connID,
		logger: logger.With("channel", id, "connection", connID),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ID returns the caller-assigned channel id.
func (c *Channel) ID() string { return c.id }

// ConnectionID returns the owning connection id.
func (c *Channel) ConnectionID() string { return c.connID }

// Ready is closed once the writer is available or the start failed.
func (c *Channel) Ready() <-chan struct{} { return c.ready }

// Done is closed when the channel has ended.
func (c *Channel) Done() <-chan struct{} { return c.done }

// WaitReady blocks until the writer is available. It returns the start error,
// if any, or ctx's error.
func (c *Channel) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) markReady(err error) {
	c.readyOnce.Do(func() {
		c.readyErr = err
		close(c.ready)
	})
}

// run starts the backend and supervises it. The read loop and the keep-alive
// wait are independent; whichever ends first tears the channel down.
func (c *Channel) run(start startFunc) {
	be, err := start(c.ctx)
	if err != nil {
		c.logger.Warn("channel start failed", "err", err)
		c.markReady(err)
		c.finish(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = be.Close()
		return
	}
	c.be = be
	win := c.pendingWin
	c.pendingWin = nil
	c.mu.Unlock()

	if win != nil {
		if err := be.Resize(win.cols, win.rows); err != nil {
			c.logger.Debug("deferred resize failed", "err", err)
		}
	}

	c.markReady(nil)
	c.logger.Debug("channel ready")

	go c.readLoop(be)
	go c.keepAlive()
}

func (c *Channel) readLoop(be backend) {
	buf := make([]byte, 32*1024)
	for {
		n, err := be.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.deliver(chunk)
		}
		if err != nil {
			break
		}
	}
	c.finish(be.Wait())
}

func (c *Channel) keepAlive() {
	<-c.ctx.Done()
	c.finish(nil)
}

func (c *Channel) deliver(p []byte) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

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

// OnData sets the output hook. Output buffered so far is flushed to fn, in
// arrival order, before any new output. fn must not call OnData.
func (c *Channel) OnData(fn func([]byte)) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	c.onData = fn
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if fn == nil {
		return
	}
	for _, p := range pending {
		fn(p)
	}
}

// OnExit registers fn to run once when the channel ends. If it has already
// ended fn runs immediately.
func (c *Channel) OnExit(fn func(error)) {
	c.mu.Lock()
	select {
	case <-c.done:
		err := c.exitErr
		c.mu.Unlock()
		fn(err)
		return
	default:
	}
	c.exitHooks = append(c.exitHooks, fn)
	c.mu.Unlock()
}

// Write sends p to the process. Writes are serialized.
func (c *Channel) Write(p []byte) error {
	select {
	case <-c.ready:
	default:
		return ErrNotReady
	}
	if c.readyErr != nil {
		return c.readyErr
	}

	c.mu.Lock()
	be, closed := c.be, c.closed
	c.mu.Unlock()
	if closed || be == nil {
		return ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for len(p) > 0 {
		n, err := be.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Resize changes the terminal size. Before the PTY exists the size is kept
// and applied once it does.
func (c *Channel) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	be := c.be
	if be == nil {
		c.pendingWin = &winSize{cols: cols, rows: rows}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return be.Resize(cols, rows)
}

// Close ends the channel. Closing an ended channel is a no-op.
func (c *Channel) Close() {
	c.cancel()
	c.finish(nil)
}

func (c *Channel) finish(err error) {
	c.endOnce.Do(func() {
		c.cancel()
		c.markReady(ErrChannelClosed)

		c.mu.Lock()
		c.closed = true
		c.exitErr = err
		be := c.be
		hooks := c.exitHooks
		c.exitHooks = nil
		onEnd := c.onEnd
		close(c.done)
		c.mu.Unlock()

		if be != nil {
			_ = be.Close()
		}
		if onEnd != nil {
			onEnd()
		}
		c.logger.Debug("channel ended", "err", err)
		for _, h := range hooks {
			h(err)
		}
	})
}
