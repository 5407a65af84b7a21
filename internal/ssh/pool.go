// internal/ssh/pool.go

// Package ssh pools authenticated SSH connections and opens one-shot exec
// sessions and interactive PTY channels on them. The connection id "local"
// runs the same operations on this machine.
package ssh

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"agentManager/internal/apperr"
)

// LocalConnectionID names the local execution context. It is always
// connected and never counts toward the pool capacity.
const LocalConnectionID = "local"

const (
	DefaultMaxConnections = 10
	defaultDialTimeout    = 15 * time.Second
	defaultProbeTimeout   = 10 * time.Second
	keepaliveRequest      = "keepalive@openssh.com"
)

// DialFunc opens the raw transport to addr.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options configures a Pool.
type Options struct {
	MaxConnections  int
	Dial            DialFunc
	HostKeyCallback ssh.HostKeyCallback
	DialTimeout     time.Duration
	ProbeTimeout    time.Duration
	Logger          *slog.Logger
	// OnDisconnect is called when a transport drops without Disconnect having
	// been called for it.
	OnDisconnect func(id string, err error)
}

// Client is one pooled connection.
type Client struct {
	id          string
	addr        string
	conn        *ssh.Client
	connectedAt time.Time
	closing     atomic.Bool
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// SSH returns the underlying client, nil for the local context.
func (c *Client) SSH() *ssh.Client { return c.conn }

// ConnStatus is a snapshot of one pooled connection.
type ConnStatus struct {
	ID          string
	Address     string
	ConnectedAt time.Time
	Channels    int
}

// Pool manages a bounded set of SSH connections keyed by connection id.
type Pool struct {
	opts   Options
	logger *slog.Logger
	group  singleflight.Group
	local  *Client

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]*Channel
}

// NewPool creates an empty pool.
func NewPool(opts Options) *Pool {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: opts.DialTimeout}
		opts.Dial = d.DialContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		opts:     opts,
		logger:   logger.With("component", "ssh-pool"),
		local:    &Client{id: LocalConnectionID, connectedAt: time.Now()},
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[string]*Client),
		channels: make(map[string]*Channel),
	}
}

// Connect returns the live connection for id, dialing when there is none.
// Concurrent calls for the same id share one dial and its result.
func (p *Pool) Connect(ctx context.Context, id string, params ConnectParams) (*Client, error) {
	if id == LocalConnectionID {
		return p.local, nil
	}
	if c := p.lookup(id); c != nil {
		return c, nil
	}

	v, err, _ := p.group.Do(id, func() (interface{}, error) {
		if c := p.lookup(id); c != nil {
			return c, nil
		}
		if err := p.checkCapacity(id); err != nil {
			return nil, err
		}
		return p.dial(ctx, id, params)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

func (p *Pool) lookup(id string) *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[id]
}

func (p *Pool) checkCapacity(id string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.clients[id]; !ok && len(p.clients) >= p.opts.MaxConnections {
		return apperr.New(apperr.Connection, "connect", id,
			fmt.Errorf("%w (%d connections)", ErrCapacity, p.opts.MaxConnections))
	}
	return nil
}

func (p *Pool) dial(ctx context.Context, id string, params ConnectParams) (*Client, error) {
	conn := params.Connection
	if err := conn.Validate(); err != nil {
		return nil, apperr.New(apperr.Validation, "connect", id, err)
	}

	auth, cleanup, err := authMethods(params)
	defer cleanup()
	if err != nil {
		return nil, apperr.New(apperr.Connection, "connect", id, err)
	}

	hostKey := p.opts.HostKeyCallback
	if hostKey == nil {
		if hostKey, err = DefaultHostKeyCallback(); err != nil {
			return nil, apperr.New(apperr.Connection, "connect", id, err)
		}
	}

	cfg := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         p.opts.DialTimeout,
	}

	addr := conn.Address()
	dialCtx, cancel := context.WithTimeout(ctx, p.opts.DialTimeout)
	defer cancel()

	p.logger.Debug("dialing", "connection", id, "addr", addr)
	raw, err := p.opts.Dial(dialCtx, "tcp", addr)
	if err != nil {
		return nil, apperr.New(apperr.Connection, "connect", id, fmt.Errorf("failed to dial: %w", err))
	}

	if deadline, ok := dialCtx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	stop := context.AfterFunc(dialCtx, func() { _ = raw.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	stopped := stop()
	if err != nil {
		_ = raw.Close()
		return nil, apperr.New(apperr.Connection, "connect", id, fmt.Errorf("handshake failed: %w", err))
	}
	if !stopped {
		sshConn.Close()
		return nil, apperr.New(apperr.Connection, "connect", id, dialCtx.Err())
	}
	_ = raw.SetDeadline(time.Time{})

	c := &Client{
		id:          id,
		addr:        addr,
		conn:        ssh.NewClient(sshConn, chans, reqs),
		connectedAt: time.Now(),
	}

	p.mu.Lock()
	if len(p.clients) >= p.opts.MaxConnections {
		p.mu.Unlock()
		c.conn.Close()
		return nil, apperr.New(apperr.Connection, "connect", id,
			fmt.Errorf("%w (%d connections)", ErrCapacity, p.opts.MaxConnections))
	}
	p.clients[id] = c
	p.mu.Unlock()

	p.logger.Info("connected", "connection", id, "addr", addr)
	go p.watch(c)
	return c, nil
}

// watch removes c from the pool once its transport ends.
func (p *Pool) watch(c *Client) {
	err := c.conn.Wait()

	p.mu.Lock()
	if p.clients[c.id] == c {
		delete(p.clients, c.id)
	}
	p.mu.Unlock()

	if c.closing.Load() {
		return
	}
	p.logger.Warn("transport dropped", "connection", c.id, "err", err)
	if p.opts.OnDisconnect != nil {
		p.opts.OnDisconnect(c.id, err)
	}
}

// Disconnect closes the connection and its channels. Unknown ids are a no-op.
func (p *Pool) Disconnect(id string) {
	p.closeChannels(id)
	if id == LocalConnectionID {
		return
	}

	p.mu.Lock()
	c, ok := p.clients[id]
	delete(p.clients, id)
	p.mu.Unlock()
	if !ok {
		return
	}

	c.closing.Store(true)
	if err := c.conn.Close(); err != nil {
		p.logger.Debug("close", "connection", id, "err", err)
	}
	p.logger.Info("disconnected", "connection", id)
}

// Reconnect replaces the pooled connection for id with a fresh dial. The old
// transport and its channels are closed without an OnDisconnect report, so a
// connection that stopped answering keepalives is rebuilt instead of reused.
func (p *Pool) Reconnect(ctx context.Context, id string, params ConnectParams) (*Client, error) {
	if id == LocalConnectionID {
		return p.local, nil
	}

	p.mu.Lock()
	stale := p.clients[id]
	delete(p.clients, id)
	p.mu.Unlock()
	if stale != nil {
		stale.closing.Store(true)
		if err := stale.conn.Close(); err != nil {
			p.logger.Debug("close", "connection", id, "err", err)
		}
		p.logger.Info("replacing stale connection", "connection", id)
	}
	p.closeChannels(id)

	return p.Connect(ctx, id, params)
}

// DisconnectAll closes every connection.
func (p *Pool) DisconnectAll() {
	p.mu.RLock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		p.Disconnect(id)
	}
	p.closeChannels(LocalConnectionID)
}

// Close disconnects everything and cancels background channel tasks.
func (p *Pool) Close() {
	p.DisconnectAll()
	p.cancel()
}

// IsConnected reports whether id has a live transport that answers a
// keepalive request.
func (p *Pool) IsConnected(id string) bool {
	if id == LocalConnectionID {
		return true
	}
	c := p.lookup(id)
	if c == nil {
		return false
	}

	result := make(chan error, 1)
	go func() {
		_, _, err := c.conn.SendRequest(keepaliveRequest, true, nil)
		result <- err
	}()

	timer := time.NewTimer(p.opts.ProbeTimeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err == nil
	case <-timer.C:
		return false
	}
}

func (p *Pool) client(id string) (*Client, error) {
	if id == LocalConnectionID {
		return p.local, nil
	}
	if c := p.lookup(id); c != nil {
		return c, nil
	}
	return nil, ErrNotConnected
}

// Status returns a snapshot of the pooled connections sorted by id. The local
// context is always included.
func (p *Pool) Status() []ConnStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	counts := make(map[string]int)
	for _, ch := range p.channels {
		counts[ch.connID]++
	}

	out := []ConnStatus{{
		ID:          LocalConnectionID,
		ConnectedAt: p.local.connectedAt,
		Channels:    counts[LocalConnectionID],
	}}
	for id, c := range p.clients {
		out = append(out, ConnStatus{ID: id, Address: c.addr, ConnectedAt: c.connectedAt, Channels: counts[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Channels returns the ids of the open channels on connection id.
func (p *Pool) Channels(id string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for chID, ch := range p.channels {
		if ch.connID == id {
			out = append(out, chID)
		}
	}
	sort.Strings(out)
	return out
}

// Channel returns the open channel with the given id.
func (p *Pool) Channel(id string) (*Channel, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[id]
	return ch, ok
}

func (p *Pool) closeChannels(connID string) {
	p.mu.RLock()
	var chans []*Channel
	for _, ch := range p.channels {
		if ch.connID == connID {
			chans = append(chans, ch)
		}
	}
	p.mu.RUnlock()

	for _, ch := range chans {
		ch.Close()
	}
}
