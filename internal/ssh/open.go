// internal/ssh/open.go

package ssh

import (
	"context"

	"agentManager/internal/apperr"
)

const (
	DefaultCols = 120
	DefaultRows = 40
	DefaultTerm = "xterm-256color"
)

// ChannelOptions configures an interactive channel.
type ChannelOptions struct {
	ID   string
	Cols int
	Rows int
	Term string
	// Shell is an absolute shell path; empty means the account's login shell.
	Shell string
}

func (o *ChannelOptions) defaults() {
	if o.Cols <= 0 {
		o.Cols = DefaultCols
	}
	if o.Rows <= 0 {
		o.Rows = DefaultRows
	}
	if o.Term == "" {
		o.Term = DefaultTerm
	}
}

// OpenInteractiveChannel registers a channel on connection id and returns it
// at once. PTY allocation and shell start continue in the background; use
// WaitReady before the first write. The channel outlives ctx and ends only
// when closed or when the remote process exits.
func (p *Pool) OpenInteractiveChannel(ctx context.Context, id string, opts ChannelOptions) (*Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.defaults()
	if opts.ID == "" {
		return nil, apperr.New(apperr.Validation, "open channel", id, errEmptyChannelID)
	}

	c, err := p.client(id)
	if err != nil {
		return nil, apperr.New(apperr.Connection, "open channel", id, err)
	}

	ch := newChannel(p.ctx, opts.ID, id, p.logger)
	ch.onEnd = func() { p.forget(ch) }

	p.mu.Lock()
	if existing, ok := p.channels[opts.ID]; ok {
		select {
		case <-existing.Done():
		default:
			p.mu.Unlock()
			return nil, apperr.New(apperr.Session, "open channel", opts.ID, ErrChannelExists)
		}
	}
	p.channels[opts.ID] = ch
	p.mu.Unlock()

	var start startFunc
	if c.conn == nil {
		start = startLocal(opts)
	} else {
		start = startRemote(c.conn, opts)
	}
	go ch.run(start)

	p.logger.Debug("channel opened", "channel", opts.ID, "connection", id)
	return ch, nil
}

func (p *Pool) forget(ch *Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channels[ch.id] == ch {
		delete(p.channels, ch.id)
	}
}
