// internal/ssh/errors.go

package ssh

import "errors"

var (
	ErrNotConnected       = errors.New("not connected")
	ErrCapacity           = errors.New("connection pool is full")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUnsupportedAuth    = errors.New("unsupported auth method")
	ErrNotReady           = errors.New("channel not ready")
	ErrChannelClosed      = errors.New("channel closed")
	ErrChannelExists      = errors.New("channel already open")

	errEmptyChannelID = errors.New("channel id cannot be empty")
)
