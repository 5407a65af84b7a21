// internal/apperr/apperr.go

// Package apperr classifies failures so that callers (the GUI bridge, the CLI)
// can turn them into user-visible state without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Connection
	Command
	Session
	Workspace
	Config
	Crypto
	Validation
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Command:
		return "command"
	case Session:
		return "session"
	case Workspace:
		return "workspace"
	case Config:
		return "config"
	case Crypto:
		return "crypto"
	case Validation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error carries the failure kind, the operation and the object it applied to.
type Error struct {
	Kind   Kind
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Target != "" {
		msg += " " + e.Target
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind, op and target.
func New(kind Kind, op, target string, err error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
