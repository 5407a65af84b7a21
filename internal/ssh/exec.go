// internal/ssh/exec.go

package ssh

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"golang.org/x/crypto/ssh"

	"agentManager/internal/apperr"
	"agentManager/internal/shellsafe"
)

// LocalShell runs one-shot commands for the local context.
const LocalShell = "/bin/sh"

// CommandResult is the outcome of a command that ran to completion. A
// non-zero ExitCode is a result, not an error.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports a zero exit status.
func (r CommandResult) OK() bool { return r.ExitCode == 0 }

// WithCwd prefixes command with a cd into cwd when cwd is set.
func WithCwd(command, cwd string) string {
	if cwd == "" {
		return command
	}
	return "cd " + shellsafe.Quote(cwd) + " && " + command
}

// ExecuteCommand runs command on connection id over a non-interactive
// session. Only transport failures are returned as errors; cancelling ctx
// closes the session.
func (p *Pool) ExecuteCommand(ctx context.Context, id, command, cwd string) (CommandResult, error) {
	c, err := p.client(id)
	if err != nil {
		return CommandResult{}, apperr.New(apperr.Connection, "exec", id, err)
	}
	full := WithCwd(command, cwd)

	if c.conn == nil {
		return runLocal(ctx, full)
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return CommandResult{}, apperr.New(apperr.Connection, "exec", id, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	err = session.Run(full)
	stop()

	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		return res, apperr.New(apperr.Command, "exec", id, ctx.Err())
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	default:
		return res, apperr.New(apperr.Connection, "exec", id, err)
	}
}

func runLocal(ctx context.Context, command string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, LocalShell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		return res, apperr.New(apperr.Command, "exec", LocalConnectionID, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, apperr.New(apperr.Command, "exec", LocalConnectionID, err)
	}
}
