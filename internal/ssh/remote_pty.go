// internal/ssh/remote_pty.go

package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

var terminalModes = ssh.TerminalModes{
	ssh.ECHO:          1,
	ssh.TTY_OP_ISPEED: 14400,
	ssh.TTY_OP_OSPEED: 14400,
	ssh.VINTR:         3,  // Ctrl+C
	ssh.VQUIT:         28, // Ctrl+\
	ssh.VERASE:        127,
	ssh.VKILL:         21, // Ctrl+U
	ssh.VEOF:          4,  // Ctrl+D
	ssh.VWERASE:       23, // Ctrl+W
	ssh.VLNEXT:        22, // Ctrl+V
	ssh.VSUSP:         26, // Ctrl+Z
}

type remoteBackend struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func startRemote(client *ssh.Client, opts ChannelOptions) startFunc {
	return func(ctx context.Context) (backend, error) {
		session, err := client.NewSession()
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		stop := context.AfterFunc(ctx, func() { _ = session.Close() })
		defer stop()

		stdin, err := session.StdinPipe()
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
		stdout, err := session.StdoutPipe()
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}

		if err := session.RequestPty(opts.Term, opts.Rows, opts.Cols, terminalModes); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to request PTY: %w", err)
		}

		if opts.Shell != "" {
			err = session.Start(opts.Shell)
		} else {
			err = session.Shell()
		}
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to start shell: %w", err)
		}
		if ctx.Err() != nil {
			session.Close()
			return nil, ctx.Err()
		}

		return &remoteBackend{session: session, stdin: stdin, stdout: stdout}, nil
	}
}

func (b *remoteBackend) Read(p []byte) (int, error)  { return b.stdout.Read(p) }
func (b *remoteBackend) Write(p []byte) (int, error) { return b.stdin.Write(p) }

func (b *remoteBackend) Resize(cols, rows int) error {
	return b.session.WindowChange(rows, cols)
}

func (b *remoteBackend) Wait() error {
	err := b.session.Wait()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (b *remoteBackend) Close() error {
	err := b.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
