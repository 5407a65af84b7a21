// internal/ssh/local_pty.go

package ssh

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

type localBackend struct {
	cmd  *exec.Cmd
	ptmx *os.File

	waitOnce sync.Once
	waitErr  error
}

func localShell(opts ChannelOptions) string {
	if opts.Shell != "" {
		return opts.Shell
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return LocalShell
}

func startLocal(opts ChannelOptions) startFunc {
	return func(ctx context.Context) (backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmd := exec.Command(localShell(opts))
		cmd.Env = append(os.Environ(), "TERM="+opts.Term)
		if home, err := os.UserHomeDir(); err == nil {
			cmd.Dir = home
		}

		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)})
		if err != nil {
			return nil, fmt.Errorf("failed to start local pty: %w", err)
		}
		return &localBackend{cmd: cmd, ptmx: ptmx}, nil
	}
}

func (b *localBackend) Read(p []byte) (int, error)  { return b.ptmx.Read(p) }
func (b *localBackend) Write(p []byte) (int, error) { return b.ptmx.Write(p) }

func (b *localBackend) Resize(cols, rows int) error {
	return pty.Setsize(b.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (b *localBackend) Wait() error {
	b.waitOnce.Do(func() {
		b.waitErr = b.cmd.Wait()
	})
	return b.waitErr
}

func (b *localBackend) Close() error {
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	return b.ptmx.Close()
}
