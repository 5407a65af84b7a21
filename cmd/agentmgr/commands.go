// cmd/agentmgr/commands.go

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentManager/internal/shellsafe"
	"agentManager/internal/ssh"
)

// exitCode makes the process exit with a remote command's status.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func newDetectCmd(root *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "detect <connection>",
		Short: "List the agent CLIs installed on a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.connect(ctx, args[0]); err != nil {
				return err
			}
			ids, err := a.orch.DetectAgents(ctx, args[0], refresh)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no agents found")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tNAME")
			for _, id := range ids {
				p, _ := a.registry.Get(id)
				fmt.Fprintf(w, "%s\t%s\n", id, p.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached detection results")
	return cmd
}

func newExecCmd(root *rootOptions) *cobra.Command {
	var cwd string
	cmd := &cobra.Command{
		Use:   "exec <connection> -- <command...>",
		Short: "Run a one-shot command on a connection",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.connect(ctx, args[0]); err != nil {
				return err
			}
			res, err := a.pool.ExecuteCommand(ctx, args[0], strings.Join(args[1:], " "), cwd)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
			if !res.OK() {
				return exitCode(res.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "remote working directory")
	return cmd
}

func newAttachCmd(root *rootOptions) *cobra.Command {
	var shell string
	cmd := &cobra.Command{
		Use:   "attach <connection>",
		Short: "Open an interactive shell on a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell != "" {
				if err := shellsafe.ValidateShell(shell); err != nil {
					return err
				}
			}
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return errors.New("attach needs a terminal on stdin")
			}

			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			connID := args[0]
			if err := a.connect(ctx, connID); err != nil {
				return err
			}

			cols, rows, err := term.GetSize(fd)
			if err != nil {
				cols, rows = a.settings.DefaultCols, a.settings.DefaultRows
			}
			ch, err := a.pool.OpenInteractiveChannel(ctx, connID, ssh.ChannelOptions{
				ID:    "shell-attach-" + uuid.NewString()[:8],
				Cols:  cols,
				Rows:  rows,
				Shell: shell,
			})
			if err != nil {
				return err
			}
			defer ch.Close()

			out := cmd.OutOrStdout()
			ch.OnData(func(p []byte) { _, _ = out.Write(p) })
			exited := make(chan error, 1)
			ch.OnExit(func(err error) { exited <- err })

			if err := ch.WaitReady(ctx); err != nil {
				return err
			}

			state, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("failed to set raw mode: %w", err)
			}
			defer func() { _ = term.Restore(fd, state) }()

			go func() {
				buf := make([]byte, 4096)
				for {
					n, err := os.Stdin.Read(buf)
					if n > 0 {
						if werr := ch.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}()

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case err := <-exited:
					if err != nil {
						a.logger.Debug("shell ended", "connection", connID, "err", err)
					}
					return nil
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					w, h, err := term.GetSize(fd)
					if err != nil || (w == cols && h == rows) {
						continue
					}
					cols, rows = w, h
					if err := ch.Resize(cols, rows); err != nil {
						a.logger.Warn("resize failed", "connection", connID, "err", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&shell, "shell", "", "absolute shell path (default: login shell)")
	return cmd
}

func newTasksCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect persisted tasks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tCONNECTION\tSTATUS\tWORKSPACE")
			for _, t := range a.orch.Tasks() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.ProviderID, t.ConnectionID, t.Status, t.WorkspacePath)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "attach-file <task> <file>",
		Short: "Upload a file into a task's workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			t, err := a.orch.Task(args[0])
			if err != nil {
				return err
			}
			if err := a.connect(ctx, t.ConnectionID); err != nil {
				return err
			}
			remote, err := a.orch.AttachFile(ctx, t.ID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), remote)
			return nil
		},
	})
	return cmd
}
