// cmd/agentmgr/serve.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agentManager/internal/bridge"
	"agentManager/internal/orchestrator"
	"agentManager/internal/ui"
)

var _ bridge.Backend = (*orchestrator.Orchestrator)(nil)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		listen string
		tui    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the configured hosts and serve the GUI bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			// Sessions never survive a restart.
			if _, err := a.orch.Recover(); err != nil {
				return err
			}
			defer a.orch.Shutdown()

			up := a.connectAll(ctx)
			a.logger.Info("connections ready", "count", up, "configured", len(a.cfg.GetConnections()))

			addr := listen
			if addr == "" {
				addr = a.settings.ListenAddr
			}
			srv := bridge.New(bridge.Options{Backend: a.orch, Logger: a.logger})

			if !tui {
				fmt.Fprintf(cmd.OutOrStdout(), "agentmgr listening on %s\n", addr)
				return srv.ListenAndServe(ctx, addr)
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, addr)
			})
			g.Go(func() error {
				defer cancel()
				return ui.Run(gctx, ui.Sources{Pool: a.pool, Health: a.monitor, Agents: a.orch}, ui.DefaultRefreshInterval)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "bridge listen address (overrides settings.listen_addr)")
	cmd.Flags().BoolVar(&tui, "tui", false, "show the status dashboard while serving")
	return cmd
}
