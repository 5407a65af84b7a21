// cmd/agentmgr/main.go

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agentManager/internal/config"
	"agentManager/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
	verbose    bool

	cfg      *config.Manager
	closeLog func() error
}

// prepare loads the config and builds the process logger. Flags win over the
// [settings] table.
func (r *rootOptions) prepare() error {
	r.cfg = config.NewManager(r.configPath)
	if err := r.cfg.Load(); err != nil {
		return err
	}
	s := r.cfg.Settings()
	level := s.LogLevel
	if r.logLevel != "" {
		level = r.logLevel
	}
	file := s.LogFile
	if r.logFile != "" {
		file = r.logFile
	}
	logger, closeFn, err := logging.New(logging.Options{Level: level, File: file, Stderr: r.verbose})
	if err != nil {
		return err
	}
	setDefaultLogger(logger)
	r.closeLog = closeFn
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "agentmgr",
		Short:         "Run CLI coding agents in isolated workspaces over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.toml (default $AGENTMGR_CONFIG or ~/.config/agentmgr/config.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "log file path, - to disable (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "also log to stderr")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.prepare()
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		if opts.closeLog != nil {
			return opts.closeLog()
		}
		return nil
	}

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newDetectCmd(opts))
	rootCmd.AddCommand(newExecCmd(opts))
	rootCmd.AddCommand(newAttachCmd(opts))
	rootCmd.AddCommand(newTasksCmd(opts))
	rootCmd.AddCommand(newIdentityCmd())
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(newConnectionsCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
