// cmd/agentmgr/app.go

package main

import (
	"context"
	"log/slog"

	"agentManager/internal/agent"
	"agentManager/internal/config"
	"agentManager/internal/credentials"
	"agentManager/internal/health"
	"agentManager/internal/identity"
	"agentManager/internal/models"
	"agentManager/internal/orchestrator"
	"agentManager/internal/providers"
	"agentManager/internal/ssh"
	"agentManager/internal/store"
	"agentManager/internal/workspace"
)

func setDefaultLogger(l *slog.Logger) {
	slog.SetDefault(l)
}

// app is the wired object graph shared by the commands.
type app struct {
	settings config.Settings
	cfg      *config.Manager
	logger   *slog.Logger

	creds    *credentials.Store
	pool     *ssh.Pool
	monitor  *health.Monitor
	registry *providers.Registry
	identity *identity.Store
	sessions *agent.Service
	store    *store.Store
	orch     *orchestrator.Orchestrator
}

func newApp(root *rootOptions) (*app, error) {
	a := &app{
		settings: root.cfg.Settings(),
		cfg:      root.cfg,
		logger:   slog.Default(),
	}
	s := a.settings

	credPath, err := credentials.DefaultPath()
	if err != nil {
		return nil, err
	}
	a.creds = credentials.Open(credPath, credentials.PromptPassphrase)

	hostKeys, err := ssh.DefaultHostKeyCallback()
	if err != nil {
		return nil, err
	}
	a.pool = ssh.NewPool(ssh.Options{
		MaxConnections:  s.MaxConnections,
		HostKeyCallback: hostKeys,
		Logger:          a.logger,
		OnDisconnect: func(id string, err error) {
			a.logger.Warn("connection dropped", "connection", id, "err", err)
			a.monitor.HandleDisconnect(id)
		},
	})
	a.monitor = health.New(health.Options{
		Probe:       a.pool.IsConnected,
		Reconnect:   a.reconnect,
		Interval:    s.HealthInterval.Duration,
		Delays:      s.Delays(),
		MaxAttempts: s.MaxReconnectAttempts,
		OnStateChange: func(id string, state health.State) {
			a.logger.Info("connection state changed", "connection", id, "state", state)
		},
		OnReconnectFailed: func(id string, attempts int, reason string) {
			a.logger.Error("connection lost", "connection", id, "attempt", attempts, "err", reason)
		},
		Logger: a.logger,
	})

	a.registry = providers.Default()
	overrides, err := providers.DefaultOverridesPath()
	if err != nil {
		return nil, err
	}
	if err := a.registry.LoadOverrides(overrides); err != nil {
		return nil, err
	}

	idPath, err := identity.DefaultPath()
	if err != nil {
		return nil, err
	}
	a.identity = identity.NewStore(idPath, a.logger)

	a.sessions = agent.NewService(agent.Options{
		Open:           agent.FromPool(a.pool),
		Identity:       a.identity,
		Registry:       a.registry,
		Logger:         a.logger,
		KeystrokeDelay: s.KeystrokeDelay.Duration,
	})

	storePath, err := store.DefaultPath()
	if err != nil {
		return nil, err
	}
	if a.store, err = store.Open(storePath); err != nil {
		return nil, err
	}

	a.orch = orchestrator.New(orchestrator.Options{
		Transport:    a.pool,
		Sessions:     a.sessions,
		Identity:     a.identity,
		Registry:     a.registry,
		Store:        a.store,
		Workspaces:   workspace.NewManager(a.pool, a.logger),
		Logger:       a.logger,
		DetectionTTL: s.DetectionTTL.Duration,
		Shell:        s.DefaultShell,
		Cols:         s.DefaultCols,
		Rows:         s.DefaultRows,
	})
	return a, nil
}

func (a *app) params(id string) (ssh.ConnectParams, error) {
	conn, err := a.cfg.FindConnection(id)
	if err != nil {
		return ssh.ConnectParams{}, err
	}
	secret, err := a.creds.Resolve(conn)
	if err != nil {
		return ssh.ConnectParams{}, err
	}
	return ssh.ConnectParams{Connection: conn, Secret: secret}, nil
}

// connect dials a configured connection. The local context needs no dial.
func (a *app) connect(ctx context.Context, id string) error {
	if id == ssh.LocalConnectionID {
		return nil
	}
	params, err := a.params(id)
	if err != nil {
		return err
	}
	_, err = a.pool.Connect(ctx, id, params)
	return err
}

func (a *app) reconnect(ctx context.Context, id string, cfg models.Connection, attempt int) bool {
	secret, err := a.creds.Resolve(cfg)
	if err == nil {
		_, err = a.pool.Reconnect(ctx, id, ssh.ConnectParams{Connection: cfg, Secret: secret})
	}
	if err != nil {
		a.logger.Warn("reconnect attempt failed", "connection", id, "attempt", attempt, "err", err)
		return false
	}
	return true
}

// connectAll dials every configured connection and monitors the ones that
// came up. Failures are logged and skipped.
func (a *app) connectAll(ctx context.Context) int {
	n := 0
	for _, c := range a.cfg.GetConnections() {
		if err := a.connect(ctx, c.ID); err != nil {
			a.logger.Warn("connect failed", "connection", c.ID, "err", err)
			continue
		}
		a.monitor.StartMonitoring(c.ID, c)
		n++
	}
	return n
}

func (a *app) close() {
	a.monitor.Close()
	a.pool.Close()
}
