// internal/config/config.go

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"agentManager/internal/apperr"
	"agentManager/internal/models"
	"agentManager/internal/utils"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultFilePerms      = 0600
	// PathEnv overrides the config file location.
	PathEnv = "AGENTMGR_CONFIG"
)

// Duration is a time.Duration written as "30s", "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Settings is the [settings] table.
type Settings struct {
	LogLevel             string     `toml:"log_level"`
	LogFile              string     `toml:"log_file,omitempty"`
	HealthInterval       Duration   `toml:"health_interval"`
	ReconnectDelays      []Duration `toml:"reconnect_delays"`
	MaxReconnectAttempts int        `toml:"max_reconnect_attempts"`
	DetectionTTL         Duration   `toml:"detection_ttl"`
	KeystrokeDelay       Duration   `toml:"keystroke_delay"`
	MaxConnections       int        `toml:"max_connections"`
	ListenAddr           string     `toml:"listen_addr"`
	DefaultShell         string     `toml:"default_shell,omitempty"`
	DefaultCols          int        `toml:"default_cols"`
	DefaultRows          int        `toml:"default_rows"`
}

// Config is the whole config.toml document.
type Config struct {
	Settings    Settings            `toml:"settings"`
	Connections []models.Connection `toml:"connections"`
}

// Defaults returns the settings used for anything config.toml leaves out.
func Defaults() Settings {
	return Settings{
		LogLevel:       "info",
		HealthInterval: Duration{30 * time.Second},
		ReconnectDelays: []Duration{
			{time.Second}, {5 * time.Second}, {15 * time.Second},
		},
		MaxReconnectAttempts: 3,
		DetectionTTL:         Duration{5 * time.Minute},
		KeystrokeDelay:       Duration{1500 * time.Millisecond},
		MaxConnections:       10,
		ListenAddr:           "127.0.0.1:7433",
		DefaultCols:          120,
		DefaultRows:          40,
	}
}

// Delays returns ReconnectDelays as plain durations.
func (s Settings) Delays() []time.Duration {
	out := make([]time.Duration, len(s.ReconnectDelays))
	for i, d := range s.ReconnectDelays {
		out[i] = d.Duration
	}
	return out
}

// fill replaces zero values with defaults.
func (s *Settings) fill() {
	def := Defaults()
	if s.LogLevel == "" {
		s.LogLevel = def.LogLevel
	}
	if s.HealthInterval.Duration <= 0 {
		s.HealthInterval = def.HealthInterval
	}
	if len(s.ReconnectDelays) == 0 {
		s.ReconnectDelays = def.ReconnectDelays
	}
	if s.MaxReconnectAttempts <= 0 {
		s.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if s.DetectionTTL.Duration <= 0 {
		s.DetectionTTL = def.DetectionTTL
	}
	if s.KeystrokeDelay.Duration <= 0 {
		s.KeystrokeDelay = def.KeystrokeDelay
	}
	if s.MaxConnections <= 0 {
		s.MaxConnections = def.MaxConnections
	}
	if s.ListenAddr == "" {
		s.ListenAddr = def.ListenAddr
	}
	if s.DefaultCols <= 0 {
		s.DefaultCols = def.DefaultCols
	}
	if s.DefaultRows <= 0 {
		s.DefaultRows = def.DefaultRows
	}
}

type Manager struct {
	configPath string
	config     *Config
}

// NewManager returns a manager for configPath. An empty path means
// $AGENTMGR_CONFIG, then ~/.config/agentmgr/config.toml.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		if p, err := GetDefaultConfigPath(); err == nil {
			configPath = p
		} else {
			configPath = DefaultConfigFileName
		}
	}
	return &Manager{
		configPath: configPath,
		config:     &Config{Settings: Defaults()},
	}
}

func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the config file. A missing file is created with defaults.
func (m *Manager) Load() error {
	if _, err := os.Stat(m.configPath); errors.Is(err, os.ErrNotExist) {
		m.config = &Config{Settings: Defaults()}
		return m.Save()
	}

	var cfg Config
	if _, err := toml.DecodeFile(m.configPath, &cfg); err != nil {
		return apperr.New(apperr.Config, "parse config", m.configPath, err)
	}
	cfg.Settings.fill()

	seen := make(map[string]bool, len(cfg.Connections))
	for _, c := range cfg.Connections {
		if err := c.Validate(); err != nil {
			return apperr.New(apperr.Config, "validate connection", c.ID, err)
		}
		if seen[c.ID] {
			return apperr.New(apperr.Config, "validate connection", c.ID, errors.New("duplicate connection id"))
		}
		seen[c.ID] = true
	}

	m.config = &cfg
	return nil
}

// Save writes the config atomically.
func (m *Manager) Save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m.config); err != nil {
		return apperr.New(apperr.Config, "encode config", m.configPath, err)
	}
	if err := utils.AtomicWriteFile(m.configPath, buf.Bytes(), DefaultFilePerms); err != nil {
		return apperr.New(apperr.Config, "write config", m.configPath, err)
	}
	return nil
}

func (m *Manager) Settings() Settings {
	return m.config.Settings
}

// GetConnections returns a copy of the configured connections.
func (m *Manager) GetConnections() []models.Connection {
	return append([]models.Connection(nil), m.config.Connections...)
}

// FindConnection looks a connection up by id.
func (m *Manager) FindConnection(id string) (models.Connection, error) {
	for _, c := range m.config.Connections {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Connection{}, fmt.Errorf("connection %q not found", id)
}

// AddConnection appends c. Ids must be unique.
func (m *Manager) AddConnection(c models.Connection) error {
	if err := c.Validate(); err != nil {
		return apperr.New(apperr.Validation, "add connection", c.ID, err)
	}
	if _, err := m.FindConnection(c.ID); err == nil {
		return apperr.New(apperr.Validation, "add connection", c.ID, errors.New("duplicate connection id"))
	}
	m.config.Connections = append(m.config.Connections, c)
	return nil
}

// UpdateConnection replaces the connection with the same id.
func (m *Manager) UpdateConnection(c models.Connection) error {
	if err := c.Validate(); err != nil {
		return apperr.New(apperr.Validation, "update connection", c.ID, err)
	}
	for i := range m.config.Connections {
		if m.config.Connections[i].ID == c.ID {
			m.config.Connections[i] = c
			return nil
		}
	}
	return fmt.Errorf("connection %q not found", c.ID)
}

// DeleteConnection removes the connection with id.
func (m *Manager) DeleteConnection(id string) error {
	for i, c := range m.config.Connections {
		if c.ID == id {
			m.config.Connections = append(m.config.Connections[:i], m.config.Connections[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("connection %q not found", id)
}

func GetDefaultConfigPath() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return filepath.Clean(utils.ExpandHome(p)), nil
	}
	return utils.AppFile(DefaultConfigFileName)
}
