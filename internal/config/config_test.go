package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentManager/internal/apperr"
	"agentManager/internal/models"
)

func TestLoadMissingWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultConfigFileName)
	m := NewManager(path)
	require.NoError(t, m.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), m.Settings())

	again := NewManager(path)
	require.NoError(t, again.Load())
	assert.Equal(t, Defaults(), again.Settings())
}

func TestLoadPartialSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFileName)
	doc := `
[settings]
health_interval = "10s"
reconnect_delays = ["100ms", "2s"]
max_connections = 4

[[connections]]
id = "prod"
host = "prod.example.com"
username = "deploy"
auth = "private-key"
key_path = "~/.ssh/id_ed25519"

[[connections]]
id = "lab"
host = "10.0.0.5"
port = 2222
username = "me"
auth = "password"
credential_ref = "lab-pw"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	m := NewManager(path)
	require.NoError(t, m.Load())

	s := m.Settings()
	assert.Equal(t, 10*time.Second, s.HealthInterval.Duration)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 2 * time.Second}, s.Delays())
	assert.Equal(t, 4, s.MaxConnections)
	assert.Equal(t, 3, s.MaxReconnectAttempts)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 5*time.Minute, s.DetectionTTL.Duration)

	conns := m.GetConnections()
	require.Len(t, conns, 2)
	assert.Equal(t, models.AuthPrivateKey, conns[0].Auth)
	assert.Equal(t, "10.0.0.5:2222", conns[1].Address())

	c, err := m.FindConnection("lab")
	require.NoError(t, err)
	assert.Equal(t, "lab-pw", c.CredentialRef)
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"syntax":    "[settings\n",
		"duration":  "[settings]\nhealth_interval = \"soon\"\n",
		"auth":      "[[connections]]\nid = \"a\"\nhost = \"h\"\nusername = \"u\"\nauth = \"kerberos\"\n",
		"duplicate": "[[connections]]\nid = \"a\"\nhost = \"h\"\nusername = \"u\"\nauth = \"agent\"\n[[connections]]\nid = \"a\"\nhost = \"h2\"\nusername = \"u\"\nauth = \"agent\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultConfigFileName)
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
			err := NewManager(path).Load()
			require.Error(t, err)
			assert.Equal(t, apperr.Config, apperr.KindOf(err))
		})
	}
}

func TestConnectionCRUDRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFileName)
	m := NewManager(path)
	require.NoError(t, m.Load())

	conn := models.Connection{ID: "a", Host: "h", Username: "u", Auth: models.AuthAgent}
	require.NoError(t, m.AddConnection(conn))
	assert.Error(t, m.AddConnection(conn))
	assert.Error(t, m.AddConnection(models.Connection{ID: "b"}))

	conn.Port = 2200
	require.NoError(t, m.UpdateConnection(conn))
	assert.Error(t, m.UpdateConnection(models.Connection{ID: "zz", Host: "h", Username: "u", Auth: models.AuthAgent}))
	require.NoError(t, m.Save())

	reloaded := NewManager(path)
	require.NoError(t, reloaded.Load())
	got, err := reloaded.FindConnection("a")
	require.NoError(t, err)
	assert.Equal(t, 2200, got.Port)

	require.NoError(t, reloaded.DeleteConnection("a"))
	assert.Error(t, reloaded.DeleteConnection("a"))
	assert.Empty(t, reloaded.GetConnections())
}

func TestDefaultPathFromEnv(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom.toml")
	t.Setenv(PathEnv, want)

	got, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, NewManager("").Path())
}
