package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentManager/internal/identity"
)

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AGENTMGR_CONFIG", "")
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-file=-"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestConnectionsCommands(t *testing.T) {
	home := setupHome(t)

	_, err := run(t, "connections", "add", "prod", "--host", "10.0.0.5", "--user", "deploy")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ".config", "agentmgr", "config.toml"))

	out, err := run(t, "connections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "prod")
	assert.Contains(t, out, "10.0.0.5:22")
	assert.Contains(t, out, "agent")

	_, err = run(t, "connections", "add", "prod", "--host", "10.0.0.6", "--user", "deploy")
	assert.Error(t, err)

	_, err = run(t, "connections", "add", "bad", "--host", "h", "--user", "u", "--auth", "telepathy")
	assert.Error(t, err)

	_, err = run(t, "connections", "rm", "prod")
	require.NoError(t, err)
	out, err = run(t, "connections", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "prod")
}

func TestIdentityCommands(t *testing.T) {
	home := setupHome(t)

	s := identity.NewStore(filepath.Join(home, ".config", "agentmgr", identity.FileName), nil)
	require.NoError(t, s.MarkCreated("claude-main-t1", "3f2a6c1e-0000-4000-8000-000000000001", "/srv/app"))

	out, err := run(t, "identity", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "claude-main-t1")
	assert.Contains(t, out, "3f2a6c1e-0000-4000-8000-000000000001")
	assert.Contains(t, out, "/srv/app")

	_, err = run(t, "identity", "rm", "claude-main-t1")
	require.NoError(t, err)
	out, err = run(t, "identity", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "claude-main-t1")
}

func TestExecLocal(t *testing.T) {
	setupHome(t)

	out, err := run(t, "exec", "local", "--", "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = run(t, "exec", "local", "--", "exit", "3")
	var code exitCode
	require.ErrorAs(t, err, &code)
	assert.Equal(t, exitCode(3), code)

	_, err = run(t, "exec", "missing", "--", "true")
	assert.ErrorContains(t, err, "not found")
}

func TestTasksListEmpty(t *testing.T) {
	setupHome(t)

	out, err := run(t, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "WORKSPACE")
}
