package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteJSON(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, AtomicWriteJSON(target, map[string]int{"a": 1}, 0600))
	require.NoError(t, AtomicWriteJSON(target, map[string]int{"b": 2}, 0600))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]int{"b": 2}, got)

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestRemotePaths(t *testing.T) {
	assert.Equal(t, "/srv/repo", ToRemotePath(`\srv\repo\`))
	assert.Equal(t, "/srv/worktrees/a", RemoteJoin("/srv", "worktrees", "a"))
	assert.Equal(t, "/srv", RemoteParent("/srv/repo/"))
	assert.Equal(t, "", ToRemotePath(""))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh", "id_ed25519"), ExpandHome("~/.ssh/id_ed25519"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
}

func TestEnsureDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "state.json")
	require.NoError(t, EnsureDir(target))
	assert.DirExists(t, filepath.Dir(target))
	assert.NoFileExists(t, target)
	require.NoError(t, EnsureDir(target))
}
