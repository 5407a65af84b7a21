package workspace

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentManager/internal/ssh"
)

type fakeTransport struct {
	mu      sync.Mutex
	results map[string]ssh.CommandResult
	cmds    []string
	copies  [][2]string
}

func (f *fakeTransport) ExecuteCommand(_ context.Context, _, command, cwd string) (ssh.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, command)
	for prefix, res := range f.results {
		if strings.HasPrefix(command, prefix) {
			return res, nil
		}
	}
	return ssh.CommandResult{}, nil
}

func (f *fakeTransport) CopyRemoteFile(_ context.Context, _, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, [2]string{src, dst})
	if strings.HasSuffix(src, ".envrc") {
		return fs.ErrNotExist
	}
	return nil
}

func newTestManager(f *fakeTransport) *Manager {
	m := NewManager(f, nil)
	m.suffix = func() string { return "abcd1234" }
	return m
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "fix-login-bug", Slug("Fix login bug!"))
	assert.Equal(t, "task", Slug("!!!"))
	assert.Equal(t, "a-b", Slug("--a__b--"))
	assert.LessOrEqual(t, len(Slug(strings.Repeat("long name ", 10))), 40)
}

func TestCreate(t *testing.T) {
	f := &fakeTransport{}
	m := newTestManager(f)

	ws, err := m.Create(context.Background(), "dev", "/home/me/app", "Fix login")
	require.NoError(t, err)
	assert.Equal(t, "/home/me/worktrees/fix-login-abcd1234", ws.Path)
	assert.Equal(t, "agent/fix-login-abcd1234", ws.Branch)

	require.Len(t, f.cmds, 1)
	assert.Equal(t, "mkdir -p '/home/me/worktrees' && git worktree add -b 'agent/fix-login-abcd1234' '/home/me/worktrees/fix-login-abcd1234'", f.cmds[0])
	require.Len(t, f.copies, len(PreservedFiles))
	assert.Equal(t, [2]string{"/home/me/app/.env", "/home/me/worktrees/fix-login-abcd1234/.env"}, f.copies[0])
}

func TestCreateFailureMessages(t *testing.T) {
	cases := map[string]struct {
		res  ssh.CommandResult
		want string
	}{
		"not a repo":  {ssh.CommandResult{ExitCode: 128, Stderr: "fatal: not a git repository (or any of the parent directories): .git"}, "is not a git repository"},
		"no commits":  {ssh.CommandResult{ExitCode: 128, Stderr: "fatal: invalid reference: HEAD"}, "has no commits yet"},
		"generic":     {ssh.CommandResult{ExitCode: 1}, "exited with code 1"},
		"passthrough": {ssh.CommandResult{ExitCode: 1, Stderr: "fatal: disk full"}, "fatal: disk full"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := &fakeTransport{results: map[string]ssh.CommandResult{"mkdir": tc.res}}
			_, err := newTestManager(f).Create(context.Background(), "dev", "/p", "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCreateFailed)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestExists(t *testing.T) {
	f := &fakeTransport{results: map[string]ssh.CommandResult{"test -d '/gone'": {ExitCode: 1}}}
	m := newTestManager(f)

	ok, err := m.Exists(context.Background(), "dev", "/here")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Exists(context.Background(), "dev", "/gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveGuardsPrimary(t *testing.T) {
	f := &fakeTransport{}
	m := newTestManager(f)

	for _, p := range []string{"/home/me/app", "/home/me/app/", "", "/home/me/./app"} {
		err := m.Remove(context.Background(), "dev", "/home/me/app", p, "agent/x")
		assert.ErrorIs(t, err, ErrPrimaryWorkspace, p)
	}
	assert.Empty(t, f.cmds)
}

func TestRemove(t *testing.T) {
	f := &fakeTransport{}
	m := newTestManager(f)

	require.NoError(t, m.Remove(context.Background(), "dev", "/p", "/worktrees/x", "agent/x"))
	assert.Equal(t, []string{"git worktree remove --force '/worktrees/x'", "git branch -D 'agent/x'"}, f.cmds)

	f.cmds = nil
	require.NoError(t, m.Remove(context.Background(), "dev", "/p", "/worktrees/y", "main"))
	assert.Equal(t, []string{"git worktree remove --force '/worktrees/y'"}, f.cmds, "non-agent branches are kept")
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
		"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestWorktreeOnLocalContext(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	project := filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(project, 0755))
	git(t, project, "init", "-q")
	git(t, project, "commit", "-q", "--allow-empty", "-m", "init")
	require.NoError(t, os.WriteFile(filepath.Join(project, ".env"), []byte("K=V\n"), 0600))

	pool := ssh.NewPool(ssh.Options{})
	defer pool.Close()
	m := NewManager(pool, nil)
	ctx := context.Background()

	ws, err := m.Create(ctx, ssh.LocalConnectionID, project, "Local task")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ws.Path, filepath.Join(root, "worktrees", "local-task-")))

	data, err := os.ReadFile(filepath.Join(ws.Path, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "K=V\n", string(data))

	ok, err := m.Exists(ctx, ssh.LocalConnectionID, ws.Path)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Remove(ctx, ssh.LocalConnectionID, project, ws.Path, ws.Branch))
	ok, err = m.Exists(ctx, ssh.LocalConnectionID, ws.Path)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Create(ctx, ssh.LocalConnectionID, root, "not a repo")
	assert.ErrorIs(t, err, ErrCreateFailed)
}
