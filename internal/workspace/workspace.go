// internal/workspace/workspace.go

// Package workspace creates and removes per-task git worktrees through the
// transport's one-shot exec.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"agentManager/internal/apperr"
	"agentManager/internal/shellsafe"
	"agentManager/internal/ssh"
	"agentManager/internal/utils"
)

var (
	// ErrPrimaryWorkspace guards the project checkout itself from removal.
	ErrPrimaryWorkspace = errors.New("cannot remove the primary workspace")
	ErrCreateFailed     = errors.New("worktree creation failed")
)

// PreservedFiles are untracked files copied from the project into new
// worktrees when present.
var PreservedFiles = []string{".env", ".env.local", ".envrc"}

// BranchPrefix namespaces agent branches.
const BranchPrefix = "agent/"

// Transport is the subset of the connection pool used here.
type Transport interface {
	ExecuteCommand(ctx context.Context, id, command, cwd string) (ssh.CommandResult, error)
	CopyRemoteFile(ctx context.Context, id, src, dst string) error
}

// Workspace is a created worktree.
type Workspace struct {
	Path   string
	Branch string
}

type Manager struct {
	transport Transport
	logger    *slog.Logger
	suffix    func() string
}

func NewManager(t Transport, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport: t,
		logger:    logger.With("component", "workspace"),
		suffix:    func() string { return uuid.NewString()[:8] },
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a task name into a branch- and path-safe fragment.
func Slug(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	if s == "" {
		return "task"
	}
	return s
}

// Create adds a worktree next to projectPath on a fresh agent branch and
// copies the preserved files into it.
func (m *Manager) Create(ctx context.Context, connID, projectPath, name string) (Workspace, error) {
	project := utils.ToRemotePath(projectPath)
	leaf := Slug(name) + "-" + m.suffix()
	ws := Workspace{
		Path:   utils.RemoteJoin(utils.RemoteParent(project), "worktrees", leaf),
		Branch: BranchPrefix + leaf,
	}

	cmd := "mkdir -p " + shellsafe.Quote(utils.RemoteParent(ws.Path)) +
		" && git worktree add -b " + shellsafe.Quote(ws.Branch) + " " + shellsafe.Quote(ws.Path)
	res, err := m.transport.ExecuteCommand(ctx, connID, cmd, project)
	if err != nil {
		return Workspace{}, err
	}
	if !res.OK() {
		return Workspace{}, apperr.New(apperr.Workspace, "create worktree", ws.Path,
			fmt.Errorf("%w: %s", ErrCreateFailed, explain(res, project)))
	}

	for _, f := range PreservedFiles {
		src := utils.RemoteJoin(project, f)
		dst := utils.RemoteJoin(ws.Path, f)
		if err := m.transport.CopyRemoteFile(ctx, connID, src, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("preserved file not copied", "connection", connID, "file", f, "err", err)
		}
	}

	m.logger.Info("worktree created", "connection", connID, "path", ws.Path, "branch", ws.Branch)
	return ws, nil
}

// explain turns git's output into something a user can act on. Bare exit
// codes and empty output get a generic hint.
func explain(res ssh.CommandResult, project string) string {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not a git repository"):
		return fmt.Sprintf("%s is not a git repository; run git init there or pick the repository root", project)
	case strings.Contains(lower, "invalid reference"), strings.Contains(lower, "does not have any commits"),
		strings.Contains(lower, "not a valid object name"):
		return fmt.Sprintf("the repository at %s has no commits yet; commit once before starting a task", project)
	case strings.Contains(lower, "already exists"):
		return msg + "; remove the stale worktree or branch and retry"
	case msg == "" || strings.HasPrefix(lower, "command failed") || strings.HasPrefix(lower, "exit status"):
		return fmt.Sprintf("git worktree add exited with code %d in %s; check that the directory is a git repository with at least one commit and that git is installed", res.ExitCode, project)
	default:
		return msg
	}
}

// Exists reports whether path is a directory on the connection.
func (m *Manager) Exists(ctx context.Context, connID, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	res, err := m.transport.ExecuteCommand(ctx, connID, "test -d "+shellsafe.Quote(path), "")
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// IsPrimary reports whether path is the project checkout itself.
func IsPrimary(projectPath, path string) bool {
	if strings.TrimSpace(path) == "" {
		return true
	}
	return utils.ToRemotePath(projectPath) == utils.ToRemotePath(path)
}

// Remove deletes the worktree at path and its branch. The project checkout
// itself is never removed.
func (m *Manager) Remove(ctx context.Context, connID, projectPath, path, branch string) error {
	if IsPrimary(projectPath, path) {
		return apperr.New(apperr.Workspace, "remove worktree", path, ErrPrimaryWorkspace)
	}
	project := utils.ToRemotePath(projectPath)

	res, err := m.transport.ExecuteCommand(ctx, connID, "git worktree remove --force "+shellsafe.Quote(path), project)
	if err != nil {
		return err
	}
	if !res.OK() {
		exists, err := m.Exists(ctx, connID, path)
		if err != nil {
			return err
		}
		if exists {
			return apperr.New(apperr.Workspace, "remove worktree", path,
				fmt.Errorf("git worktree remove failed: %s", strings.TrimSpace(res.Stderr)))
		}
	}

	if branch != "" && strings.HasPrefix(branch, BranchPrefix) {
		res, err := m.transport.ExecuteCommand(ctx, connID, "git branch -D "+shellsafe.Quote(branch), project)
		if err != nil {
			return err
		}
		if !res.OK() {
			m.logger.Warn("branch not deleted", "connection", connID, "branch", branch, "err", strings.TrimSpace(res.Stderr))
		}
	}
	m.logger.Info("worktree removed", "connection", connID, "path", path)
	return nil
}
