package agent

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentManager/internal/providers"
)

func provider(t *testing.T, id string) providers.Provider {
	t.Helper()
	p, ok := providers.Default().Get(id)
	require.True(t, ok, id)
	return p
}

func TestBuildCommand(t *testing.T) {
	claude := provider(t, "claude")
	gemini := provider(t, "gemini")
	goose := provider(t, "goose")
	uuid := "6f1d2c3b-0a9e-4f7d-8b6a-5c4d3e2f1a0b"

	cases := []struct {
		name     string
		p        providers.Provider
		o        CommandOptions
		identity []string
		want     string
	}{
		{"bare", claude, CommandOptions{}, nil, "claude"},
		{"auto approve", claude, CommandOptions{AutoApprove: true}, nil, "claude --dangerously-skip-permissions"},
		{"identity", claude, CommandOptions{}, []string{"--session-id", uuid}, "claude --session-id " + uuid},
		{"prompt kept during resume", claude, CommandOptions{Resume: true, Prompt: "and now tests"}, []string{"--resume", uuid},
			"claude --resume " + uuid + " 'and now tests'"},
		{"generic resume", claude, CommandOptions{Resume: true}, nil, "claude --continue"},
		{"prompt flag", gemini, CommandOptions{Prompt: "it's broken"}, nil, `gemini --prompt-interactive 'it'\''s broken'`},
		{"multi word resume flag", gemini, CommandOptions{Resume: true, Prompt: "go"}, nil, "gemini --resume latest --prompt-interactive 'go'"},
		{"auto start command", goose, CommandOptions{Prompt: "typed later"}, nil, "goose session"},
		{"extra args quoted", claude, CommandOptions{ExtraArgs: []string{"--model", "opus 4"}}, nil, "claude --model 'opus 4'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildCommand(tc.p, tc.o, tc.identity))
		})
	}
}

func TestNeedsKeystrokeInjection(t *testing.T) {
	assert.True(t, NeedsKeystrokeInjection(provider(t, "opencode"), "hi"))
	assert.False(t, NeedsKeystrokeInjection(provider(t, "opencode"), ""))
	assert.False(t, NeedsKeystrokeInjection(provider(t, "claude"), "hi"))
	assert.True(t, NeedsKeystrokeInjection(providers.Provider{ID: "x"}, "hi"))
}

func TestPassthroughEnv(t *testing.T) {
	env := PassthroughEnv([]string{
		"ANTHROPIC_API_KEY=sk-1",
		"OPENAI_API_KEY=",
		"AWS_PROFILE=dev",
		"AZURE_OPENAI_ENDPOINT=https://x",
		"HOME=/home/me",
		"PATH=/bin",
		"malformed",
	})
	assert.Equal(t, map[string]string{
		"ANTHROPIC_API_KEY":     "sk-1",
		"AWS_PROFILE":           "dev",
		"AZURE_OPENAI_ENDPOINT": "https://x",
	}, env)
}

func TestExportLines(t *testing.T) {
	lines := ExportLines(map[string]string{"B": "2", "A": "it's", "9X": "no", "C-D": "no"})
	assert.Equal(t, []string{`export A='it'\''s'`, "export B='2'"}, lines)
}

func runSh(t *testing.T, home, script string) string {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.Env = []string{"HOME=" + home, "PATH=/usr/bin:/bin"}
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return string(out)
}

func TestGuardLineInShell(t *testing.T) {
	dir := t.TempDir()

	missing := providers.Provider{ID: "ghost", Name: "Ghost", CLI: "ghost-agent-does-not-exist", InstallCommand: "npm i -g ghost"}
	out := runSh(t, dir, GuardLine(missing, dir, "ghost-agent-does-not-exist"))
	assert.Contains(t, out, "Ghost (ghost-agent-does-not-exist) was not found on PATH.")
	assert.Contains(t, out, "Install it with: npm i -g ghost")

	present := providers.Provider{ID: "sh", Name: "Shell", CLI: "sh"}
	out = runSh(t, dir, GuardLine(present, dir, "sh -c 'pwd'"))
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{dir, resolved}, strings.TrimSpace(out))
}

func TestPreambleAndProfileInShell(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".nvm/versions/node/v20.1.0/bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".profile"), []byte("export FROM_PROFILE=yes\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".bashrc"), []byte("false\n"), 0644))

	script := strings.Join([]string{PathPreamble(), ProfileSourcing(), `printf '%s|%s' "$FROM_PROFILE" "$PATH"`}, "\n")
	out := runSh(t, home, script)

	parts := strings.SplitN(out, "|", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "yes", parts[0])
	assert.True(t, strings.HasPrefix(parts[1], home+"/.nvm/versions/node/v20.1.0/bin:"+home+"/.local/share/mise/shims:"), parts[1])
	assert.Contains(t, parts[1], home+"/.volta/bin")
}

func TestInitLinesOrder(t *testing.T) {
	lines := InitLines(InitOptions{
		Provider: provider(t, "codex"),
		Cwd:      "/w",
		Env:      map[string]string{"Z": "1", "A": "2"},
		Command:  "codex",
	})
	require.Len(t, lines, 5)
	assert.Equal(t, PathPreamble(), lines[0])
	assert.Equal(t, ProfileSourcing(), lines[1])
	assert.Equal(t, "export A='2'", lines[2])
	assert.Equal(t, "export Z='1'", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "cd '/w' && if command -v codex"))
}
