// internal/agent/initlines.go

package agent

import (
	"fmt"
	"strings"

	"agentManager/internal/providers"
	"agentManager/internal/shellsafe"
)

// shimDirs are version-manager and package-manager bin directories that a
// non-login shell usually lacks. They are prepended to PATH in this order.
var shimDirs = []string{
	"$HOME/.local/share/mise/shims", // mise
	"$HOME/.asdf/shims",             // asdf
	"$HOME/.volta/bin",              // volta
	"$HOME/.local/bin",              // pipx and user installs
	"$HOME/.npm-global/bin",         // npm prefix
	"$HOME/.local/share/fnm/aliases/default/bin",
	"$HOME/.fnm/aliases/default/bin",
	"/home/linuxbrew/.linuxbrew/bin",
	"/opt/homebrew/bin",
	"/usr/local/bin",
}

// PathPreamble returns the PATH enrichment line. Installed nvm node versions
// are added after the static directories.
func PathPreamble() string {
	return `export PATH="` + strings.Join(shimDirs, ":") + `:$PATH"; ` +
		`for d in "$HOME"/.nvm/versions/node/*/bin; do [ -d "$d" ] && PATH="$d:$PATH"; done; export PATH`
}

// ProfileSourcing sources the usual profile files, ignoring their output and
// failures.
func ProfileSourcing() string {
	return `for f in "$HOME/.profile" "$HOME/.bashrc" "$HOME/.bash_profile"; do ` +
		`[ -f "$f" ] && . "$f" >/dev/null 2>&1; done; true`
}

// GuardLine changes into cwd and execs command when the provider's binary is
// on PATH, printing an install hint otherwise.
func GuardLine(p providers.Provider, cwd, command string) string {
	bin := p.Binary()
	msg := []string{fmt.Sprintf("agentmgr: %s (%s) was not found on PATH.", p.Name, bin)}
	if p.InstallCommand != "" {
		msg = append(msg, "Install it with: "+p.InstallCommand)
	}
	quoted := make([]string, len(msg))
	for i, m := range msg {
		quoted[i] = shellsafe.Quote(m)
	}

	guard := "if command -v " + shellsafe.QuoteIfNeeded(bin) + " >/dev/null 2>&1; then exec " + command +
		"; else printf '%s\\n' " + strings.Join(quoted, " ") + "; fi"
	if cwd == "" {
		return guard
	}
	return "cd " + shellsafe.Quote(cwd) + " && " + guard
}

// InitOptions are the inputs of InitLines.
type InitOptions struct {
	Provider providers.Provider
	Cwd      string
	Env      map[string]string
	Command  string
}

// InitLines returns the lines written, in order, to a fresh channel: PATH
// enrichment, profile sourcing, env exports and the guarded exec.
func InitLines(o InitOptions) []string {
	lines := []string{PathPreamble(), ProfileSourcing()}
	lines = append(lines, ExportLines(o.Env)...)
	return append(lines, GuardLine(o.Provider, o.Cwd, o.Command))
}
