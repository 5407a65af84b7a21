// internal/providers/builtin.go

package providers

// Builtin returns the providers known without any configuration.
func Builtin() []Provider {
	return []Provider{
		{
			ID:               "claude",
			Name:             "Claude Code",
			Commands:         []string{"claude"},
			CLI:              "claude",
			AutoApproveFlag:  "--dangerously-skip-permissions",
			PromptPositional: true,
			ResumeFlag:       "--continue",
			SessionIDFlag:    "--session-id",
			ResumeWithPrompt: ResumeFresh,
			InstallCommand:   "npm install -g @anthropic-ai/claude-code",
			Detectable:       true,
		},
		{
			ID:               "codex",
			Name:             "Codex",
			Commands:         []string{"codex"},
			CLI:              "codex",
			AutoApproveFlag:  "--full-auto",
			PromptPositional: true,
			ResumeFlag:       "resume --last",
			ResumeWithPrompt: ResumeFresh,
			InstallCommand:   "npm install -g @openai/codex",
			Detectable:       true,
		},
		{
			ID:                "gemini",
			Name:              "Gemini CLI",
			Commands:          []string{"gemini"},
			CLI:               "gemini",
			AutoApproveFlag:   "--yolo",
			InitialPromptFlag: "--prompt-interactive",
			ResumeFlag:        "--resume latest",
			ResumeWithPrompt:  ResumeCombine,
			InstallCommand:    "npm install -g @google/gemini-cli",
			Detectable:        true,
		},
		{
			ID:                "qwen",
			Name:              "Qwen Code",
			Commands:          []string{"qwen"},
			CLI:               "qwen",
			AutoApproveFlag:   "--yolo",
			InitialPromptFlag: "--prompt-interactive",
			ResumeFlag:        "--continue",
			InstallCommand:    "npm install -g @qwen-code/qwen-code",
			Detectable:        true,
		},
		{
			ID:                "copilot",
			Name:              "GitHub Copilot CLI",
			Commands:          []string{"copilot"},
			CLI:               "copilot",
			AutoApproveFlag:   "--allow-all-tools",
			InitialPromptFlag: "-i",
			ResumeFlag:        "--continue",
			InstallCommand:    "npm install -g @github/copilot",
			Detectable:        true,
		},
		{
			ID:               "cursor",
			Name:             "Cursor Agent",
			Commands:         []string{"cursor-agent"},
			CLI:              "cursor-agent",
			AutoApproveFlag:  "-f",
			PromptPositional: true,
			ResumeFlag:       "--resume",
			ResumeWithPrompt: ResumeFresh,
			InstallCommand:   "curl https://cursor.com/install -fsS | bash",
			Detectable:       true,
		},
		{
			ID:                    "opencode",
			Name:                  "OpenCode",
			Commands:              []string{"opencode"},
			CLI:                   "opencode",
			UseKeystrokeInjection: true,
			ResumeFlag:            "--continue",
			InstallCommand:        "npm install -g opencode-ai",
			Detectable:            true,
		},
		{
			ID:                    "amp",
			Name:                  "Amp",
			Commands:              []string{"amp"},
			CLI:                   "amp",
			AutoApproveFlag:       "--dangerously-allow-all",
			UseKeystrokeInjection: true,
			InstallCommand:        "npm install -g @sourcegraph/amp",
			Detectable:            true,
		},
		{
			ID:                    "goose",
			Name:                  "Goose",
			Commands:              []string{"goose"},
			CLI:                   "goose",
			AutoStartCommand:      "goose session",
			UseKeystrokeInjection: true,
			ResumeFlag:            "--resume",
			InstallCommand:        "curl -fsSL https://github.com/block/goose/releases/download/stable/download_cli.sh | bash",
			Detectable:            true,
		},
		{
			ID:               "continue",
			Name:             "Continue CLI",
			Commands:         []string{"cn"},
			CLI:              "cn",
			PromptPositional: true,
			ResumeFlag:       "--resume",
			ResumeWithPrompt: ResumeFresh,
			InstallCommand:   "npm install -g @continuedev/cli",
			Detectable:       true,
		},
		{
			ID:                    "droid",
			Name:                  "Droid",
			Commands:              []string{"droid"},
			CLI:                   "droid",
			UseKeystrokeInjection: true,
			InstallCommand:        "curl -fsSL https://app.factory.ai/cli | sh",
			Detectable:            true,
		},
		{
			ID:                    "shell",
			Name:                  "Shell",
			Commands:              []string{"bash", "sh"},
			CLI:                   "sh",
			AutoStartCommand:      "$SHELL",
			UseKeystrokeInjection: true,
			Detectable:            false,
		},
	}
}
