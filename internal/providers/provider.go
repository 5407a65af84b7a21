// internal/providers/provider.go

// Package providers describes how each supported agent CLI is invoked.
package providers

// Resume/prompt policies for providers that use session identity.
const (
	// ResumeFresh treats "resume with a new prompt" as a fresh invocation so
	// the prompt is never parsed as a session reference.
	ResumeFresh = "fresh"
	// ResumeCombine passes the resume flag and the prompt together.
	ResumeCombine = "combine"
)

// Provider is the invocation metadata of one agent CLI.
type Provider struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Commands are the binary names probed during detection, in order.
	Commands []string `yaml:"commands"`
	// CLI is the binary checked by the start guard.
	CLI string `yaml:"cli"`
	// AutoStartCommand replaces CLI as the head of the built command line.
	AutoStartCommand string   `yaml:"auto_start_command,omitempty"`
	DefaultArgs      []string `yaml:"default_args,omitempty"`
	AutoApproveFlag  string   `yaml:"auto_approve_flag,omitempty"`
	// InitialPromptFlag precedes the prompt; when empty and PromptPositional
	// is set the prompt is passed as a bare argument.
	InitialPromptFlag     string `yaml:"initial_prompt_flag,omitempty"`
	PromptPositional      bool   `yaml:"prompt_positional,omitempty"`
	UseKeystrokeInjection bool   `yaml:"use_keystroke_injection,omitempty"`
	// ResumeFlag is the generic resume form, split on whitespace.
	ResumeFlag string `yaml:"resume_flag,omitempty"`
	// SessionIDFlag enables the identity subsystem for this provider.
	SessionIDFlag    string `yaml:"session_id_flag,omitempty"`
	ResumeWithPrompt string `yaml:"resume_with_prompt,omitempty"`
	InstallCommand   string `yaml:"install_command,omitempty"`
	Detectable       bool   `yaml:"detectable"`
}

// Binary returns the executable name used by the start guard.
func (p Provider) Binary() string {
	if p.CLI != "" {
		return p.CLI
	}
	if len(p.Commands) > 0 {
		return p.Commands[0]
	}
	return p.ID
}

// CandidateCommands returns the names probed during detection.
func (p Provider) CandidateCommands() []string {
	if len(p.Commands) > 0 {
		return p.Commands
	}
	return []string{p.Binary()}
}

// SupportsPrompt reports whether the initial prompt can be passed on the
// command line.
func (p Provider) SupportsPrompt() bool {
	return !p.UseKeystrokeInjection && (p.InitialPromptFlag != "" || p.PromptPositional)
}

// FreshOnPromptedResume reports whether a resume that carries a follow-up
// prompt is started as a fresh invocation. Only ResumeCombine opts out.
func (p Provider) FreshOnPromptedResume() bool {
	return p.ResumeWithPrompt != ResumeCombine
}
