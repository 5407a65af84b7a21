// internal/agent/command.go

package agent

import (
	"strings"

	"agentManager/internal/providers"
	"agentManager/internal/shellsafe"
)

// CommandOptions are the per-start inputs of BuildCommand.
type CommandOptions struct {
	Prompt      string
	AutoApprove bool
	Resume      bool
	ExtraArgs   []string
}

// BuildCommand assembles the agent command line. identityArgs come from the
// identity store; when they are nil and a resume was requested the provider's
// generic resume flag is used instead. The prompt is appended whenever the
// provider accepts one on the command line, resume or not.
func BuildCommand(p providers.Provider, o CommandOptions, identityArgs []string) string {
	var parts []string
	if p.AutoStartCommand != "" {
		parts = append(parts, p.AutoStartCommand)
	} else {
		parts = append(parts, shellsafe.QuoteIfNeeded(p.Binary()))
	}

	for _, a := range p.DefaultArgs {
		parts = append(parts, shellsafe.QuoteIfNeeded(a))
	}
	if o.AutoApprove && p.AutoApproveFlag != "" {
		parts = append(parts, strings.Fields(p.AutoApproveFlag)...)
	}

	switch {
	case identityArgs != nil:
		for _, a := range identityArgs {
			parts = append(parts, shellsafe.QuoteIfNeeded(a))
		}
	case o.Resume && p.ResumeFlag != "":
		parts = append(parts, strings.Fields(p.ResumeFlag)...)
	}

	for _, a := range o.ExtraArgs {
		parts = append(parts, shellsafe.QuoteIfNeeded(a))
	}

	if o.Prompt != "" && p.SupportsPrompt() {
		if p.InitialPromptFlag != "" {
			parts = append(parts, p.InitialPromptFlag)
		}
		parts = append(parts, shellsafe.Quote(o.Prompt))
	}
	return strings.Join(parts, " ")
}

// NeedsKeystrokeInjection reports whether prompt must be typed into the
// terminal after start because the command line cannot carry it.
func NeedsKeystrokeInjection(p providers.Provider, prompt string) bool {
	return prompt != "" && !p.SupportsPrompt()
}
