// internal/agent/env.go

package agent

import (
	"sort"
	"strings"

	"agentManager/internal/shellsafe"
)

// passthroughKeys are credential variables copied from the local environment
// into every agent session.
var passthroughKeys = map[string]struct{}{
	"ANTHROPIC_API_KEY":              {},
	"ANTHROPIC_AUTH_TOKEN":           {},
	"ANTHROPIC_BASE_URL":             {},
	"ANTHROPIC_MODEL":                {},
	"CLAUDE_CODE_USE_BEDROCK":        {},
	"CLAUDE_CODE_USE_VERTEX":         {},
	"OPENAI_API_KEY":                 {},
	"OPENAI_BASE_URL":                {},
	"OPENAI_ORG_ID":                  {},
	"GEMINI_API_KEY":                 {},
	"GOOGLE_API_KEY":                 {},
	"GOOGLE_APPLICATION_CREDENTIALS": {},
	"GOOGLE_CLOUD_PROJECT":           {},
	"GOOGLE_CLOUD_LOCATION":          {},
	"GOOGLE_GENAI_USE_VERTEXAI":      {},
	"MISTRAL_API_KEY":                {},
	"DEEPSEEK_API_KEY":               {},
	"DASHSCOPE_API_KEY":              {},
	"OPENROUTER_API_KEY":             {},
	"GROQ_API_KEY":                   {},
	"XAI_API_KEY":                    {},
	"GITHUB_TOKEN":                   {},
	"GH_TOKEN":                       {},
	"AMP_API_KEY":                    {},
	"CURSOR_API_KEY":                 {},
	"FACTORY_API_KEY":                {},
}

// passthroughPrefixes cover credential families with open-ended names.
var passthroughPrefixes = []string{"AWS_", "AZURE_OPENAI_", "VERTEX_"}

// IsPassthroughKey reports whether key is on the credential allow-list.
func IsPassthroughKey(key string) bool {
	if _, ok := passthroughKeys[key]; ok {
		return true
	}
	for _, p := range passthroughPrefixes {
		if strings.HasPrefix(key, p) && shellsafe.IsValidEnvVarName(key) {
			return true
		}
	}
	return false
}

// PassthroughEnv picks the allow-listed, non-empty variables out of environ,
// which has the os.Environ form.
func PassthroughEnv(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" || !IsPassthroughKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// ExportLines renders env as sorted export statements. Invalid names are
// skipped.
func ExportLines(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if line, ok := shellsafe.ExportLine(k, env[k]); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func mergeEnv(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
