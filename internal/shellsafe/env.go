// internal/shellsafe/env.go

package shellsafe

import "regexp"

var envVarName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidEnvVarName reports whether name can be used on the left side of an export.
func IsValidEnvVarName(name string) bool {
	return envVarName.MatchString(name)
}

// ExportLine returns "export KEY='value'". Invalid keys yield false and no line;
// they come from user forms, so callers skip them instead of failing.
func ExportLine(key, value string) (string, bool) {
	if !IsValidEnvVarName(key) {
		return "", false
	}
	return "export " + key + "=" + Quote(value), true
}
