// internal/shellsafe/quote.go

// Package shellsafe builds shell text that is safe to hand to a remote POSIX shell.
package shellsafe

import (
	"regexp"
	"strings"
)

// Quote wraps s in single quotes so that a POSIX shell reads it back byte for byte.
// Embedded single quotes become '\'' (close, escaped quote, reopen).
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var plainArg = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// QuoteIfNeeded leaves plain flag-like arguments untouched and quotes everything else.
func QuoteIfNeeded(s string) string {
	if plainArg.MatchString(s) {
		return s
	}
	return Quote(s)
}

// Join quotes every argument as needed and joins them with single spaces.
func Join(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, QuoteIfNeeded(a))
	}
	return strings.Join(quoted, " ")
}
