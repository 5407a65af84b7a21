// internal/ptyid/ptyid.go

// Package ptyid builds and parses channel identifiers of the form
// {providerId}-main-{taskId} and {providerId}-chat-{conversationId}.
package ptyid

import (
	"errors"
	"sort"
	"strings"
)

// Kind distinguishes a task's main channel from auxiliary chat channels.
type Kind string

const (
	KindMain Kind = "main"
	KindChat Kind = "chat"
)

// ErrUnrecognized is returned when no known provider prefixes the identifier.
var ErrUnrecognized = errors.New("unrecognized channel id")

// ID is a parsed channel identifier.
type ID struct {
	ProviderID string
	Kind       Kind
	Suffix     string
}

// String renders the identifier.
func (id ID) String() string {
	return Make(id.ProviderID, id.Kind, id.Suffix)
}

// Make builds a channel identifier.
func Make(providerID string, kind Kind, suffix string) string {
	return providerID + "-" + string(kind) + "-" + suffix
}

// Main is shorthand for Make(providerID, KindMain, taskID).
func Main(providerID, taskID string) string {
	return Make(providerID, KindMain, taskID)
}

// Chat is shorthand for Make(providerID, KindChat, conversationID).
func Chat(providerID, conversationID string) string {
	return Make(providerID, KindChat, conversationID)
}

// Parse splits id using the known provider ids. Longer provider ids are tried
// first so that a provider whose id prefixes another one never shadows it.
func Parse(id string, providerIDs []string) (ID, error) {
	candidates := append([]string(nil), providerIDs...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	for _, p := range candidates {
		rest, ok := strings.CutPrefix(id, p+"-")
		if !ok {
			continue
		}
		for _, k := range []Kind{KindMain, KindChat} {
			if suffix, ok := strings.CutPrefix(rest, string(k)+"-"); ok && suffix != "" {
				return ID{ProviderID: p, Kind: k, Suffix: suffix}, nil
			}
		}
	}
	return ID{}, ErrUnrecognized
}

// KindOf guesses the kind without a provider list. It is used where only the
// kind matters and suffixes never contain "-main-" or "-chat-".
func KindOf(id string) Kind {
	if strings.Contains(id, "-"+string(KindChat)+"-") {
		return KindChat
	}
	return KindMain
}
