// internal/identity/id.go

// Package identity maps channel identifiers to the backend session ids that
// stateful agent CLIs use to resume a conversation.
package identity

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// DeterministicID derives a v4-shaped UUID from the SHA-256 of seed. The same
// seed always yields the same id.
func DeterministicID(seed string) string {
	return uuid.NewHash(sha256.New(), uuid.Nil, []byte(seed), 4).String()
}
