// internal/identity/resolve.go

package identity

import (
	"agentManager/internal/ptyid"
)

// ResumeFlag is the argument paired with a known session id.
const ResumeFlag = "--resume"

// Request describes one identity decision.
type Request struct {
	// IdentityFlag is the provider's session-id flag; empty when the provider
	// has no identity support.
	IdentityFlag string
	ChannelID    string
	ProviderID   string
	// Kind defaults to the kind encoded in ChannelID.
	Kind   ptyid.Kind
	Cwd    string
	Resume bool
}

// ResolveArgs decides which identity arguments to pass to the agent CLI.
// A nil result means the caller should fall back to the provider's generic
// resume flag (when resuming) or pass nothing. When a freshly minted id cannot
// be persisted the arguments are still returned together with the error.
func (s *Store) ResolveArgs(req Request) ([]string, error) {
	if req.IdentityFlag == "" {
		return nil, nil
	}
	if known, ok := s.KnownID(req.ChannelID); ok {
		return []string{ResumeFlag, known}, nil
	}

	kind := req.Kind
	if kind == "" {
		kind = ptyid.KindOf(req.ChannelID)
	}

	mint := kind == ptyid.KindChat ||
		s.HasSibling(req.ChannelID, req.ProviderID, req.Cwd) ||
		!req.Resume
	if !mint {
		return nil, nil
	}

	id := DeterministicID(req.ChannelID)
	args := []string{req.IdentityFlag, id}
	if err := s.MarkCreated(req.ChannelID, id, req.Cwd); err != nil {
		return args, err
	}
	return args, nil
}
