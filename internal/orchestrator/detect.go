// internal/orchestrator/detect.go

package orchestrator

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"agentManager/internal/agent"
	"agentManager/internal/shellsafe"
)

// detectCommand probes for name after the same PATH enrichment and profile
// sourcing a session gets. It runs in the exec channel's plain shell, never a
// login shell, because login profiles can block on interactive output.
func detectCommand(name string) string {
	return agent.PathPreamble() + "; " + agent.ProfileSourcing() + "; command -v " + shellsafe.QuoteIfNeeded(name)
}

// DetectAgents returns the ids of the detectable providers whose CLI is on
// PATH for connID, in registry order. Results are cached per connection for
// DetectionTTL; force bypasses and refreshes the cache.
func (o *Orchestrator) DetectAgents(ctx context.Context, connID string, force bool) ([]string, error) {
	if !force {
		o.detectMu.Lock()
		d, ok := o.detected[connID]
		o.detectMu.Unlock()
		if ok && o.clockFn().Sub(d.at) < o.opts.DetectionTTL {
			return append([]string(nil), d.providers...), nil
		}
	}

	candidates := o.opts.Registry.Detectable()
	found := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range candidates {
		g.Go(func() error {
			for _, name := range p.CandidateCommands() {
				res, err := o.opts.Transport.ExecuteCommand(gctx, connID, detectCommand(name), "")
				if err != nil {
					o.logger.Warn("agent detection failed", "connection", connID, "provider", p.ID, "err", err)
					return err
				}
				if res.OK() && strings.TrimSpace(res.Stdout) != "" {
					found[i] = true
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ids []string
	for i, ok := range found {
		if ok {
			ids = append(ids, candidates[i].ID)
		}
	}

	o.detectMu.Lock()
	o.detected[connID] = detection{providers: ids, at: o.clockFn()}
	o.detectMu.Unlock()

	o.logger.Info("agents detected", "connection", connID, "providers", ids)
	return append([]string(nil), ids...), nil
}

// ForgetDetection drops the cached detection result for connID.
func (o *Orchestrator) ForgetDetection(connID string) {
	o.detectMu.Lock()
	delete(o.detected, connID)
	o.detectMu.Unlock()
}
