package sardis

import (
	"context"

	"github.com/sardis-ai/payments-core/internal/confidence"
)

// MemoryApproverResolver returns a static, configured roster of
// approvers per confidence.Level. Real deployments would instead look
// up an agent's owning team/org and its on-call roster.
type MemoryApproverResolver struct {
	byLevel map[confidence.Level][]string
	fallback []string
}

// NewMemoryApproverResolver builds a resolver from a per-level roster.
// fallback is returned for any level not present in byLevel.
// settlement.Engine calls ResolveApprovers for every level except
// LevelAutoApprove.
func NewMemoryApproverResolver(byLevel map[confidence.Level][]string, fallback []string) *MemoryApproverResolver {
	if byLevel == nil {
		byLevel = make(map[confidence.Level][]string)
	}
	return &MemoryApproverResolver{byLevel: byLevel, fallback: fallback}
}

// ResolveApprovers implements settlement.ApproverResolver.
func (r *MemoryApproverResolver) ResolveApprovers(ctx context.Context, agentID string, level confidence.Level) ([]string, error) {
	if approvers, ok := r.byLevel[level]; ok && len(approvers) > 0 {
		return approvers, nil
	}
	return r.fallback, nil
}
