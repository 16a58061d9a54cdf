package sardis

import (
	"context"
	"sync"
	"time"

	"github.com/sardis-ai/payments-core/internal/confidence"
)

// MemoryConfidenceContext tracks the per-agent history, budget, KYA
// level, and violation count settlement.Engine's confidence scoring
// step reads, entirely in process memory. A production deployment
// would back this with the agent directory and transaction history
// store instead.
type MemoryConfidenceContext struct {
	mu         sync.RWMutex
	history    map[string][]confidence.HistoryEntry
	budgets    map[string]confidence.Budget
	kya        map[string]confidence.KYALevel
	violations map[string]int

	defaultKYA confidence.KYALevel
}

// NewMemoryConfidenceContext builds an empty context; agents not seen
// before score with defaultKYA and no prior history or violations.
func NewMemoryConfidenceContext(defaultKYA confidence.KYALevel) *MemoryConfidenceContext {
	return &MemoryConfidenceContext{
		history:    make(map[string][]confidence.HistoryEntry),
		budgets:    make(map[string]confidence.Budget),
		kya:        make(map[string]confidence.KYALevel),
		violations: make(map[string]int),
		defaultKYA: defaultKYA,
	}
}

func (c *MemoryConfidenceContext) History(ctx context.Context, agentID string) ([]confidence.HistoryEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]confidence.HistoryEntry(nil), c.history[agentID]...), nil
}

func (c *MemoryConfidenceContext) Budget(ctx context.Context, agentID string) (confidence.Budget, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.budgets[agentID], nil
}

func (c *MemoryConfidenceContext) KYALevel(ctx context.Context, agentID string) (confidence.KYALevel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if level, ok := c.kya[agentID]; ok {
		return level, nil
	}
	return c.defaultKYA, nil
}

func (c *MemoryConfidenceContext) ViolationCount(ctx context.Context, agentID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.violations[agentID], nil
}

// SetKYALevel records an agent's know-your-agent attestation level,
// typically set once during onboarding.
func (c *MemoryConfidenceContext) SetKYALevel(agentID string, level confidence.KYALevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kya[agentID] = level
}

// SetBudget installs agentID's spending budget for the current policy
// period.
func (c *MemoryConfidenceContext) SetBudget(agentID string, budget confidence.Budget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budgets[agentID] = budget
}

// RecordSettlement appends a completed transaction to agentID's history
// and advances its spent-budget counter, so the next confidence score
// reflects it.
func (c *MemoryConfidenceContext) RecordSettlement(ctx context.Context, agentID, merchantID string, amountMinor int64, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[agentID] = append(c.history[agentID], confidence.HistoryEntry{
		AmountMinor: amountMinor,
		MerchantID:  merchantID,
		At:          at,
	})
	budget := c.budgets[agentID]
	budget.SpentTotalMinor += amountMinor
	c.budgets[agentID] = budget
	return nil
}

// RecordViolation increments agentID's violation count, lowering its
// future confidence scores.
func (c *MemoryConfidenceContext) RecordViolation(ctx context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations[agentID]++
	return nil
}
