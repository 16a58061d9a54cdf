package policy

import (
	"context"
	"errors"
	"sync"
)

// ErrPolicyNotFound is returned by Repository.Get when an agent has no
// configured policy.
var ErrPolicyNotFound = errors.New("policy: not found")

// Repository resolves and persists an agent's policy and spend counters.
type Repository interface {
	Get(ctx context.Context, agentID string) (Policy, error)
	Save(ctx context.Context, p Policy) error
}

// GroupRepository resolves the groups an agent belongs to.
type GroupRepository interface {
	GroupsForAgent(ctx context.Context, agentID string) ([]Group, error)
}

// SpendingRepository tracks aggregate spend per group.
type SpendingRepository interface {
	GroupSpending(ctx context.Context, groupID string) (GroupSpending, error)
	RecordGroupSpend(ctx context.Context, groupID string, amount int64) error
}

// MemoryRepository is an in-process Repository, matching the teacher's
// coupons.DisabledRepository/YAMLRepository role of "simplest backend that
// satisfies the interface" — here backed by a guarded map instead of a
// static file since policies are written at runtime (record_spend, window
// resets).
type MemoryRepository struct {
	mu       sync.Mutex
	policies map[string]Policy
}

// NewMemoryRepository creates an empty in-memory policy repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{policies: make(map[string]Policy)}
}

func (r *MemoryRepository) Get(ctx context.Context, agentID string) (Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[agentID]
	if !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return p, nil
}

func (r *MemoryRepository) Save(ctx context.Context, p Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.AgentID] = p
	return nil
}

// MemoryGroupRepository is an in-process GroupRepository keyed by agent ID.
type MemoryGroupRepository struct {
	mu     sync.Mutex
	groups map[string][]Group
}

// NewMemoryGroupRepository creates an empty in-memory group repository.
func NewMemoryGroupRepository() *MemoryGroupRepository {
	return &MemoryGroupRepository{groups: make(map[string][]Group)}
}

// SetGroupsForAgent replaces the group membership recorded for agentID.
func (r *MemoryGroupRepository) SetGroupsForAgent(agentID string, groups []Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[agentID] = groups
}

func (r *MemoryGroupRepository) GroupsForAgent(ctx context.Context, agentID string) ([]Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Group(nil), r.groups[agentID]...), nil
}

// MemorySpendingRepository is an in-process SpendingRepository.
type MemorySpendingRepository struct {
	mu       sync.Mutex
	spending map[string]GroupSpending
}

// NewMemorySpendingRepository creates an empty in-memory spending tracker.
func NewMemorySpendingRepository() *MemorySpendingRepository {
	return &MemorySpendingRepository{spending: make(map[string]GroupSpending)}
}

func (r *MemorySpendingRepository) GroupSpending(ctx context.Context, groupID string) (GroupSpending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spending[groupID], nil
}

func (r *MemorySpendingRepository) RecordGroupSpend(ctx context.Context, groupID string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.spending[groupID]
	s.Daily += amount
	s.Monthly += amount
	s.Total += amount
	r.spending[groupID] = s
	return nil
}
