package policy

import (
	"context"
	"testing"
	"time"
)

func newEvaluator(t *testing.T) (*Evaluator, *MemoryRepository, *MemoryGroupRepository, *MemorySpendingRepository) {
	t.Helper()
	policies := NewMemoryRepository()
	groups := NewMemoryGroupRepository()
	spending := NewMemorySpendingRepository()
	return &Evaluator{Policies: policies, Groups: groups, Spending: spending}, policies, groups, spending
}

func basicPolicy(agentID string) Policy {
	now := time.Now()
	return Policy{
		PolicyID:      "pol-" + agentID,
		AgentID:       agentID,
		LimitPerTx:    10000,
		LimitTotal:    1000000,
		AllowedScopes: []string{AllScopes},
		Daily:         Window{LimitAmount: 50000, WindowStart: now, Duration: 24 * time.Hour},
		Weekly:        Window{LimitAmount: 200000, WindowStart: now, Duration: 7 * 24 * time.Hour},
		Monthly:       Window{LimitAmount: 500000, WindowStart: now, Duration: 30 * 24 * time.Hour},
	}
}

func TestEvaluatePolicyNotFound(t *testing.T) {
	e, _, _, _ := newEvaluator(t)
	d, err := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "missing", Amount: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.Reason != "policy_not_found" {
		t.Fatalf("expected policy_not_found, got %+v", d)
	}
}

func TestEvaluateAllowsWithinLimits(t *testing.T) {
	e, policies, _, _ := newEvaluator(t)
	policies.Save(context.Background(), basicPolicy("agent-1"))

	d, err := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 500, Fee: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allowed, got reason %q", d.Reason)
	}
}

func TestEvaluateRejectsPerTransactionLimit(t *testing.T) {
	e, policies, _, _ := newEvaluator(t)
	policies.Save(context.Background(), basicPolicy("agent-1"))

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 20000, Fee: 0})
	if d.Allowed || d.Reason != "per_transaction_limit" {
		t.Fatalf("expected per_transaction_limit, got %+v", d)
	}
}

func TestEvaluateRejectsScopeNotAllowed(t *testing.T) {
	e, policies, _, _ := newEvaluator(t)
	p := basicPolicy("agent-1")
	p.AllowedScopes = []string{"checkout"}
	policies.Save(context.Background(), p)

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 100, Scope: "refund"})
	if d.Allowed || d.Reason != "scope_not_allowed" {
		t.Fatalf("expected scope_not_allowed, got %+v", d)
	}
}

func TestEvaluateMerchantDenyWinsOverAllow(t *testing.T) {
	e, policies, _, _ := newEvaluator(t)
	p := basicPolicy("agent-1")
	p.MerchantRules = []MerchantRule{
		{Type: RuleAllow, MerchantID: "acme"},
		{Type: RuleDeny, MerchantID: "acme"},
	}
	policies.Save(context.Background(), p)

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 100, MerchantID: "acme"})
	if d.Allowed || d.Reason != "merchant_denied" {
		t.Fatalf("expected merchant_denied, got %+v", d)
	}
}

func TestEvaluateMerchantNotAllowlisted(t *testing.T) {
	e, policies, _, _ := newEvaluator(t)
	p := basicPolicy("agent-1")
	p.MerchantRules = []MerchantRule{{Type: RuleAllow, MerchantID: "acme"}}
	policies.Save(context.Background(), p)

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 100, MerchantID: "other"})
	if d.Allowed || d.Reason != "merchant_not_allowlisted" {
		t.Fatalf("expected merchant_not_allowlisted, got %+v", d)
	}
}

func TestEvaluateMerchantCapExceeded(t *testing.T) {
	e, policies, _, _ := newEvaluator(t)
	p := basicPolicy("agent-1")
	p.MerchantRules = []MerchantRule{{Type: RuleAllow, MerchantID: "acme", MaxPerTransaction: 50}}
	policies.Save(context.Background(), p)

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 100, MerchantID: "acme"})
	if d.Allowed || d.Reason != "merchant_cap_exceeded" {
		t.Fatalf("expected merchant_cap_exceeded, got %+v", d)
	}
}

func TestEvaluateGroupDenyWins(t *testing.T) {
	e, policies, groups, _ := newEvaluator(t)
	policies.Save(context.Background(), basicPolicy("agent-1"))
	groups.SetGroupsForAgent("agent-1", []Group{
		{
			GroupID: "group-1",
			Budget:  Budget{PerTransaction: 100000, Daily: 100000, Monthly: 100000, Total: 100000},
			MerchantPolicy: MerchantPolicy{
				BlockedMerchants: []string{"acme"},
			},
		},
	})

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 100, MerchantID: "acme"})
	if d.Allowed || d.Reason != "group_merchant_blocked" {
		t.Fatalf("expected group_merchant_blocked, got %+v", d)
	}
}

func TestEvaluateGroupTightestLimitWins(t *testing.T) {
	e, policies, groups, _ := newEvaluator(t)
	policies.Save(context.Background(), basicPolicy("agent-1"))
	groups.SetGroupsForAgent("agent-1", []Group{
		{GroupID: "group-1", Budget: Budget{PerTransaction: 50, Daily: 100000, Monthly: 100000, Total: 100000}},
	})

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 100})
	if d.Allowed || d.Reason != "group_per_transaction_limit" {
		t.Fatalf("expected group_per_transaction_limit, got %+v", d)
	}
}

func TestRecordSpendUpdatesTotalsAndGroups(t *testing.T) {
	e, policies, groups, spending := newEvaluator(t)
	policies.Save(context.Background(), basicPolicy("agent-1"))
	groups.SetGroupsForAgent("agent-1", []Group{{GroupID: "group-1"}})

	if err := e.RecordSpend(context.Background(), "agent-1", 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, _ := policies.Get(context.Background(), "agent-1")
	if p.SpentTotal != 500 {
		t.Fatalf("expected spent_total 500, got %d", p.SpentTotal)
	}
	if p.Daily.CurrentSpent != 500 {
		t.Fatalf("expected daily current_spent 500, got %d", p.Daily.CurrentSpent)
	}

	gs, _ := spending.GroupSpending(context.Background(), "group-1")
	if gs.Total != 500 {
		t.Fatalf("expected group total spend 500, got %d", gs.Total)
	}
}

func TestWindowAutoResetsWhenExpired(t *testing.T) {
	e, policies, _, _ := newEvaluator(t)
	p := basicPolicy("agent-1")
	p.Daily.WindowStart = time.Now().Add(-48 * time.Hour)
	p.Daily.CurrentSpent = 49999 // nearly exhausted, but the window is stale
	policies.Save(context.Background(), p)

	d, _ := e.Evaluate(context.Background(), EvaluationRequest{AgentID: "agent-1", Amount: 1000})
	if !d.Allowed {
		t.Fatalf("expected allowed after window auto-reset, got reason %q", d.Reason)
	}
}
