package policy

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Evaluator implements the seven ordered steps of spec §4.4 plus the group
// policy pass.
type Evaluator struct {
	Policies Repository
	Groups   GroupRepository
	Spending SpendingRepository

	mu sync.Mutex // serialises RecordSpend's read-modify-write
}

// Evaluate resolves agentID's policy and checks it and every group it
// belongs to against the proposed spend, in the exact order spec §4.4
// prescribes. The first failing check short-circuits the rest.
func (e *Evaluator) Evaluate(ctx context.Context, req EvaluationRequest) (Decision, error) {
	now := time.Now()

	p, err := e.Policies.Get(ctx, req.AgentID)
	if err != nil {
		return deny("policy_not_found"), nil
	}

	if !p.scopeAllowed(req.Scope) {
		return deny("scope_not_allowed"), nil
	}

	total := req.Amount + req.Fee

	if total > p.LimitPerTx {
		return deny("per_transaction_limit"), nil
	}

	if p.SpentTotal+total > p.LimitTotal {
		return deny("total_limit_exceeded"), nil
	}

	p.Daily = p.Daily.resetIfExpired(now)
	p.Weekly = p.Weekly.resetIfExpired(now)
	p.Monthly = p.Monthly.resetIfExpired(now)

	for _, w := range []Window{p.Daily, p.Weekly, p.Monthly} {
		if w.CurrentSpent+total > w.LimitAmount {
			return deny("time_window_limit"), nil
		}
	}

	if req.MerchantID != "" {
		if d := evaluateMerchantRules(p.MerchantRules, req.MerchantID, req.MerchantCategory, req.Amount, now); !d.Allowed {
			return d, nil
		}
	}

	if e.Groups != nil {
		groups, err := e.Groups.GroupsForAgent(ctx, req.AgentID)
		if err != nil {
			return deny("group_policy_error"), nil
		}
		if d, err := e.evaluateGroups(ctx, groups, req, total); err != nil {
			return deny("group_policy_error"), nil
		} else if !d.Allowed {
			return d, nil
		}
	}

	return allow(), nil
}

// evaluateMerchantRules applies deny-first, allowlist-if-present merchant
// rule evaluation (spec §4.4 step 6). amount (not amount+fee) is what the
// matched allow rule's per-transaction cap is compared against.
func evaluateMerchantRules(rules []MerchantRule, merchantID, category string, amount int64, now time.Time) Decision {
	for i := range rules {
		r := rules[i]
		if r.expired(now) || r.Type != RuleDeny {
			continue
		}
		if r.matches(merchantID, category) {
			return deny("merchant_denied")
		}
	}

	var hasAllow bool
	var matchedAllow *MerchantRule
	for i := range rules {
		r := rules[i]
		if r.expired(now) || r.Type != RuleAllow {
			continue
		}
		hasAllow = true
		if matchedAllow == nil && r.matches(merchantID, category) {
			matchedAllow = &rules[i]
		}
	}

	if hasAllow {
		if matchedAllow == nil {
			return deny("merchant_not_allowlisted")
		}
		if matchedAllow.MaxPerTransaction > 0 && amount > matchedAllow.MaxPerTransaction {
			return deny("merchant_cap_exceeded")
		}
	}

	return allow()
}

// RecordSpend atomically updates spent_total and every window's
// current_spent, then adds amount to every group's aggregate spend tracker
// (spec §4.4 "record_spend"). Calls are serialised on the evaluator. Group
// tracker updates are best-effort: a failed group lookup or write is not
// reported and does not undo the policy update.
func (e *Evaluator) RecordSpend(ctx context.Context, agentID string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.Policies.Get(ctx, agentID)
	if err != nil {
		return err
	}

	now := time.Now()
	p.Daily = p.Daily.resetIfExpired(now)
	p.Weekly = p.Weekly.resetIfExpired(now)
	p.Monthly = p.Monthly.resetIfExpired(now)

	p.SpentTotal += amount
	p.Daily.CurrentSpent += amount
	p.Weekly.CurrentSpent += amount
	p.Monthly.CurrentSpent += amount

	if err := e.Policies.Save(ctx, p); err != nil {
		return err
	}

	if e.Groups == nil || e.Spending == nil {
		return nil
	}

	groups, err := e.Groups.GroupsForAgent(ctx, agentID)
	if err != nil {
		return nil // record_spend is best-effort for group trackers per the Python reference
	}
	for _, g := range groups {
		_ = e.Spending.RecordGroupSpend(ctx, g.GroupID, amount)
	}
	return nil
}

// toLowerSet lowercases every entry in ss for case-insensitive membership
// checks, matching the Python reference's `.lower()` comparisons.
func toLowerSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[strings.ToLower(s)] = true
	}
	return out
}
