package policy

import (
	"context"
	"strings"
)

// evaluateGroups applies merchant and budget rules from every group the
// agent belongs to, deny-wins and tightest-limit-wins across groups,
// ported from the reference implementation's GroupPolicyEvaluator.evaluate
// (deny-wins merchant checks, then per-transaction/daily/monthly/total
// budget checks against aggregate group spend, fail-closed on lookup
// errors).
func (e *Evaluator) evaluateGroups(ctx context.Context, groups []Group, req EvaluationRequest, total int64) (Decision, error) {
	if len(groups) == 0 {
		return allow(), nil
	}

	for _, g := range groups {
		if req.MerchantID != "" {
			if d := evaluateGroupMerchantPolicy(g, req.MerchantID, req.MerchantCategory); !d.Allowed {
				return d, nil
			}
		}

		if total > g.Budget.PerTransaction {
			return denyGroup("group_per_transaction_limit", g.GroupID), nil
		}

		spending, err := e.Spending.GroupSpending(ctx, g.GroupID)
		if err != nil {
			return Decision{}, err
		}

		if spending.Daily+total > g.Budget.Daily {
			return denyGroup("group_daily_limit", g.GroupID), nil
		}
		if spending.Monthly+total > g.Budget.Monthly {
			return denyGroup("group_monthly_limit", g.GroupID), nil
		}
		if spending.Total+total > g.Budget.Total {
			return denyGroup("group_total_limit", g.GroupID), nil
		}
	}

	return allow(), nil
}

// evaluateGroupMerchantPolicy collapses the reference implementation's four
// distinct merchant/category block reasons onto the single
// "group_merchant_blocked" code, since that is the only group-merchant
// rejection string in the stable error-code surface (spec §6) — a blocked
// merchant, a blocked category, and an allowlist miss are all "this group's
// merchant policy rejects this payment" to a caller.
func evaluateGroupMerchantPolicy(g Group, merchantID, category string) Decision {
	mp := g.MerchantPolicy
	merchantLower := strings.ToLower(merchantID)
	categoryLower := strings.ToLower(category)

	if len(mp.BlockedMerchants) > 0 && toLowerSet(mp.BlockedMerchants)[merchantLower] {
		return denyGroup("group_merchant_blocked", g.GroupID)
	}
	if category != "" && len(mp.BlockedCategories) > 0 && toLowerSet(mp.BlockedCategories)[categoryLower] {
		return denyGroup("group_merchant_blocked", g.GroupID)
	}
	if mp.AllowedMerchants != nil && !toLowerSet(mp.AllowedMerchants)[merchantLower] {
		return denyGroup("group_merchant_blocked", g.GroupID)
	}
	if category != "" && mp.AllowedCategories != nil && !toLowerSet(mp.AllowedCategories)[categoryLower] {
		return denyGroup("group_merchant_blocked", g.GroupID)
	}
	return allow()
}
