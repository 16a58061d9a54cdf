// Package policy implements the per-agent and per-group spending policy
// evaluator (spec §4.4).
package policy

import "time"

// RuleType is whether a MerchantRule allows or denies a match.
type RuleType string

const (
	RuleAllow RuleType = "allow"
	RuleDeny  RuleType = "deny"
)

// MerchantRule is one entry in a policy's merchant_rules list. Rules are
// evaluated in recorded order with deny rules checked first regardless of
// position.
type MerchantRule struct {
	Type             RuleType
	MerchantID       string
	Category         string
	MaxPerTransaction int64 // 0 means unset/no cap
	DailyLimit       int64
	ExpiresAt        *time.Time
}

func (r MerchantRule) matches(merchantID, category string) bool {
	if r.MerchantID != "" && r.MerchantID == merchantID {
		return true
	}
	if r.Category != "" && r.Category == category {
		return true
	}
	return false
}

func (r MerchantRule) expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Window is a rolling spend counter that auto-resets once its duration has
// elapsed since WindowStart.
type Window struct {
	LimitAmount  int64
	CurrentSpent int64
	WindowStart  time.Time
	Duration     time.Duration
}

// resetIfExpired returns a Window advanced to a fresh period if the current
// one has elapsed, otherwise w unchanged.
func (w Window) resetIfExpired(now time.Time) Window {
	if now.Sub(w.WindowStart) >= w.Duration {
		return Window{LimitAmount: w.LimitAmount, CurrentSpent: 0, WindowStart: now, Duration: w.Duration}
	}
	return w
}

// AllScopes is the sentinel allowed_scopes entry meaning "no scope
// restriction".
const AllScopes = "*"

// Policy is a single agent's spending policy.
type Policy struct {
	PolicyID      string
	AgentID       string
	TrustLevel    string
	LimitPerTx    int64
	LimitTotal    int64
	SpentTotal    int64
	Daily         Window
	Weekly        Window
	Monthly       Window
	AllowedScopes []string
	MerchantRules []MerchantRule
}

func (p Policy) scopeAllowed(scope string) bool {
	if len(p.AllowedScopes) == 0 {
		return true
	}
	for _, s := range p.AllowedScopes {
		if s == AllScopes {
			return true
		}
		if s == scope {
			return true
		}
	}
	return false
}

// Budget is a group's aggregate spending ceiling.
type Budget struct {
	PerTransaction int64
	Daily          int64
	Monthly        int64
	Total          int64
}

// MerchantPolicy is a group's allow/deny lists for merchants and categories.
type MerchantPolicy struct {
	BlockedMerchants  []string
	BlockedCategories []string
	AllowedMerchants  []string // nil means no allow-list restriction
	AllowedCategories []string
}

// Group aggregates spend and merchant policy across its member agents.
type Group struct {
	GroupID        string
	Name           string
	AgentIDs       []string
	Budget         Budget
	MerchantPolicy MerchantPolicy
}

// GroupSpending is a group's aggregate spend across its configured windows.
type GroupSpending struct {
	Daily   int64
	Monthly int64
	Total   int64
}

// EvaluationRequest is the input to Evaluator.Evaluate.
type EvaluationRequest struct {
	AgentID          string
	Amount           int64
	Fee              int64
	MerchantID       string
	MerchantCategory string
	Scope            string
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Reason  string
	GroupID string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

func denyGroup(reason, groupID string) Decision {
	return Decision{Allowed: false, Reason: reason, GroupID: groupID}
}
