// Package compliance implements the fail-closed preflight gate (spec
// §4.5): base rule provider, sanctions screening, and KYC verification, in
// that order, with every outcome appended to an audit log.
package compliance

import (
	"context"
	"time"
)

// PreflightInput is what a settlement call submits for compliance review.
type PreflightInput struct {
	MandateID          string
	AgentSubject       string
	DestinationAddress string
	Token              string
	Chain              string
	TenantID           string
}

// Decision is the outcome of Preflight.
type Decision struct {
	Allowed  bool
	Reason   string
	RuleID   string
	Provider string
	AuditID  string
}

// AuditEntry is one row appended for every Preflight outcome.
type AuditEntry struct {
	AuditID    string
	MandateID  string
	Allowed    bool
	Reason     string
	RuleID     string
	Provider   string
	RecordedAt time.Time
}

// AuditLog persists compliance decisions keyed by mandate ID.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// BaseRuleProvider decides token/chain permissibility and any per-tenant
// overrides, independent of sanctions/KYC screening.
type BaseRuleProvider interface {
	// Check returns allowed=false with a reason if the base rules reject
	// the payment outright (e.g. an unsupported token on a tenant's
	// allow-list).
	Check(ctx context.Context, in PreflightInput) (allowed bool, reason string, err error)
}

// SanctionsProvider screens a destination address against sanctions lists.
// Implementations are external (per spec's Non-goals); "elliptic" is the
// documented provider name carried in Decision.Provider.
type SanctionsProvider interface {
	ScreenAddress(ctx context.Context, address string) (hit bool, err error)
}

// KYCProvider verifies an agent subject's KYC status. "persona" is the
// documented provider name.
type KYCProvider interface {
	IsVerified(ctx context.Context, subject string) (verified bool, err error)
}
