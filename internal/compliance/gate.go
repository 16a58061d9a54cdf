package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sardis-ai/payments-core/internal/circuitbreaker"
)

// Gate implements Preflight's three-step fail-closed order (spec §4.5):
// base rules, then sanctions screening, then KYC verification. Any error —
// including a tripped circuit breaker — is treated as a block, never as a
// pass-through, matching the spec's "fail-closed on any exception".
type Gate struct {
	BaseRules BaseRuleProvider
	Sanctions SanctionsProvider
	KYC       KYCProvider
	Audit     AuditLog
	Breakers  *circuitbreaker.Manager
}

const (
	ruleIDSanctionsScreening = "sanctions_screening"
	ruleIDKYCVerification    = "kyc_verification"

	providerSanctions = "elliptic"
	providerKYC       = "persona"
)

// Preflight runs the three ordered compliance checks against in and
// appends an audit entry for every outcome, keyed by in.MandateID.
func (g *Gate) Preflight(ctx context.Context, in PreflightInput) (Decision, error) {
	auditID := uuid.NewString()

	if g.BaseRules != nil {
		allowed, reason, err := g.BaseRules.Check(ctx, in)
		if err != nil {
			return g.record(ctx, auditID, in.MandateID, Decision{Allowed: false, Reason: "compliance_blocked", AuditID: auditID})
		}
		if !allowed {
			return g.record(ctx, auditID, in.MandateID, Decision{Allowed: false, Reason: reason, AuditID: auditID})
		}
	}

	if g.Sanctions != nil {
		hit, err := g.screenSanctions(ctx, in.DestinationAddress)
		if err != nil || hit {
			return g.record(ctx, auditID, in.MandateID, Decision{
				Allowed: false, Reason: "sanctions_screening", RuleID: ruleIDSanctionsScreening,
				Provider: providerSanctions, AuditID: auditID,
			})
		}
	}

	if g.KYC != nil {
		verified, err := g.verifyKYC(ctx, in.AgentSubject)
		if err != nil || !verified {
			return g.record(ctx, auditID, in.MandateID, Decision{
				Allowed: false, Reason: "kyc_verification", RuleID: ruleIDKYCVerification,
				Provider: providerKYC, AuditID: auditID,
			})
		}
	}

	return g.record(ctx, auditID, in.MandateID, Decision{Allowed: true, AuditID: auditID})
}

func (g *Gate) screenSanctions(ctx context.Context, address string) (bool, error) {
	if g.Breakers == nil {
		return g.Sanctions.ScreenAddress(ctx, address)
	}
	result, err := g.Breakers.Execute(circuitbreaker.ServiceSanctions, func() (interface{}, error) {
		return g.Sanctions.ScreenAddress(ctx, address)
	})
	if err != nil {
		return false, fmt.Errorf("compliance: sanctions screen failed: %w", err)
	}
	return result.(bool), nil
}

func (g *Gate) verifyKYC(ctx context.Context, subject string) (bool, error) {
	if g.Breakers == nil {
		return g.KYC.IsVerified(ctx, subject)
	}
	result, err := g.Breakers.Execute(circuitbreaker.ServiceKYC, func() (interface{}, error) {
		return g.KYC.IsVerified(ctx, subject)
	})
	if err != nil {
		return false, fmt.Errorf("compliance: KYC verify failed: %w", err)
	}
	return result.(bool), nil
}

func (g *Gate) record(ctx context.Context, auditID, mandateID string, d Decision) (Decision, error) {
	if g.Audit != nil {
		_ = g.Audit.Append(ctx, AuditEntry{
			AuditID:    auditID,
			MandateID:  mandateID,
			Allowed:    d.Allowed,
			Reason:     d.Reason,
			RuleID:     d.RuleID,
			Provider:   d.Provider,
			RecordedAt: time.Now(),
		})
	}
	return d, nil
}
