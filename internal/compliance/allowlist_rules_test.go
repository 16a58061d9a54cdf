package compliance

import (
	"context"
	"testing"
)

func TestAllowlistRules_UnrestrictedChainAllowsAnyToken(t *testing.T) {
	r := NewAllowlistRules(map[string][]string{})
	allowed, reason, err := r.Check(context.Background(), PreflightInput{Chain: "base", Token: "USDC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || reason != "" {
		t.Errorf("expected allowed with no reason, got allowed=%v reason=%q", allowed, reason)
	}
}

func TestAllowlistRules_RejectsTokenNotOnChainAllowlist(t *testing.T) {
	r := NewAllowlistRules(map[string][]string{"base": {"USDC"}})
	allowed, reason, err := r.Check(context.Background(), PreflightInput{Chain: "base", Token: "DAI"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed || reason != "token_not_allowed" {
		t.Errorf("expected denial with token_not_allowed, got allowed=%v reason=%q", allowed, reason)
	}
}

func TestAllowlistRules_AllowsTokenOnChainAllowlist(t *testing.T) {
	r := NewAllowlistRules(map[string][]string{"base": {"USDC"}})
	allowed, _, err := r.Check(context.Background(), PreflightInput{Chain: "base", Token: "USDC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected USDC on base to be allowed")
	}
}

func TestAllowlistRules_DeniedTenantOverridesAllowlist(t *testing.T) {
	r := NewAllowlistRules(map[string][]string{"base": {"USDC"}})
	r.DeniedTenants["tenant-under-review"] = true

	allowed, reason, err := r.Check(context.Background(), PreflightInput{
		Chain:    "base",
		Token:    "USDC",
		TenantID: "tenant-under-review",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed || reason != "tenant_denied" {
		t.Errorf("expected tenant_denied, got allowed=%v reason=%q", allowed, reason)
	}
}
