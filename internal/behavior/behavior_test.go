package behavior

import (
	"context"
	"testing"
	"time"
)

func seedBaseline(t *testing.T, m *Monitor, agentID string, n int, amount int64, merchant, token, chain string, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := m.Record(context.Background(), agentID, Transaction{
			AmountMinor: amount,
			Merchant:    merchant,
			Token:       token,
			Chain:       chain,
			At:          at,
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
}

func TestCheckReturnsNoAlertsBeforeBaseline(t *testing.T) {
	m := NewMonitor(SensitivityNormal)
	seedBaseline(t, m, "agent-1", minTransactionsForBaseline-1, 1000, "merchant-a", "USDC", "solana", time.Now())

	alerts, err := m.Check(context.Background(), "agent-1", Transaction{AmountMinor: 1000000, Merchant: "merchant-a", Token: "USDC", Chain: "solana", At: time.Now()})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("len(alerts) = %d, want 0 before baseline is established", len(alerts))
	}
}

func TestCheckFlagsAmountAnomaly(t *testing.T) {
	m := NewMonitor(SensitivityNormal)
	now := time.Now()
	for i := 0; i < 30; i++ {
		amount := int64(1000 + (i % 3))
		if err := m.Record(context.Background(), "agent-1", Transaction{AmountMinor: amount, Merchant: "merchant-a", Token: "USDC", Chain: "solana", At: now}); err != nil {
			t.Fatal(err)
		}
	}

	alerts, err := m.Check(context.Background(), "agent-1", Transaction{AmountMinor: 1_000_000, Merchant: "merchant-a", Token: "USDC", Chain: "solana", At: now})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	var found bool
	for _, a := range alerts {
		if a.AnomalyType == "amount_anomaly" {
			found = true
			if a.Severity != SeverityCritical {
				t.Errorf("Severity = %v, want critical for an extreme outlier", a.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected an amount_anomaly alert, got %+v", alerts)
	}
}

func TestCheckFlagsNewMerchantAfterThreshold(t *testing.T) {
	m := NewMonitor(SensitivityNormal)
	now := time.Now()
	seedBaseline(t, m, "agent-1", newMerchantAfter+1, 1000, "merchant-a", "USDC", "solana", now)

	alerts, err := m.Check(context.Background(), "agent-1", Transaction{AmountMinor: 1000, Merchant: "merchant-new", Token: "USDC", Chain: "solana", At: now})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	var found bool
	for _, a := range alerts {
		if a.AnomalyType == "new_merchant" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a new_merchant alert, got %+v", alerts)
	}
}

func TestCheckDoesNotFlagNewMerchantBeforeThreshold(t *testing.T) {
	m := NewMonitor(SensitivityNormal)
	now := time.Now()
	seedBaseline(t, m, "agent-1", minTransactionsForBaseline+1, 1000, "merchant-a", "USDC", "solana", now)

	alerts, err := m.Check(context.Background(), "agent-1", Transaction{AmountMinor: 1000, Merchant: "merchant-new", Token: "USDC", Chain: "solana", At: now})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	for _, a := range alerts {
		if a.AnomalyType == "new_merchant" {
			t.Fatalf("unexpected new_merchant alert before the %d-transaction threshold", newMerchantAfter)
		}
	}
}

func TestCheckFlagsNewTokenChainAfterThreshold(t *testing.T) {
	m := NewMonitor(SensitivityNormal)
	now := time.Now()
	seedBaseline(t, m, "agent-1", newTokenChainAfter+1, 1000, "merchant-a", "USDC", "solana", now)

	alerts, err := m.Check(context.Background(), "agent-1", Transaction{AmountMinor: 1000, Merchant: "merchant-a", Token: "DAI", Chain: "base", At: now})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	var found bool
	for _, a := range alerts {
		if a.AnomalyType == "new_token_or_chain" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a new_token_or_chain alert, got %+v", alerts)
	}
}

func TestSensitivityThresholdsOrdering(t *testing.T) {
	if SensitivityParanoid.threshold() >= SensitivityStrict.threshold() {
		t.Fatal("paranoid should have a lower sigma threshold than strict")
	}
	if SensitivityStrict.threshold() >= SensitivityNormal.threshold() {
		t.Fatal("strict should have a lower sigma threshold than normal")
	}
	if SensitivityNormal.threshold() >= SensitivityRelaxed.threshold() {
		t.Fatal("normal should have a lower sigma threshold than relaxed")
	}
}

func TestAmountStatisticsSingleSampleHasZeroStdDev(t *testing.T) {
	mean, stdDev := amountStatistics([]int64{500})
	if mean != 500 {
		t.Fatalf("mean = %v, want 500", mean)
	}
	if stdDev != 0 {
		t.Fatalf("stdDev = %v, want 0 for a single sample", stdDev)
	}
}

func TestRecordTrimsToRecentHistoryWindow(t *testing.T) {
	m := NewMonitor(SensitivityNormal)
	now := time.Now()
	seedBaseline(t, m, "agent-1", maxRecentHistory+10, 1000, "merchant-a", "USDC", "solana", now)

	p := m.patternFor("agent-1")
	if len(p.recentAmounts) != maxRecentHistory {
		t.Fatalf("len(recentAmounts) = %d, want %d", len(p.recentAmounts), maxRecentHistory)
	}
}
