package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sardis-ai/payments-core/internal/approval"
	"github.com/sardis-ai/payments-core/internal/balance"
	"github.com/sardis-ai/payments-core/internal/behavior"
	"github.com/sardis-ai/payments-core/internal/compliance"
	"github.com/sardis-ai/payments-core/internal/confidence"
	"github.com/sardis-ai/payments-core/internal/idempotency"
	"github.com/sardis-ai/payments-core/internal/ledger"
	"github.com/sardis-ai/payments-core/internal/mandate"
	"github.com/sardis-ai/payments-core/internal/policy"
	"github.com/sardis-ai/payments-core/internal/rails"
	"github.com/sardis-ai/payments-core/internal/velocity"
	"github.com/sardis-ai/payments-core/internal/walletlock"
	"github.com/sardis-ai/payments-core/internal/webhook"
)

var errNoLiquidity = errors.New("fake rail: no liquidity")

// fakeWalletResolver always resolves agentID to a fixed wallet/address.
type fakeWalletResolver struct{}

func (fakeWalletResolver) ResolveWallet(ctx context.Context, agentID, chain string) (string, string, error) {
	return "wallet-" + agentID, "0xAGENT" + agentID, nil
}

// fakeApproverResolver returns a fixed approver set regardless of level.
type fakeApproverResolver struct{}

func (fakeApproverResolver) ResolveApprovers(ctx context.Context, agentID string, level confidence.Level) ([]string, error) {
	return []string{"approver-1", "approver-2"}, nil
}

// fakeConfidenceContext lets each test dial in the exact factors that
// drive Compute toward a chosen tier.
type fakeConfidenceContext struct {
	history    []confidence.HistoryEntry
	budget     confidence.Budget
	kya        confidence.KYALevel
	violations int

	// recordedViolations/recordedSettlements let a test observe whether
	// Engine actually called back into the context, independent of the
	// fixed score-driving fields above. Nil in tests that don't care.
	recordedViolations  *int
	recordedSettlements *int
}

func (f fakeConfidenceContext) History(ctx context.Context, agentID string) ([]confidence.HistoryEntry, error) {
	return f.history, nil
}
func (f fakeConfidenceContext) Budget(ctx context.Context, agentID string) (confidence.Budget, error) {
	return f.budget, nil
}
func (f fakeConfidenceContext) KYALevel(ctx context.Context, agentID string) (confidence.KYALevel, error) {
	return f.kya, nil
}
func (f fakeConfidenceContext) ViolationCount(ctx context.Context, agentID string) (int, error) {
	return f.violations, nil
}
func (f fakeConfidenceContext) RecordViolation(ctx context.Context, agentID string) error {
	if f.recordedViolations != nil {
		*f.recordedViolations++
	}
	return nil
}
func (f fakeConfidenceContext) RecordSettlement(ctx context.Context, agentID, merchantID string, amountMinor int64, at time.Time) error {
	if f.recordedSettlements != nil {
		*f.recordedSettlements++
	}
	return nil
}

// highConfidence is tuned to clear DefaultThresholds().AutoApprove (0.95).
func highConfidence() fakeConfidenceContext {
	history := make([]confidence.HistoryEntry, 10)
	for i := range history {
		history[i] = confidence.HistoryEntry{AmountMinor: 5000, MerchantID: "merchant-1", At: time.Now()}
	}
	return fakeConfidenceContext{
		history:    history,
		budget:     confidence.Budget{LimitTotalMinor: 1_000_000, SpentTotalMinor: 0},
		kya:        confidence.KYAAttested,
		violations: 0,
	}
}

// lowConfidence is tuned to fall into the multi-sig or human-rewrite tier.
func lowConfidence() fakeConfidenceContext {
	return fakeConfidenceContext{
		history:    nil,
		budget:     confidence.Budget{LimitTotalMinor: 1000, SpentTotalMinor: 950},
		kya:        confidence.KYANone,
		violations: 5,
	}
}

// fakeBalanceReader reports a fixed on-rail balance.
type fakeBalanceReader struct {
	amountMinor int64
}

func (r fakeBalanceReader) ReadBalance(ctx context.Context, walletID, token string) (int64, error) {
	return r.amountMinor, nil
}

// fakeRail is an in-memory rails.Rail whose Submit/GetReceipt behavior a
// test configures up front.
type fakeRail struct {
	submitErr   error
	receipt     rails.Receipt
	submitCalls int
}

func (r *fakeRail) ProviderName() string { return "fake" }
func (r *fakeRail) RailName() string     { return "fakechain" }

func (r *fakeRail) Submit(ctx context.Context, req rails.TxRequest) (rails.SubmittedTx, error) {
	r.submitCalls++
	if r.submitErr != nil {
		return rails.SubmittedTx{}, r.submitErr
	}
	return rails.SubmittedTx{TxHash: "0xTXHASH", Chain: req.Chain, Rail: "fake", Status: "submitted", Submitted: time.Now()}, nil
}

func (r *fakeRail) GetReceipt(ctx context.Context, txHash string) (rails.Receipt, error) {
	return r.receipt, nil
}

func (r *fakeRail) Estimate(ctx context.Context, req rails.TxRequest) (rails.GasEstimate, error) {
	return rails.GasEstimate{FeeMinor: 100, FeeToken: req.Token, EstimatedUnits: 21000}, nil
}

// fakeRailSelector always returns the single configured rail/reader,
// regardless of chain/token.
type fakeRailSelector struct {
	rail   rails.Rail
	reader balance.Reader
}

func (s fakeRailSelector) SelectRail(chain, token string) (rails.Rail, error) { return s.rail, nil }
func (s fakeRailSelector) BalanceReader(chain, token string) (balance.Reader, error) {
	return s.reader, nil
}

// noopAuditLog discards compliance audit entries.
type noopAuditLog struct{}

func (noopAuditLog) Append(ctx context.Context, entry compliance.AuditEntry) error { return nil }

type testEnv struct {
	engine   *Engine
	rail     *fakeRail
	policies *policy.MemoryRepository
	ledger   ledger.Store
	webhooks *webhook.Dispatcher
}

func newTestEnv(t *testing.T, confCtx ConfidenceContext, railReceipt rails.Receipt, submitErr error, extra ...Option) *testEnv {
	t.Helper()

	policies := policy.NewMemoryRepository()
	if err := policies.Save(context.Background(), policy.Policy{
		AgentID:    "agent-1",
		PolicyID:   "policy-1",
		LimitPerTx: 1_000_000,
		LimitTotal: 10_000_000,
		Daily:      policy.Window{LimitAmount: 10_000_000, WindowStart: time.Now(), Duration: 24 * time.Hour},
		Weekly:     policy.Window{LimitAmount: 10_000_000, WindowStart: time.Now(), Duration: 7 * 24 * time.Hour},
		Monthly:    policy.Window{LimitAmount: 10_000_000, WindowStart: time.Now(), Duration: 30 * 24 * time.Hour},
	}); err != nil {
		t.Fatalf("seed policy: %v", err)
	}

	evaluator := &policy.Evaluator{Policies: policies}
	gate := &compliance.Gate{Audit: noopAuditLog{}}
	ledgerStore := ledger.NewMemoryStore()
	approvalStore := approval.NewMemoryStore()
	idemStore := idempotency.NewMemoryStore(1000, time.Hour)

	subs := webhook.NewMemorySubscriptionStore()
	deliveries := webhook.NewMemoryDeliveryStore()
	dispatcher := webhook.NewDispatcher(subs, deliveries, 5*time.Second)

	rail := &fakeRail{receipt: railReceipt, submitErr: submitErr}
	selector := fakeRailSelector{rail: rail, reader: fakeBalanceReader{amountMinor: 10_000_000}}

	opts := append([]Option{
		WithConfirmationPolicy(ConfirmationPolicy{Attempts: 1, Interval: time.Millisecond}),
	}, extra...)

	engine := NewEngine(
		idemStore,
		walletlock.NewLocker(),
		balance.NewCache(),
		fakeWalletResolver{},
		gate,
		evaluator,
		confCtx,
		fakeApproverResolver{},
		approvalStore,
		selector,
		ledgerStore,
		dispatcher,
		opts...,
	)

	return &testEnv{engine: engine, rail: rail, policies: policies, ledger: ledgerStore, webhooks: dispatcher}
}

func testChain(amountMinor int64) mandate.Chain {
	return mandate.Chain{
		Intent: mandate.Intent{
			Envelope: mandate.Envelope{MandateID: "mandate-1", Subject: "agent-1"},
			Scope:    "",
		},
		Payment: mandate.Payment{
			Envelope:       mandate.Envelope{MandateID: "mandate-1", Subject: "agent-1"},
			AmountMinor:    amountMinor,
			Token:          "USDC",
			Chain:          "base",
			Destination:    "0xMERCHANT",
			MerchantDomain: "merchant-1",
		},
	}
}

func TestDispatchPaymentAutoApproveConfirmed(t *testing.T) {
	env := newTestEnv(t, highConfidence(), rails.Receipt{TxHash: "0xTXHASH", Chain: "base", Status: "confirmed", BlockNumber: 42}, nil)

	chain := testChain(5000)
	result := mandate.Result{Accepted: true, Chain: &chain}

	receipt, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if !receipt.Accepted || receipt.Status != "confirmed" {
		t.Fatalf("expected confirmed settlement, got %+v", receipt)
	}
	if receipt.TxHash != "0xTXHASH" {
		t.Fatalf("expected tx hash propagated, got %q", receipt.TxHash)
	}
	if receipt.LedgerEntryID == "" {
		t.Fatal("expected a ledger entry id")
	}

	p, err := env.policies.Get(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Get policy: %v", err)
	}
	if p.SpentTotal != 5000 {
		t.Fatalf("expected record_spend to post 5000, got %d", p.SpentTotal)
	}
}

func TestDispatchPaymentRejectsUnverifiedMandate(t *testing.T) {
	env := newTestEnv(t, highConfidence(), rails.Receipt{Status: "confirmed"}, nil)

	receipt, err := env.engine.DispatchPayment(context.Background(), mandate.Result{Accepted: false, Reason: "signature_invalid"})
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if receipt.Accepted {
		t.Fatal("expected rejection for unverified mandate")
	}
	if receipt.Reason != "signature_invalid" {
		t.Fatalf("expected reason propagated, got %q", receipt.Reason)
	}
}

func TestDispatchPaymentInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, highConfidence(), rails.Receipt{Status: "confirmed"}, nil)
	env.engine.Balances = balance.NewCache()
	env.engine.Rails = fakeRailSelector{rail: env.rail, reader: fakeBalanceReader{amountMinor: 10}}

	chain := testChain(5000)
	result := mandate.Result{Accepted: true, Chain: &chain}

	receipt, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if receipt.Accepted || receipt.Reason != "insufficient_balance" {
		t.Fatalf("expected insufficient_balance rejection, got %+v", receipt)
	}
	if env.rail.submitCalls != 0 {
		t.Fatal("rail should never be reached on an insufficient balance")
	}
}

func TestDispatchPaymentPolicyBlockedOverLimit(t *testing.T) {
	env := newTestEnv(t, highConfidence(), rails.Receipt{Status: "confirmed"}, nil)

	result := mandate.Result{Accepted: true, Chain: &mandate.Chain{}}
	*result.Chain = testChain(5_000_000) // exceeds policy.LimitPerTx seeded at 1,000,000

	receipt, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if receipt.Accepted {
		t.Fatal("expected policy-blocked rejection")
	}
	if receipt.Reason != "policy_blocked:per_transaction_limit" {
		t.Fatalf("unexpected reason: %q", receipt.Reason)
	}
	if env.rail.submitCalls != 0 {
		t.Fatal("rail should never be reached once policy blocks")
	}
}

func TestDispatchPaymentLowConfidenceCreatesApprovalRequest(t *testing.T) {
	env := newTestEnv(t, lowConfidence(), rails.Receipt{Status: "confirmed"}, nil)

	chain := testChain(5000)
	result := mandate.Result{Accepted: true, Chain: &chain}

	receipt, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if receipt.Accepted {
		t.Fatal("expected settlement to suspend pending approval")
	}
	if receipt.Reason != "pending_approval" {
		t.Fatalf("expected pending_approval, got %q", receipt.Reason)
	}
	if receipt.ApprovalID == "" {
		t.Fatal("expected an approval id")
	}
	if env.rail.submitCalls != 0 {
		t.Fatal("rail should never be reached while an approval is pending")
	}
}

func TestDispatchPaymentRailSubmitFailureDoesNotRecordSpend(t *testing.T) {
	env := newTestEnv(t, highConfidence(), rails.Receipt{}, errNoLiquidity)

	chain := testChain(5000)
	result := mandate.Result{Accepted: true, Chain: &chain}

	receipt, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if receipt.Accepted {
		t.Fatal("expected rail submission failure to be reported as not accepted")
	}

	p, err := env.policies.Get(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Get policy: %v", err)
	}
	if p.SpentTotal != 0 {
		t.Fatalf("record_spend must not run on a failed submit, got spent=%d", p.SpentTotal)
	}
}

func TestDispatchPaymentPendingFinalityReturnsAcceptedPending(t *testing.T) {
	env := newTestEnv(t, highConfidence(), rails.Receipt{TxHash: "0xTXHASH", Status: "pending"}, nil)

	chain := testChain(5000)
	result := mandate.Result{Accepted: true, Chain: &chain}

	receipt, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if !receipt.Accepted || receipt.Status != "pending" {
		t.Fatalf("expected accepted-pending receipt for unresolved finality, got %+v", receipt)
	}

	p, err := env.policies.Get(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Get policy: %v", err)
	}
	if p.SpentTotal != 0 {
		t.Fatalf("record_spend must wait for confirmation, got spent=%d", p.SpentTotal)
	}
}

func TestDispatchPaymentIsIdempotentOnReplay(t *testing.T) {
	env := newTestEnv(t, highConfidence(), rails.Receipt{TxHash: "0xTXHASH", Status: "confirmed"}, nil)

	chain := testChain(5000)
	result := mandate.Result{Accepted: true, Chain: &chain}

	first, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("first DispatchPayment: %v", err)
	}

	second, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("second DispatchPayment: %v", err)
	}

	if second.LedgerEntryID != first.LedgerEntryID {
		t.Fatalf("expected replay to return the original receipt, got a second ledger entry %q vs %q", second.LedgerEntryID, first.LedgerEntryID)
	}
	if env.rail.submitCalls != 1 {
		t.Fatalf("expected exactly one rail submission across both calls, got %d", env.rail.submitCalls)
	}

	p, err := env.policies.Get(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Get policy: %v", err)
	}
	if p.SpentTotal != 5000 {
		t.Fatalf("record_spend must post exactly once across the replay, got %d", p.SpentTotal)
	}
}

func TestDispatchPaymentVelocityBlocked(t *testing.T) {
	limiter := &velocity.Limiter{
		Repo:   velocity.NewMemoryRepository(),
		Limits: func(agentID string) velocity.Limits { return velocity.Limits{Minute: 1} },
	}
	if err := limiter.Record(context.Background(), "agent-1", time.Now()); err != nil {
		t.Fatalf("seed velocity record: %v", err)
	}

	env := newTestEnv(t, highConfidence(), rails.Receipt{TxHash: "0xTXHASH", Status: "confirmed"}, nil,
		WithVelocity(limiter))

	chain := testChain(5000)
	receipt, err := env.engine.DispatchPayment(context.Background(), mandate.Result{Accepted: true, Chain: &chain})
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if receipt.Accepted {
		t.Fatal("expected the per-minute velocity cap to block this transaction")
	}
	if receipt.Reason != "velocity_blocked:velocity_limit_minute" {
		t.Fatalf("expected velocity_limit_minute reason, got %q", receipt.Reason)
	}
	if env.rail.submitCalls != 0 {
		t.Fatalf("expected no rail submission once velocity blocked the payment, got %d", env.rail.submitCalls)
	}
}

func TestDispatchPaymentBehaviorAlertRecordsViolation(t *testing.T) {
	monitor := behavior.NewMonitor(behavior.SensitivityNormal)

	baseline := time.Now()
	for i, amount := range []int64{900, 1100, 1000, 900, 1100, 1000, 900, 1100, 1000, 950} {
		if err := monitor.Record(context.Background(), "agent-1", behavior.Transaction{
			AmountMinor: amount,
			Merchant:    "merchant-baseline",
			Token:       "USDC",
			Chain:       "base",
			At:          baseline.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("seed behavior baseline: %v", err)
		}
	}

	var violationCalls int
	confCtx := highConfidence()
	confCtx.recordedViolations = &violationCalls
	env := newTestEnv(t, confCtx, rails.Receipt{TxHash: "0xTXHASH", Status: "confirmed"}, nil,
		WithBehavior(monitor))

	chain := testChain(5000)
	result := mandate.Result{Accepted: true, Chain: &chain}

	receipt, err := env.engine.DispatchPayment(context.Background(), result)
	if err != nil {
		t.Fatalf("DispatchPayment: %v", err)
	}
	if !receipt.Accepted {
		t.Fatalf("behavior alerts never block settlement by themselves, got %+v", receipt)
	}
	if violationCalls == 0 {
		t.Fatal("expected the high-deviation amount anomaly to record a confidence violation")
	}
}
