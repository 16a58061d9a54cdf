package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sardis-ai/payments-core/internal/approval"
	"github.com/sardis-ai/payments-core/internal/balance"
	"github.com/sardis-ai/payments-core/internal/behavior"
	"github.com/sardis-ai/payments-core/internal/compliance"
	"github.com/sardis-ai/payments-core/internal/confidence"
	"github.com/sardis-ai/payments-core/internal/idempotency"
	"github.com/sardis-ai/payments-core/internal/ledger"
	"github.com/sardis-ai/payments-core/internal/mandate"
	"github.com/sardis-ai/payments-core/internal/metrics"
	"github.com/sardis-ai/payments-core/internal/observability"
	"github.com/sardis-ai/payments-core/internal/policy"
	"github.com/sardis-ai/payments-core/internal/rails"
	"github.com/sardis-ai/payments-core/internal/tenant"
	"github.com/sardis-ai/payments-core/internal/velocity"
	"github.com/sardis-ai/payments-core/internal/walletlock"
	"github.com/sardis-ai/payments-core/internal/webhook"
)

// RailSelector picks the rail adapter that should dispatch a payment on
// chain for token, and the balance.Reader that can read a wallet's
// current on-rail balance for that same (chain, token) pair.
type RailSelector interface {
	SelectRail(chain, token string) (rails.Rail, error)
	BalanceReader(chain, token string) (balance.Reader, error)
}

// Engine implements spec.md §4.10's DispatchPayment orchestration.
type Engine struct {
	Idempotency idempotency.Store
	Locks       *walletlock.Locker
	Balances    *balance.Cache
	Wallets     WalletResolver
	Compliance  *compliance.Gate
	Policy      *policy.Evaluator
	Confidence  ConfidenceContext
	Thresholds  confidence.Thresholds
	Approvers   ApproverResolver
	Approvals   approval.Store
	Rails       RailSelector
	Ledger      ledger.Store
	Webhooks    *webhook.Dispatcher
	Metrics     *metrics.Metrics
	Hooks       *observability.Registry
	Velocity    *velocity.Limiter
	Behavior    *behavior.Monitor
	Logger      zerolog.Logger

	LockTTL        time.Duration
	IdempotencyTTL time.Duration
	Confirmation   ConfirmationPolicy
}

// Option customizes an Engine built via NewEngine.
type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.Logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.Metrics = m }
}

// WithHooks attaches an observability.Registry so external vendors
// (DataDog, OpenTelemetry, a custom audit sink) can observe the payment
// lifecycle alongside the built-in webhook/metrics paths.
func WithHooks(r *observability.Registry) Option {
	return func(e *Engine) { e.Hooks = r }
}

func WithConfirmationPolicy(p ConfirmationPolicy) Option {
	return func(e *Engine) { e.Confirmation = p }
}

// WithVelocity attaches the per-agent sliding-window rate cap (spec §4.6).
// A nil Limiter (the default) skips velocity checking entirely.
func WithVelocity(l *velocity.Limiter) Option {
	return func(e *Engine) { e.Velocity = l }
}

// WithBehavior attaches the behavioral-drift monitor (spec §4.6). Alerts
// it raises never block a transaction by themselves — they surface as
// EventRiskAlert webhooks/hooks and add to the agent's violation count.
func WithBehavior(m *behavior.Monitor) Option {
	return func(e *Engine) { e.Behavior = m }
}

// NewEngine wires every collaborator the settlement pipeline needs.
func NewEngine(
	idemStore idempotency.Store,
	locks *walletlock.Locker,
	balances *balance.Cache,
	wallets WalletResolver,
	complianceGate *compliance.Gate,
	policyEvaluator *policy.Evaluator,
	confidenceCtx ConfidenceContext,
	approvers ApproverResolver,
	approvals approval.Store,
	railSelector RailSelector,
	ledgerStore ledger.Store,
	webhooks *webhook.Dispatcher,
	opts ...Option,
) *Engine {
	e := &Engine{
		Idempotency:    idemStore,
		Locks:          locks,
		Balances:       balances,
		Wallets:        wallets,
		Compliance:     complianceGate,
		Policy:         policyEvaluator,
		Confidence:     confidenceCtx,
		Thresholds:     confidence.DefaultThresholds(),
		Approvers:      approvers,
		Approvals:      approvals,
		Rails:          railSelector,
		Ledger:         ledgerStore,
		Webhooks:       webhooks,
		Logger:         zerolog.Nop(),
		LockTTL:        60 * time.Second,
		IdempotencyTTL: 24 * time.Hour,
		Confirmation:   DefaultConfirmationPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DispatchPayment runs spec.md §4.10's thirteen-step orchestration
// against a verified mandate chain.
func (e *Engine) DispatchPayment(ctx context.Context, result mandate.Result) (Receipt, error) {
	if !result.Accepted || result.Chain == nil {
		reason := result.Reason
		if reason == "" {
			reason = "mandate_not_verified"
		}
		return Receipt{Accepted: false, Reason: reason}, nil
	}

	chain := *result.Chain
	payment := chain.Payment

	// Step 1: idem_key = payment.mandate_id.
	idemKey := payment.MandateID
	start := time.Now()

	receipt, err := idempotency.RunIdempotent(ctx, e.Idempotency, "settle", idemKey, settlePayload(chain), e.IdempotencyTTL, func(ctx context.Context) (Receipt, error) {
		return e.settleOnce(ctx, chain)
	})

	if e.Metrics != nil {
		e.Metrics.ObserveSettlement(payment.Chain, time.Since(start))
	}
	return receipt, err
}

// settlePayload is the canonicalization input for step 2's idempotency
// request hash — the fields that define "the same settlement request",
// not the whole mandate chain.
func settlePayload(chain mandate.Chain) map[string]any {
	p := chain.Payment
	return map[string]any{
		"mandate_id":   p.MandateID,
		"subject":      p.Subject,
		"amount_minor": p.AmountMinor,
		"token":        p.Token,
		"chain":        p.Chain,
		"destination":  p.Destination,
	}
}

// settleOnce runs steps 3–13 exactly once for a given idempotency key.
func (e *Engine) settleOnce(ctx context.Context, chain mandate.Chain) (Receipt, error) {
	payment := chain.Payment
	txID := "tx_" + uuid.NewString()

	e.emit(ctx, webhook.EventPaymentInitiated, txID, payment, "")

	walletID, fromAddress, err := e.Wallets.ResolveWallet(ctx, payment.Subject, payment.Chain)
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: resolve wallet: %w", err)
	}

	var receipt Receipt
	lockErr := walletlock.WithLock(ctx, e.Locks, walletID, txID, e.LockTTL, func(ctx context.Context) error {
		r, innerErr := e.settleLocked(ctx, txID, chain, walletID, fromAddress)
		receipt = r
		return innerErr
	})

	if errors.Is(lockErr, walletlock.ErrTimeout) {
		return Receipt{Accepted: false, Reason: "wallet_busy"}, nil
	}
	if lockErr != nil {
		return Receipt{}, lockErr
	}
	return receipt, nil
}

// settleLocked runs steps 4–13 inside the per-wallet critical section.
func (e *Engine) settleLocked(ctx context.Context, txID string, chain mandate.Chain, walletID, fromAddress string) (Receipt, error) {
	payment := chain.Payment

	// Step 4: re-check balance; Balances.Get itself reads through to
	// the rail on a miss or stale generation.
	reader, err := e.Rails.BalanceReader(payment.Chain, payment.Token)
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: resolve balance reader: %w", err)
	}
	currentBalance, err := e.Balances.Get(ctx, walletID, payment.Token, reader)
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: read balance: %w", err)
	}
	if currentBalance < payment.AmountMinor {
		e.emitFailed(ctx, txID, payment, "insufficient_balance")
		return Receipt{Accepted: false, Reason: "insufficient_balance"}, nil
	}

	// Step 5: compliance preflight.
	decision, err := e.Compliance.Preflight(ctx, compliance.PreflightInput{
		MandateID:          payment.MandateID,
		AgentSubject:       payment.Subject,
		DestinationAddress: payment.Destination,
		Token:              payment.Token,
		Chain:              payment.Chain,
		TenantID:           tenant.FromContext(ctx),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: compliance preflight: %w", err)
	}
	if !decision.Allowed {
		e.emit(ctx, webhook.EventPolicyBlocked, txID, payment, "compliance_blocked:"+decision.Reason)
		return Receipt{Accepted: false, Reason: "compliance_blocked:" + decision.Reason}, nil
	}

	// Step 6: policy evaluation.
	polDecision, err := e.Policy.Evaluate(ctx, policy.EvaluationRequest{
		AgentID:    payment.Subject,
		Amount:     payment.AmountMinor,
		Fee:        0,
		MerchantID: payment.MerchantDomain,
		Scope:      chain.Intent.Scope,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: policy evaluate: %w", err)
	}
	if !polDecision.Allowed {
		e.emit(ctx, webhook.EventPolicyBlocked, txID, payment, "policy_blocked:"+polDecision.Reason)
		return Receipt{Accepted: false, Reason: "policy_blocked:" + polDecision.Reason}, nil
	}

	// Step 6a: velocity caps (spec §4.6) — sliding-window transaction
	// counts per agent, independent of the policy engine's spend budget.
	if e.Velocity != nil {
		decision, err := e.Velocity.Check(ctx, payment.Subject, time.Now())
		if err != nil {
			return Receipt{}, fmt.Errorf("settlement: velocity check: %w", err)
		}
		if !decision.Allowed {
			e.emit(ctx, webhook.EventPolicyBlocked, txID, payment, "velocity_blocked:"+decision.Reason)
			return Receipt{Accepted: false, Reason: "velocity_blocked:" + decision.Reason}, nil
		}
	}

	// Step 6b: behavioral-drift monitor (spec §4.6). Alerts never block
	// the transaction by themselves; they raise a risk event and count
	// toward the agent's violation total the next confidence score reads.
	if e.Behavior != nil {
		alerts, err := e.Behavior.Check(ctx, payment.Subject, behavior.Transaction{
			AmountMinor: payment.AmountMinor,
			Merchant:    payment.MerchantDomain,
			Token:       payment.Token,
			Chain:       payment.Chain,
			At:          time.Now(),
		})
		if err != nil {
			return Receipt{}, fmt.Errorf("settlement: behavior check: %w", err)
		}
		for _, alert := range alerts {
			e.emit(ctx, webhook.EventRiskAlert, txID, payment, fmt.Sprintf("behavior:%s:%s", alert.AnomalyType, alert.Severity))
			if alert.Severity == behavior.SeverityHigh || alert.Severity == behavior.SeverityCritical {
				if err := e.Confidence.RecordViolation(ctx, payment.Subject); err != nil {
					e.Logger.Error().Err(err).Str("tx_id", txID).Msg("settlement: record behavioral violation")
				}
			}
		}
	}

	// Step 7: confidence routing.
	score, routing, err := e.route(ctx, payment)
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: confidence routing: %w", err)
	}
	if routing.ApprovalType != confidence.LevelAutoApprove {
		approvers, err := e.Approvers.ResolveApprovers(ctx, payment.Subject, routing.ApprovalType)
		if err != nil {
			return Receipt{}, fmt.Errorf("settlement: resolve approvers: %w", err)
		}
		req, err := e.Approvals.Request(ctx, txID, payment.Subject, payment.AmountMinor, string(routing.ApprovalType),
			approvers, routing.Quorum, time.Duration(routing.TimeoutSeconds)*time.Second, time.Now())
		if err != nil {
			return Receipt{}, fmt.Errorf("settlement: create approval request: %w", err)
		}
		e.emit(ctx, webhook.EventRiskAlert, txID, payment, fmt.Sprintf("pending_approval:score=%.2f", score.Value))
		return Receipt{Accepted: false, Reason: "pending_approval", ApprovalID: req.RequestID}, nil
	}

	// Step 8: select rail, build TransactionRequest; step 9 (MPC sign)
	// and step 10 (submit with per-rail retry, fresh tracked nonce) are
	// composed inside the adapter's own Submit — every rails.Rail
	// implementation already signs via its injected Signer as part of
	// building and broadcasting the transaction.
	rail, err := e.Rails.SelectRail(payment.Chain, payment.Token)
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: select rail: %w", err)
	}

	txReq := rails.TxRequest{
		WalletID:       walletID,
		Chain:          payment.Chain,
		FromAddress:    fromAddress,
		ToAddress:      payment.Destination,
		Token:          payment.Token,
		AmountMinor:    payment.AmountMinor,
		IdempotencyKey: txID,
	}

	submitted, err := rail.Submit(ctx, txReq)
	if err != nil {
		e.emitFailed(ctx, txID, payment, "rail_submit_failed")
		return Receipt{Accepted: false, Reason: "rail_submit_failed: " + err.Error()}, nil
	}

	// Step 11: persist a pending ledger entry, then await finality.
	entry, err := e.Ledger.Append(ctx, ledger.Entry{
		EntryID:     "entry_" + uuid.NewString(),
		TxID:        submitted.TxHash,
		WalletID:    walletID,
		AgentID:     payment.Subject,
		AmountMinor: payment.AmountMinor,
		Token:       payment.Token,
		Chain:       payment.Chain,
		Rail:        rail.ProviderName(),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: append ledger entry: %w", err)
	}
	e.Balances.InvalidateWallet(walletID)

	finalReceipt, confirmed, failed := e.awaitFinality(ctx, rail, submitted.TxHash)

	switch {
	case confirmed:
		// Step 12: record_spend only on confirmed, never on failed.
		if err := e.Policy.RecordSpend(ctx, payment.Subject, payment.AmountMinor); err != nil {
			e.Logger.Error().Err(err).Str("tx_id", txID).Msg("settlement: record spend failed after confirmed settlement")
		}
		if err := e.Confidence.RecordSettlement(ctx, payment.Subject, payment.MerchantDomain, payment.AmountMinor, time.Now()); err != nil {
			e.Logger.Error().Err(err).Str("tx_id", txID).Msg("settlement: record confidence history failed after confirmed settlement")
		}
		if e.Velocity != nil {
			if err := e.Velocity.Record(ctx, payment.Subject, time.Now()); err != nil {
				e.Logger.Error().Err(err).Str("tx_id", txID).Msg("settlement: record velocity failed after confirmed settlement")
			}
		}
		if e.Behavior != nil {
			if err := e.Behavior.Record(ctx, payment.Subject, behavior.Transaction{
				AmountMinor: payment.AmountMinor,
				Merchant:    payment.MerchantDomain,
				Token:       payment.Token,
				Chain:       payment.Chain,
				At:          time.Now(),
			}); err != nil {
				e.Logger.Error().Err(err).Str("tx_id", txID).Msg("settlement: record behavior profile failed after confirmed settlement")
			}
		}
		e.emit(ctx, webhook.EventPaymentSucceeded, txID, payment, "")
		return Receipt{
			Accepted:      true,
			TxHash:        finalReceipt.TxHash,
			Chain:         finalReceipt.Chain,
			Status:        "confirmed",
			BlockNumber:   finalReceipt.BlockNumber,
			GasUsed:       finalReceipt.GasUsed,
			AuditAnchor:   entry.AuditAnchor,
			LedgerEntryID: entry.EntryID,
		}, nil

	case failed:
		e.emitFailed(ctx, txID, payment, "rail_failed")
		return Receipt{
			Accepted:      false,
			Reason:        "rail_failed",
			TxHash:        finalReceipt.TxHash,
			Chain:         finalReceipt.Chain,
			Status:        "failed",
			LedgerEntryID: entry.EntryID,
		}, nil

	default:
		// Step 13 still applies: a ledger row exists, reconciliation
		// will pull authoritative state from chain.
		return Receipt{
			Accepted:      true,
			TxHash:        submitted.TxHash,
			Chain:         submitted.Chain,
			Status:        "pending",
			LedgerEntryID: entry.EntryID,
		}, nil
	}
}

// route builds a confidence.ScoringInput from the engine's
// ConfidenceContext and computes the tier for payment.
func (e *Engine) route(ctx context.Context, payment mandate.Payment) (confidence.Score, confidence.Routing, error) {
	history, err := e.Confidence.History(ctx, payment.Subject)
	if err != nil {
		return confidence.Score{}, confidence.Routing{}, err
	}
	budget, err := e.Confidence.Budget(ctx, payment.Subject)
	if err != nil {
		return confidence.Score{}, confidence.Routing{}, err
	}
	kya, err := e.Confidence.KYALevel(ctx, payment.Subject)
	if err != nil {
		return confidence.Score{}, confidence.Routing{}, err
	}
	violations, err := e.Confidence.ViolationCount(ctx, payment.Subject)
	if err != nil {
		return confidence.Score{}, confidence.Routing{}, err
	}

	score := confidence.Compute(confidence.ScoringInput{
		AgentID:        payment.Subject,
		AmountMinor:    payment.AmountMinor,
		MerchantID:     payment.MerchantDomain,
		History:        history,
		Budget:         budget,
		KYA:            kya,
		ViolationCount: violations,
	}, e.Thresholds)

	return score, confidence.Route(score), nil
}

// awaitFinality polls rail for txHash's receipt up to e.Confirmation's
// bounded attempts. A still-pending result after that budget is not an
// error — it is spec.md §4.10's "await ... or an explicit finality
// policy" falling through to reconciliation.
func (e *Engine) awaitFinality(ctx context.Context, rail rails.Rail, txHash string) (rails.Receipt, bool, bool) {
	for attempt := 0; attempt < e.Confirmation.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return rails.Receipt{TxHash: txHash}, false, false
			case <-time.After(e.Confirmation.Interval):
			}
		}

		receipt, err := rail.GetReceipt(ctx, txHash)
		if err != nil {
			continue
		}
		switch receipt.Status {
		case "confirmed":
			return receipt, true, false
		case "failed":
			return receipt, false, true
		}
	}
	return rails.Receipt{TxHash: txHash}, false, false
}

type eventPayload struct {
	TxID        string `json:"tx_id"`
	MandateID   string `json:"mandate_id"`
	AgentID     string `json:"agent_id"`
	AmountMinor int64  `json:"amount_minor"`
	Token       string `json:"token"`
	Chain       string `json:"chain"`
	Destination string `json:"destination"`
	Reason      string `json:"reason,omitempty"`
}

func (e *Engine) emit(ctx context.Context, eventType, txID string, payment mandate.Payment, reason string) {
	e.dispatchHooks(ctx, eventType, txID, payment, reason)

	if e.Webhooks == nil {
		return
	}
	payload, err := json.Marshal(eventPayload{
		TxID:        txID,
		MandateID:   payment.MandateID,
		AgentID:     payment.Subject,
		AmountMinor: payment.AmountMinor,
		Token:       payment.Token,
		Chain:       payment.Chain,
		Destination: payment.Destination,
		Reason:      reason,
	})
	if err != nil {
		e.Logger.Error().Err(err).Msg("settlement: marshal webhook payload")
		return
	}
	if err := e.Webhooks.Emit(ctx, eventType, payload); err != nil {
		e.Logger.Error().Err(err).Str("event_type", eventType).Msg("settlement: emit webhook")
	}
}

func (e *Engine) emitFailed(ctx context.Context, txID string, payment mandate.Payment, reason string) {
	e.emit(ctx, webhook.EventPaymentFailed, txID, payment, reason)
}

// dispatchHooks forwards the subset of settlement events a PaymentHook
// understands to the observability registry, if one is configured.
func (e *Engine) dispatchHooks(ctx context.Context, eventType, txID string, payment mandate.Payment, reason string) {
	if e.Hooks == nil {
		return
	}
	switch eventType {
	case webhook.EventPaymentInitiated:
		e.Hooks.EmitPaymentStarted(ctx, observability.PaymentStartedEvent{
			Timestamp:  time.Now(),
			PaymentID:  txID,
			Method:     "ap2",
			ResourceID: payment.MandateID,
			Amount:     payment.AmountMinor,
			Token:      payment.Token,
			Wallet:     payment.Destination,
		})
	case webhook.EventPaymentSucceeded, webhook.EventPaymentFailed:
		e.Hooks.EmitPaymentCompleted(ctx, observability.PaymentCompletedEvent{
			Timestamp:   time.Now(),
			PaymentID:   txID,
			Method:      "ap2",
			ResourceID:  payment.MandateID,
			Success:     eventType == webhook.EventPaymentSucceeded,
			ErrorReason: reason,
			Amount:      payment.AmountMinor,
			Token:       payment.Token,
			Wallet:      payment.Destination,
		})
	}
}
