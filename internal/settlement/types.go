// Package settlement implements the Settlement Engine of spec.md §4.10:
// the thirteen-step orchestration from a verified mandate chain through
// idempotency, locking, compliance, policy, confidence routing, rail
// dispatch, ledger append, and webhook emission.
//
// Grounded on the teacher's internal/paywall/service.go — the closest
// existing "verify, check state, call rail, persist, notify" orchestrator
// in the corpus — generalized from a single-rail Solana paywall
// settlement into the multi-rail, policy-gated settlement spec.md
// describes. Every collaborator (balance reader, wallet resolver,
// approver resolver, confidence context) is injected the same way
// paywall.Service takes its store/verifier/notifier/repository, so Engine
// itself stays a thin coordinator over already-built components.
package settlement

import (
	"context"
	"time"

	"github.com/sardis-ai/payments-core/internal/confidence"
)

// Receipt is the outcome DispatchPayment returns — spec.md §6's
// `{accepted, receipt, ledger_entry_id}` / `{accepted: false, reason}`
// response shape collapsed into one struct.
type Receipt struct {
	Accepted      bool
	Reason        string
	TxHash        string
	Chain         string
	Status        string // "pending", "confirmed", "failed"
	BlockNumber   int64
	GasUsed       int64
	AuditAnchor   string
	LedgerEntryID string
	ApprovalID    string
}

// WalletResolver maps an agent to the wallet (and that wallet's
// on-chain address for the given chain) that should fund a settlement.
// Kept as a narrow collaborator interface since the Wallet directory
// itself isn't one of spec.md's thirteen core components.
type WalletResolver interface {
	ResolveWallet(ctx context.Context, agentID, chain string) (walletID, address string, err error)
}

// ApproverResolver returns the set of eligible approvers for an agent at
// a given confidence tier, used to populate an Approval Request.
type ApproverResolver interface {
	ResolveApprovers(ctx context.Context, agentID string, level confidence.Level) (approvers []string, err error)
}

// ConfidenceContext supplies the per-agent factors Compute needs: prior
// transaction history, budget utilization, KYA level, and violation
// count.
type ConfidenceContext interface {
	History(ctx context.Context, agentID string) ([]confidence.HistoryEntry, error)
	Budget(ctx context.Context, agentID string) (confidence.Budget, error)
	KYALevel(ctx context.Context, agentID string) (confidence.KYALevel, error)
	ViolationCount(ctx context.Context, agentID string) (int, error)
	RecordViolation(ctx context.Context, agentID string) error
	RecordSettlement(ctx context.Context, agentID, merchantID string, amountMinor int64, at time.Time) error
}

// ConfirmationPolicy bounds how long Engine polls a rail for a
// submitted transaction's finality before returning a pending Receipt
// for reconciliation to resolve later (spec.md §4.10 step 11, §5's
// "explicit finality policy per chain (configurable)").
type ConfirmationPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultConfirmationPolicy polls a handful of times with a short
// interval — enough to catch fast finality (e.g. Solana) inline while
// leaving slower EVM confirmations to reconciliation.
func DefaultConfirmationPolicy() ConfirmationPolicy {
	return ConfirmationPolicy{Attempts: 3, Interval: 2 * time.Second}
}
