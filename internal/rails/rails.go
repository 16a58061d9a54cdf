// Package rails defines the uniform dispatch contract every settlement
// rail (EVM, Solana, CCTP bridge, card issuing, fiat funding) implements,
// per spec.md §4.11.
package rails

import (
	"context"
	"time"
)

// TxRequest describes a transfer to submit on a rail.
type TxRequest struct {
	WalletID        string
	Chain           string
	FromAddress     string
	ToAddress       string
	Token           string
	AmountMinor     int64
	Data            []byte // pre-encoded call data, when the caller already built it (e.g. CCTP steps)
	IdempotencyKey  string
	TimeoutOverride time.Duration
}

// SubmittedTx is what a rail returns immediately after broadcasting.
type SubmittedTx struct {
	TxHash    string
	Chain     string
	Rail      string
	Status    string
	Submitted time.Time
}

// Receipt is the settled, queryable outcome of a submitted transaction.
type Receipt struct {
	TxHash      string
	Chain       string
	BlockNumber int64
	Status      string // "pending", "confirmed", "failed"
	AuditAnchor string
	GasUsed     int64
}

// GasEstimate is a rail's best-effort cost projection for a TxRequest.
type GasEstimate struct {
	FeeMinor       int64
	FeeToken       string
	EstimatedUnits int64
}

// Rail is the uniform contract every settlement rail adapter satisfies.
type Rail interface {
	ProviderName() string
	RailName() string
	Submit(ctx context.Context, req TxRequest) (SubmittedTx, error)
	GetReceipt(ctx context.Context, txHash string) (Receipt, error)
	Estimate(ctx context.Context, req TxRequest) (GasEstimate, error)
}

// DefaultTimeout is the per-adapter call timeout absent an override,
// per spec.md §5 ("every external call carries a per-adapter timeout,
// default 30s").
const DefaultTimeout = 30 * time.Second

func (r TxRequest) timeout() time.Duration {
	if r.TimeoutOverride > 0 {
		return r.TimeoutOverride
	}
	return DefaultTimeout
}

// WithTimeout derives a context bounded by req's adapter timeout.
func WithTimeout(ctx context.Context, req TxRequest) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, req.timeout())
}
