// Package funding implements the funding rail of spec.md §4.11: moving
// money from an external source (bank transfer, stablecoin on-ramp) into
// a wallet's spendable balance. FundingAdapter mirrors rails.Rail's
// shape but for one-shot funding operations rather than payment
// dispatch, and Router tries configured providers in order, recording
// a FundingAttempt per try — the same attempt-then-fallback idiom
// internal/callbacks/retry.go uses for webhook delivery, generalized
// from "retry the same endpoint" to "try the next provider."
package funding

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FundingRequest describes a request to move external funds into a wallet.
type FundingRequest struct {
	WalletID    string
	AgentID     string
	AmountMinor int64
	Currency    string
	Source      string // e.g. "bank_transfer", "stablecoin_onramp"
}

// FundingResult is the outcome of a successful funding operation.
type FundingResult struct {
	FundingID string
	Provider  string
	Status    string
	SettledAt time.Time
}

// FundingAdapter is implemented by each funding source (Stripe
// Treasury, an in-memory stand-in for a second processor, and so on).
type FundingAdapter interface {
	Name() string
	Fund(ctx context.Context, req FundingRequest) (FundingResult, error)
}

// FundingAttempt records one provider's outcome during a failover walk.
type FundingAttempt struct {
	Provider    string
	Succeeded   bool
	Error       string
	AttemptedAt time.Time
}

// FundingRoutingError is raised when every configured provider fails.
type FundingRoutingError struct {
	Attempts []FundingAttempt
}

func (e *FundingRoutingError) Error() string {
	var names []string
	for _, a := range e.Attempts {
		names = append(names, fmt.Sprintf("%s: %s", a.Provider, a.Error))
	}
	return fmt.Sprintf("funding: all %d provider(s) failed: %s", len(e.Attempts), strings.Join(names, "; "))
}

// Router tries configured FundingAdapters in order until one succeeds.
type Router struct {
	providers []FundingAdapter
}

// NewRouter builds a Router trying providers in the given order.
func NewRouter(providers ...FundingAdapter) *Router {
	return &Router{providers: providers}
}

// ExecuteFundingWithFailover tries each provider in order, returning the
// first success plus the full attempt log. If every provider fails it
// returns a *FundingRoutingError carrying every attempt.
func (r *Router) ExecuteFundingWithFailover(ctx context.Context, req FundingRequest) (FundingResult, []FundingAttempt, error) {
	if len(r.providers) == 0 {
		return FundingResult{}, nil, &FundingRoutingError{}
	}

	attempts := make([]FundingAttempt, 0, len(r.providers))
	for _, provider := range r.providers {
		result, err := provider.Fund(ctx, req)
		attempt := FundingAttempt{
			Provider:    provider.Name(),
			AttemptedAt: time.Now().UTC(),
		}
		if err == nil {
			attempt.Succeeded = true
			attempts = append(attempts, attempt)
			return result, attempts, nil
		}
		attempt.Error = err.Error()
		attempts = append(attempts, attempt)
	}

	return FundingResult{}, attempts, &FundingRoutingError{Attempts: attempts}
}
