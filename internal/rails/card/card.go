// Package card implements the card issuing rail of spec.md §4.11: a
// CardProvider abstraction over virtual-card issuing, with a Router
// that tries a primary provider and falls back to a secondary one.
// Grounded on internal/stripe/client.go's constructor-injection
// pattern and github.com/stripe/stripe-go/v72/issuing.
package card

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CardStatus mirrors the lifecycle a virtual card moves through.
type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusFrozen   CardStatus = "frozen"
	CardStatusCanceled CardStatus = "canceled"
)

// CreateCardRequest describes a new virtual card to issue.
type CreateCardRequest struct {
	WalletID       string
	AgentID        string
	SpendLimit     int64 // minor units
	Currency       string
	CardholderName string
}

// Card is a provider-agnostic view of an issued card.
type Card struct {
	CardID     string
	Provider   string
	WalletID   string
	Status     CardStatus
	SpendLimit int64
	Currency   string
	Last4      string
	CreatedAt  time.Time
}

// CardTransaction is a single authorization/settlement event on a card.
type CardTransaction struct {
	TransactionID string
	CardID        string
	AmountMinor   int64
	Currency      string
	Merchant      string
	Status        string
	OccurredAt    time.Time
}

// CardProvider is the interface every card issuer (Stripe Issuing, a
// fallback issuer) implements, per spec.md §4.11.
type CardProvider interface {
	Name() string
	CreateCard(ctx context.Context, req CreateCardRequest) (Card, error)
	Activate(ctx context.Context, cardID string) error
	Freeze(ctx context.Context, cardID string) error
	Unfreeze(ctx context.Context, cardID string) error
	Cancel(ctx context.Context, cardID string) error
	UpdateLimits(ctx context.Context, cardID string, spendLimit int64) error
	FundCard(ctx context.Context, cardID string, amountMinor int64) error
	ListTransactions(ctx context.Context, cardID string) ([]CardTransaction, error)
}

// ErrNoProviderOwnsCard is returned when an operation targets a card
// ID the Router has no record of issuing.
var ErrNoProviderOwnsCard = fmt.Errorf("card: no provider owns this card")

// Router tries a primary CardProvider first, falling back to the next
// configured provider on failure for CreateCard; subsequent
// operations against an already-issued card are routed to whichever
// provider actually issued it.
type Router struct {
	providers []CardProvider

	mu      sync.RWMutex
	ownerOf map[string]CardProvider // cardID -> issuing provider
}

// NewRouter builds a Router trying providers in the given order.
func NewRouter(providers ...CardProvider) *Router {
	return &Router{providers: providers, ownerOf: make(map[string]CardProvider)}
}

// CreateCard tries each configured provider in order, returning the
// first success and recording which provider owns the resulting card
// so later operations route correctly.
func (r *Router) CreateCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	var lastErr error
	for _, provider := range r.providers {
		card, err := provider.CreateCard(ctx, req)
		if err == nil {
			r.mu.Lock()
			r.ownerOf[card.CardID] = provider
			r.mu.Unlock()
			return card, nil
		}
		lastErr = fmt.Errorf("%s: %w", provider.Name(), err)
	}
	if lastErr == nil {
		return Card{}, fmt.Errorf("card: no providers configured")
	}
	return Card{}, fmt.Errorf("card: all providers failed, last error: %w", lastErr)
}

func (r *Router) owner(cardID string) (CardProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.ownerOf[cardID]
	if !ok {
		return nil, ErrNoProviderOwnsCard
	}
	return provider, nil
}

func (r *Router) Activate(ctx context.Context, cardID string) error {
	provider, err := r.owner(cardID)
	if err != nil {
		return err
	}
	return provider.Activate(ctx, cardID)
}

func (r *Router) Freeze(ctx context.Context, cardID string) error {
	provider, err := r.owner(cardID)
	if err != nil {
		return err
	}
	return provider.Freeze(ctx, cardID)
}

func (r *Router) Unfreeze(ctx context.Context, cardID string) error {
	provider, err := r.owner(cardID)
	if err != nil {
		return err
	}
	return provider.Unfreeze(ctx, cardID)
}

func (r *Router) Cancel(ctx context.Context, cardID string) error {
	provider, err := r.owner(cardID)
	if err != nil {
		return err
	}
	return provider.Cancel(ctx, cardID)
}

func (r *Router) UpdateLimits(ctx context.Context, cardID string, spendLimit int64) error {
	provider, err := r.owner(cardID)
	if err != nil {
		return err
	}
	return provider.UpdateLimits(ctx, cardID, spendLimit)
}

func (r *Router) FundCard(ctx context.Context, cardID string, amountMinor int64) error {
	provider, err := r.owner(cardID)
	if err != nil {
		return err
	}
	return provider.FundCard(ctx, cardID, amountMinor)
}

func (r *Router) ListTransactions(ctx context.Context, cardID string) ([]CardTransaction, error) {
	provider, err := r.owner(cardID)
	if err != nil {
		return nil, err
	}
	return provider.ListTransactions(ctx, cardID)
}
