package card

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProvider is an in-memory stand-in for a second card issuer
// (playing the role Lithic would as a fallback behind Stripe Issuing)
// so Router's failover path is exercised without a second real SDK
// dependency.
type MemoryProvider struct {
	name string

	mu    sync.Mutex
	cards map[string]*memoryCard
}

type memoryCard struct {
	card         Card
	transactions []CardTransaction
}

// NewMemoryProvider constructs a stub provider identified by name
// (e.g. "lithic-fallback") for logging and DESIGN.md traceability.
func NewMemoryProvider(name string) *MemoryProvider {
	return &MemoryProvider{name: name, cards: make(map[string]*memoryCard)}
}

func (p *MemoryProvider) Name() string { return p.name }

func (p *MemoryProvider) CreateCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := Card{
		CardID:     "card_" + uuid.NewString(),
		Provider:   p.name,
		WalletID:   req.WalletID,
		Status:     CardStatusActive,
		SpendLimit: req.SpendLimit,
		Currency:   req.Currency,
		Last4:      "0000",
		CreatedAt:  time.Now().UTC(),
	}
	p.cards[c.CardID] = &memoryCard{card: c}
	return c, nil
}

func (p *MemoryProvider) get(cardID string) (*memoryCard, error) {
	c, ok := p.cards[cardID]
	if !ok {
		return nil, fmt.Errorf("%s: card %s not found", p.name, cardID)
	}
	return c, nil
}

func (p *MemoryProvider) Activate(ctx context.Context, cardID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.get(cardID)
	if err != nil {
		return err
	}
	c.card.Status = CardStatusActive
	return nil
}

func (p *MemoryProvider) Freeze(ctx context.Context, cardID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.get(cardID)
	if err != nil {
		return err
	}
	c.card.Status = CardStatusFrozen
	return nil
}

func (p *MemoryProvider) Unfreeze(ctx context.Context, cardID string) error {
	return p.Activate(ctx, cardID)
}

func (p *MemoryProvider) Cancel(ctx context.Context, cardID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.get(cardID)
	if err != nil {
		return err
	}
	c.card.Status = CardStatusCanceled
	return nil
}

func (p *MemoryProvider) UpdateLimits(ctx context.Context, cardID string, spendLimit int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.get(cardID)
	if err != nil {
		return err
	}
	c.card.SpendLimit = spendLimit
	return nil
}

func (p *MemoryProvider) FundCard(ctx context.Context, cardID string, amountMinor int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.get(cardID)
	return err
}

func (p *MemoryProvider) ListTransactions(ctx context.Context, cardID string) ([]CardTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.get(cardID)
	if err != nil {
		return nil, err
	}
	return c.transactions, nil
}

// RecordTransaction is a test/simulation hook letting callers seed
// transaction history for ListTransactions without a real processor.
func (p *MemoryProvider) RecordTransaction(cardID string, txn CardTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.get(cardID)
	if err != nil {
		return err
	}
	c.transactions = append(c.transactions, txn)
	return nil
}
