package card

import (
	"context"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
	issuingcard "github.com/stripe/stripe-go/v72/issuing/card"
	issuingcardholder "github.com/stripe/stripe-go/v72/issuing/cardholder"
	issuingtransaction "github.com/stripe/stripe-go/v72/issuing/transaction"

	"github.com/sardis-ai/payments-core/internal/metrics"
)

// StripeConfig carries the credentials the teacher's
// config.StripeConfig also holds; kept narrow here so this package
// doesn't depend on the whole config package.
type StripeConfig struct {
	SecretKey string
}

// StripeProvider implements CardProvider via Stripe Issuing, built
// the same way internal/stripe.Client is: a thin wrapper setting the
// package-level API key once, then calling subpackage functions.
type StripeProvider struct {
	cfg     StripeConfig
	metrics *metrics.Metrics
}

// NewStripeProvider sets up stripe-go's issuing subpackages with cfg's key.
func NewStripeProvider(cfg StripeConfig, metricsCollector *metrics.Metrics) *StripeProvider {
	stripeapi.Key = cfg.SecretKey
	return &StripeProvider{cfg: cfg, metrics: metricsCollector}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	holderParams := &stripeapi.IssuingCardholderParams{
		Name: stripeapi.String(req.CardholderName),
		Type: stripeapi.String(string(stripeapi.IssuingCardholderTypeIndividual)),
	}
	holderParams.Context = ctx
	holder, err := issuingcardholder.New(holderParams)
	if err != nil {
		return Card{}, fmt.Errorf("stripe: create cardholder: %w", err)
	}

	cardParams := &stripeapi.IssuingCardParams{
		Cardholder: stripeapi.String(holder.ID),
		Currency:   stripeapi.String(req.Currency),
		Type:       stripeapi.String(string(stripeapi.IssuingCardTypeVirtual)),
		SpendingControls: &stripeapi.IssuingCardSpendingControlsParams{
			SpendingLimits: []*stripeapi.IssuingCardSpendingControlsSpendingLimitParams{
				{
					Amount:   stripeapi.Int64(req.SpendLimit),
					Interval: stripeapi.String(string(stripeapi.IssuingCardSpendingControlsSpendingLimitIntervalAllTime)),
				},
			},
		},
		Metadata: map[string]string{
			"sardis_wallet_id": req.WalletID,
			"sardis_agent_id":  req.AgentID,
		},
	}
	cardParams.Context = ctx
	issued, err := issuingcard.New(cardParams)
	if err != nil {
		return Card{}, fmt.Errorf("stripe: create card: %w", err)
	}

	return stripeCardToCard(issued, req), nil
}

func stripeCardToCard(issued *stripeapi.IssuingCard, req CreateCardRequest) Card {
	return Card{
		CardID:     issued.ID,
		Provider:   "stripe",
		WalletID:   req.WalletID,
		Status:     stripeStatusToCardStatus(issued.Status),
		SpendLimit: req.SpendLimit,
		Currency:   req.Currency,
		Last4:      issued.Last4,
		CreatedAt:  time.Now().UTC(),
	}
}

func stripeStatusToCardStatus(status stripeapi.IssuingCardStatus) CardStatus {
	switch status {
	case stripeapi.IssuingCardStatusActive:
		return CardStatusActive
	case stripeapi.IssuingCardStatusInactive:
		return CardStatusFrozen
	case stripeapi.IssuingCardStatusCanceled:
		return CardStatusCanceled
	default:
		return CardStatusActive
	}
}

func (p *StripeProvider) Activate(ctx context.Context, cardID string) error {
	return p.setStatus(ctx, cardID, stripeapi.IssuingCardStatusActive)
}

func (p *StripeProvider) Freeze(ctx context.Context, cardID string) error {
	return p.setStatus(ctx, cardID, stripeapi.IssuingCardStatusInactive)
}

func (p *StripeProvider) Unfreeze(ctx context.Context, cardID string) error {
	return p.setStatus(ctx, cardID, stripeapi.IssuingCardStatusActive)
}

func (p *StripeProvider) Cancel(ctx context.Context, cardID string) error {
	return p.setStatus(ctx, cardID, stripeapi.IssuingCardStatusCanceled)
}

func (p *StripeProvider) setStatus(ctx context.Context, cardID string, status stripeapi.IssuingCardStatus) error {
	params := &stripeapi.IssuingCardParams{Status: stripeapi.String(string(status))}
	params.Context = ctx
	if _, err := issuingcard.Update(cardID, params); err != nil {
		return fmt.Errorf("stripe: update card status: %w", err)
	}
	return nil
}

func (p *StripeProvider) UpdateLimits(ctx context.Context, cardID string, spendLimit int64) error {
	params := &stripeapi.IssuingCardParams{
		SpendingControls: &stripeapi.IssuingCardSpendingControlsParams{
			SpendingLimits: []*stripeapi.IssuingCardSpendingControlsSpendingLimitParams{
				{
					Amount:   stripeapi.Int64(spendLimit),
					Interval: stripeapi.String(string(stripeapi.IssuingCardSpendingControlsSpendingLimitIntervalAllTime)),
				},
			},
		},
	}
	params.Context = ctx
	if _, err := issuingcard.Update(cardID, params); err != nil {
		return fmt.Errorf("stripe: update spending limit: %w", err)
	}
	return nil
}

// FundCard is a no-op for Stripe Issuing: cards draw from the
// platform's Issuing balance rather than a per-card prepaid balance,
// so "funding" here is a ledger-level transfer into that balance, not
// a per-card operation — handled by the funding rail (C11's
// internal/rails/funding), not this provider.
func (p *StripeProvider) FundCard(ctx context.Context, cardID string, amountMinor int64) error {
	return nil
}

func (p *StripeProvider) ListTransactions(ctx context.Context, cardID string) ([]CardTransaction, error) {
	params := &stripeapi.IssuingTransactionListParams{Card: stripeapi.String(cardID)}
	params.Context = ctx

	var transactions []CardTransaction
	iter := issuingtransaction.List(params)
	for iter.Next() {
		txn := iter.IssuingTransaction()
		transactions = append(transactions, CardTransaction{
			TransactionID: txn.ID,
			CardID:        cardID,
			AmountMinor:   txn.Amount,
			Currency:      string(txn.Currency),
			Merchant:      txn.MerchantData.Name,
			Status:        string(txn.Type),
			OccurredAt:    time.Unix(txn.Created, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list transactions: %w", err)
	}
	return transactions, nil
}
