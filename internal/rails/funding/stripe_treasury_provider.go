package funding

import (
	"context"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/treasury/outboundpayment"

	"github.com/sardis-ai/payments-core/internal/metrics"
)

// StripeTreasuryConfig carries the credentials a deployment's
// internal/config.StripeConfig also holds; kept narrow so this package
// doesn't depend on the whole config package, same as rails/card's
// StripeConfig.
type StripeTreasuryConfig struct {
	SecretKey          string
	FinancialAccountID string // the platform's Treasury Financial Account funds are pushed from
}

// StripeTreasuryProvider implements FundingAdapter via Stripe Treasury
// outbound payments, built the same way internal/stripe.Client and
// rails/card.StripeProvider are: set the package-level API key once,
// then call subpackage functions directly.
type StripeTreasuryProvider struct {
	cfg     StripeTreasuryConfig
	metrics *metrics.Metrics
}

// NewStripeTreasuryProvider sets up stripe-go's treasury subpackage with cfg's key.
func NewStripeTreasuryProvider(cfg StripeTreasuryConfig, metricsCollector *metrics.Metrics) *StripeTreasuryProvider {
	stripeapi.Key = cfg.SecretKey
	return &StripeTreasuryProvider{cfg: cfg, metrics: metricsCollector}
}

func (p *StripeTreasuryProvider) Name() string { return "stripe_treasury" }

func (p *StripeTreasuryProvider) Fund(ctx context.Context, req FundingRequest) (FundingResult, error) {
	if p.cfg.FinancialAccountID == "" {
		return FundingResult{}, fmt.Errorf("stripe_treasury: no financial account configured")
	}
	if req.AmountMinor <= 0 {
		return FundingResult{}, fmt.Errorf("stripe_treasury: amount must be positive")
	}

	params := &stripeapi.TreasuryOutboundPaymentParams{
		FinancialAccount: stripeapi.String(p.cfg.FinancialAccountID),
		Amount:           stripeapi.Int64(req.AmountMinor),
		Currency:         stripeapi.String(req.Currency),
		Metadata: map[string]string{
			"sardis_wallet_id": req.WalletID,
			"sardis_agent_id":  req.AgentID,
			"sardis_source":    req.Source,
		},
	}
	params.Context = ctx

	payment, err := outboundpayment.New(params)
	if err != nil {
		return FundingResult{}, fmt.Errorf("stripe_treasury: create outbound payment: %w", err)
	}

	return FundingResult{
		FundingID: payment.ID,
		Provider:  p.Name(),
		Status:    string(payment.Status),
		SettledAt: time.Now().UTC(),
	}, nil
}
