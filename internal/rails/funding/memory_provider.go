package funding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProvider is an in-process stand-in for a second funding source
// (e.g. a stablecoin on-ramp) so Router's failover path is exercised
// without a second real processor integration.
type MemoryProvider struct {
	name string

	mu      sync.Mutex
	funded  []FundingRequest
	failNow bool
}

// NewMemoryProvider constructs a stub provider identified by name for
// logging and DESIGN.md traceability.
func NewMemoryProvider(name string) *MemoryProvider {
	return &MemoryProvider{name: name}
}

func (p *MemoryProvider) Name() string { return p.name }

// SetFailing toggles this provider into/out of an always-erroring mode,
// used by tests to exercise Router's failover path.
func (p *MemoryProvider) SetFailing(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNow = fail
}

func (p *MemoryProvider) Fund(ctx context.Context, req FundingRequest) (FundingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNow {
		return FundingResult{}, fmt.Errorf("%s: provider unavailable", p.name)
	}
	if req.AmountMinor <= 0 {
		return FundingResult{}, fmt.Errorf("%s: amount must be positive", p.name)
	}

	p.funded = append(p.funded, req)
	return FundingResult{
		FundingID: "fund_" + uuid.NewString(),
		Provider:  p.name,
		Status:    "settled",
		SettledAt: time.Now().UTC(),
	}, nil
}

// Funded returns the requests this provider has successfully funded,
// for test assertions.
func (p *MemoryProvider) Funded() []FundingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FundingRequest, len(p.funded))
	copy(out, p.funded)
	return out
}
