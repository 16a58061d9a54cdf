package sardis

import (
	"fmt"

	"github.com/sardis-ai/payments-core/internal/balance"
	"github.com/sardis-ai/payments-core/internal/rails"
)

// ChainRailSelector implements settlement.RailSelector over the set of
// rail adapters and balance readers app.go constructs from
// config.Config's chains map. Token-level granularity within a chain
// (which balance reader, which token contract) is resolved by the
// per-chain balance.Reader itself.
type ChainRailSelector struct {
	railsByChain   map[string]rails.Rail
	balancesByChain map[string]balance.Reader
}

// NewChainRailSelector builds a selector from already-constructed rail
// adapters and balance readers, keyed by the chain name used in
// config.Config.Chains.
func NewChainRailSelector(railsByChain map[string]rails.Rail, balancesByChain map[string]balance.Reader) *ChainRailSelector {
	return &ChainRailSelector{railsByChain: railsByChain, balancesByChain: balancesByChain}
}

// SelectRail implements settlement.RailSelector.
func (s *ChainRailSelector) SelectRail(chain, token string) (rails.Rail, error) {
	rail, ok := s.railsByChain[chain]
	if !ok {
		return nil, fmt.Errorf("sardis: no rail configured for chain %q", chain)
	}
	return rail, nil
}

// BalanceReader implements settlement.RailSelector.
func (s *ChainRailSelector) BalanceReader(chain, token string) (balance.Reader, error) {
	reader, ok := s.balancesByChain[chain]
	if !ok {
		return nil, fmt.Errorf("sardis: no balance reader configured for chain %q", chain)
	}
	return reader, nil
}
