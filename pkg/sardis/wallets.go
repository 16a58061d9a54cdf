// Package sardis wires the thirteen settlement components built under
// internal/ into a runnable application: internal/config selects which
// concrete collaborator backs each of settlement.Engine's narrow
// interfaces, and App exposes the resulting HTTP server.
//
// The Settlement Engine depends on four collaborators — WalletResolver,
// ApproverResolver, ConfidenceContext, and RailSelector — that spec.md
// leaves as deployment-specific integrations rather than core
// components. This file, approvers.go, confidence_context.go, and
// rail_selector.go provide the
// in-memory development defaults, grounded the same way
// compliance.MemoryAuditLog and compliance.AllowlistRules are: a real
// interface implementation, not a spec component in its own right.
package sardis

import (
	"context"
	"fmt"
	"sync"

	"github.com/sardis-ai/payments-core/internal/signer"
)

// MemoryWalletResolver assigns each agent a deterministic wallet ID per
// chain (agentID itself, since LocalKeyProvider/MPCSigner key by wallet
// ID rather than agent ID) and resolves its on-chain address from the
// configured signer.Provider. A production deployment would instead
// look up agent-to-wallet assignment from a custody/directory service.
type MemoryWalletResolver struct {
	mu       sync.RWMutex
	provider *signer.LocalKeyProvider
	assigned map[string]string // agentID|chain -> walletID
}

// NewMemoryWalletResolver builds a resolver backed by provider for
// address derivation. provider must be the same LocalKeyProvider the
// rail adapters' signer.MPCSigner wraps, so a resolved address always
// matches what actually signs the settlement.
func NewMemoryWalletResolver(provider *signer.LocalKeyProvider) *MemoryWalletResolver {
	return &MemoryWalletResolver{
		provider: provider,
		assigned: make(map[string]string),
	}
}

// ResolveWallet implements settlement.WalletResolver. Each agent gets
// one wallet per chain family (EVM vs Solana); the wallet ID is the
// agent ID itself since nothing downstream needs it to be opaque.
func (r *MemoryWalletResolver) ResolveWallet(ctx context.Context, agentID, chain string) (walletID, address string, err error) {
	if agentID == "" {
		return "", "", fmt.Errorf("sardis: empty agent id")
	}

	walletID = agentID
	r.mu.Lock()
	r.assigned[agentID+"|"+chain] = walletID
	r.mu.Unlock()

	if isSolanaChain(chain) {
		return walletID, r.provider.SolanaAddress(walletID).String(), nil
	}
	return walletID, r.provider.EVMAddress(walletID).Hex(), nil
}

func isSolanaChain(chain string) bool {
	switch chain {
	case "solana", "solana-devnet", "solana-testnet":
		return true
	default:
		return false
	}
}
