// Package signer provides the MPC signer abstraction spec.md §4.10
// step 9 requires ("sign via MPC signer (signer.sign(wallet_id, tx) →
// signed); sign must be deterministic w.r.t. the canonical tx"), shared
// across every rail adapter that needs one.
//
// rails/evm and rails/solanarail each already declare their own narrow
// Signer interface (mirroring internal/ledger's ChainSubmitter
// decoupling) because this package didn't exist yet when they were
// built bottom-up. Go has no method overloading, so one concrete type
// can't expose two differently-shaped Sign methods; MPCSigner instead
// hands out a thin per-rail adapter (ForEVM, ForSolana) that each
// satisfy their rail's Signer interface while delegating to the same
// underlying Provider and the same wallet-keyed signing policy.
//
// There is no teacher or pack file defining an MPC-signer abstraction —
// Settlement Engine's "sign via MPC signer" is spec prose with no
// concrete reference implementation in the corpus — so Provider and
// MPCSigner are grounded only in that spec language, not in an existing
// file.
package signer

import "context"

// Provider is the actual MPC signing backend: given a wallet, chain,
// and digest, it returns a raw signature over that digest. Production
// deployments implement this against their MPC custody provider; it is
// intentionally the only seam this package defines, so every rail's
// signing need funnels through one policy (e.g. per-wallet key
// derivation, audit logging of every signing request).
type Provider interface {
	SignDigest(ctx context.Context, walletID, chain string, digest []byte) (signature []byte, err error)
}

// MPCSigner wraps a Provider and exposes it to each rail adapter
// through that rail's own narrow Signer interface.
type MPCSigner struct {
	provider Provider
}

// NewMPCSigner constructs an MPCSigner backed by provider.
func NewMPCSigner(provider Provider) *MPCSigner {
	return &MPCSigner{provider: provider}
}

// ForEVM returns an adapter satisfying rails/evm.Signer.
func (s *MPCSigner) ForEVM() *EVMAdapter {
	return &EVMAdapter{signer: s}
}

// ForSolana returns an adapter satisfying rails/solanarail.Signer.
func (s *MPCSigner) ForSolana() *SolanaAdapter {
	return &SolanaAdapter{signer: s}
}
