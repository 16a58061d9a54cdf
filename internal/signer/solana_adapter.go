package signer

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SolanaAdapter satisfies rails/solanarail.Signer: Solana has no
// transaction-hashing step distinct from the message itself, so it asks
// the Provider to sign the raw serialized message bytes directly.
type SolanaAdapter struct {
	signer *MPCSigner
}

// Sign implements rails/solanarail.Signer.
func (a *SolanaAdapter) Sign(ctx context.Context, walletID, chain string, message []byte) (solana.Signature, error) {
	sig, err := a.signer.provider.SignDigest(ctx, walletID, chain, message)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("signer: sign solana message: %w", err)
	}
	if len(sig) != 64 {
		return solana.Signature{}, fmt.Errorf("signer: solana signature must be 64 bytes, got %d", len(sig))
	}

	var out solana.Signature
	copy(out[:], sig)
	return out, nil
}
