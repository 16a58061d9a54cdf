package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

// EVMAdapter satisfies rails/evm.Signer: it hashes tx the way every EVM
// node would (EIP-1559 typed-transaction signing hash) and asks the
// underlying Provider for a 65-byte (R||S||V) signature over that hash.
type EVMAdapter struct {
	signer *MPCSigner
}

// Sign implements rails/evm.Signer.
func (a *EVMAdapter) Sign(ctx context.Context, walletID, chain string, tx *types.Transaction) (*types.Transaction, error) {
	ethSigner := types.LatestSignerForChainID(tx.ChainId())
	hash := ethSigner.Hash(tx)

	sig, err := a.signer.provider.SignDigest(ctx, walletID, chain, hash[:])
	if err != nil {
		return nil, fmt.Errorf("signer: sign evm tx digest: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signer: evm signature must be 65 bytes (R||S||V), got %d", len(sig))
	}

	signed, err := tx.WithSignature(ethSigner, sig)
	if err != nil {
		return nil, fmt.Errorf("signer: attach evm signature: %w", err)
	}
	return signed, nil
}
