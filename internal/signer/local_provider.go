package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// LocalKeyProvider is a development/test Provider: it holds one keypair
// per wallet in process memory rather than calling out to a real MPC
// custody service. It exists purely so Settlement Engine and the rail
// adapters can be exercised end-to-end without an external signer —
// production deployments must supply a real Provider.
type LocalKeyProvider struct {
	mu         sync.Mutex
	evmKeys    map[string]*ecdsa.PrivateKey
	solanaKeys map[string]solana.PrivateKey
}

// NewLocalKeyProvider constructs an empty LocalKeyProvider; keys are
// generated lazily per wallet on first use.
func NewLocalKeyProvider() *LocalKeyProvider {
	return &LocalKeyProvider{
		evmKeys:    make(map[string]*ecdsa.PrivateKey),
		solanaKeys: make(map[string]solana.PrivateKey),
	}
}

func isSolanaChain(chain string) bool {
	switch chain {
	case "solana", "solana-devnet", "solana-testnet":
		return true
	default:
		return false
	}
}

// SignDigest implements Provider. For Solana chains it ed25519-signs
// digest directly (Solana has no separate hashing step); for EVM chains
// it secp256k1-signs a 32-byte digest and returns the 65-byte (R||S||V)
// form tx.WithSignature expects.
func (p *LocalKeyProvider) SignDigest(ctx context.Context, walletID, chain string, digest []byte) ([]byte, error) {
	if isSolanaChain(chain) {
		key := p.solanaKey(walletID)
		sig, err := key.Sign(digest)
		if err != nil {
			return nil, fmt.Errorf("signer: local solana sign: %w", err)
		}
		return sig[:], nil
	}

	key := p.evmKey(walletID)
	if len(digest) != 32 {
		return nil, fmt.Errorf("signer: evm digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("signer: local evm sign: %w", err)
	}
	return sig, nil
}

func (p *LocalKeyProvider) evmKey(walletID string) *ecdsa.PrivateKey {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key, ok := p.evmKeys[walletID]; ok {
		return key
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(fmt.Sprintf("signer: generate evm key: %v", err))
	}
	p.evmKeys[walletID] = key
	return key
}

func (p *LocalKeyProvider) solanaKey(walletID string) solana.PrivateKey {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key, ok := p.solanaKeys[walletID]; ok {
		return key
	}
	key := solana.NewWallet().PrivateKey
	p.solanaKeys[walletID] = key
	return key
}

// EVMAddress returns walletID's EVM address, generating its keypair on
// first use like SignDigest does.
func (p *LocalKeyProvider) EVMAddress(walletID string) common.Address {
	return crypto.PubkeyToAddress(p.evmKey(walletID).PublicKey)
}

// SolanaAddress returns walletID's Solana address, generating its
// keypair on first use like SignDigest does.
func (p *LocalKeyProvider) SolanaAddress(walletID string) solana.PublicKey {
	return p.solanaKey(walletID).PublicKey()
}
