package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestEVMAdapterSignProducesValidSignature(t *testing.T) {
	mpc := NewMPCSigner(NewLocalKeyProvider())
	evmSigner := mpc.ForEVM()

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		Value:     big.NewInt(0),
	})

	signed, err := evmSigner.Sign(context.Background(), "wallet-1", "base", tx)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ethSigner := types.LatestSignerForChainID(tx.ChainId())
	sender, err := types.Sender(ethSigner, signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender == (common.Address{}) {
		t.Fatal("recovered sender is the zero address")
	}
}

func TestEVMAdapterSignIsDeterministicPerWallet(t *testing.T) {
	mpc := NewMPCSigner(NewLocalKeyProvider())
	evmSigner := mpc.ForEVM()

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		Value:     big.NewInt(0),
	})

	first, err := evmSigner.Sign(context.Background(), "wallet-1", "base", tx)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ethSigner := types.LatestSignerForChainID(tx.ChainId())
	senderFirst, err := types.Sender(ethSigner, first)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}

	second, err := evmSigner.Sign(context.Background(), "wallet-1", "base", tx)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	senderSecond, err := types.Sender(ethSigner, second)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}

	if senderFirst != senderSecond {
		t.Fatalf("same wallet signed to two different addresses: %s vs %s", senderFirst, senderSecond)
	}
}

func TestSolanaAdapterSignProducesValidSignature(t *testing.T) {
	mpc := NewMPCSigner(NewLocalKeyProvider())
	solSigner := mpc.ForSolana()

	message := []byte("settlement message bytes")
	sig, err := solSigner.Sign(context.Background(), "wallet-1", "solana-devnet", message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig == ([64]byte{}) {
		t.Fatal("expected non-zero signature")
	}
}

func TestLocalKeyProviderEVMAddressIsStablePerWallet(t *testing.T) {
	p := NewLocalKeyProvider()

	first := p.EVMAddress("wallet-1")
	second := p.EVMAddress("wallet-1")
	if first != second {
		t.Fatalf("same wallet produced two different addresses: %s vs %s", first, second)
	}
	if first == (common.Address{}) {
		t.Fatal("expected non-zero address")
	}

	other := p.EVMAddress("wallet-2")
	if other == first {
		t.Fatal("different wallets produced the same address")
	}
}

func TestLocalKeyProviderEVMAddressMatchesSigningKey(t *testing.T) {
	p := NewLocalKeyProvider()
	mpc := NewMPCSigner(p)
	evmSigner := mpc.ForEVM()

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		Value:     big.NewInt(0),
	})

	signed, err := evmSigner.Sign(context.Background(), "wallet-1", "base", tx)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ethSigner := types.LatestSignerForChainID(tx.ChainId())
	sender, err := types.Sender(ethSigner, signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}

	if addr := p.EVMAddress("wallet-1"); addr != sender {
		t.Fatalf("EVMAddress %s does not match recovered signer %s", addr, sender)
	}
}

func TestLocalKeyProviderSolanaAddressIsStablePerWallet(t *testing.T) {
	p := NewLocalKeyProvider()

	first := p.SolanaAddress("wallet-1")
	second := p.SolanaAddress("wallet-1")
	if !first.Equals(second) {
		t.Fatalf("same wallet produced two different addresses: %s vs %s", first, second)
	}

	other := p.SolanaAddress("wallet-2")
	if other.Equals(first) {
		t.Fatal("different wallets produced the same address")
	}
}

func TestSolanaAdapterSignIsDeterministicPerWallet(t *testing.T) {
	mpc := NewMPCSigner(NewLocalKeyProvider())
	solSigner := mpc.ForSolana()

	message := []byte("settlement message bytes")
	first, err := solSigner.Sign(context.Background(), "wallet-1", "solana-devnet", message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	second, err := solSigner.Sign(context.Background(), "wallet-1", "solana-devnet", message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if first != second {
		t.Fatal("same wallet+message signed to two different signatures")
	}
}
