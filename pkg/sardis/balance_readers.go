package sardis

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sardis-ai/payments-core/internal/money"
)

// erc20BalanceOfSelector is the first 4 bytes of keccak256("balanceOf(address)"),
// the read-side counterpart of rails/evm's erc20TransferSelector.
const erc20BalanceOfSelector = "70a08231"

// EthBalanceClient is the subset of *ethclient.Client an EVMBalanceReader
// calls, narrowed the same way rails/evm.EthClient is.
type EthBalanceClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EVMBalanceReader implements balance.Reader for one EVM chain: it reads
// the native balance directly, or an ERC-20 balance via balanceOf when
// token names a known token contract address.
type EVMBalanceReader struct {
	client         EthBalanceClient
	addressOf      func(walletID string) common.Address
	nativeSymbol   string
	tokenAddresses map[string]common.Address
}

// NewEVMBalanceReader builds a reader for one chain. nativeSymbol is the
// token name that reads the chain's native balance (e.g. "ETH");
// everything else in tokenAddresses is read via ERC-20 balanceOf.
func NewEVMBalanceReader(client EthBalanceClient, addressOf func(walletID string) common.Address, nativeSymbol string, tokenAddresses map[string]common.Address) *EVMBalanceReader {
	return &EVMBalanceReader{client: client, addressOf: addressOf, nativeSymbol: nativeSymbol, tokenAddresses: tokenAddresses}
}

// ReadBalance implements balance.Reader.
func (r *EVMBalanceReader) ReadBalance(ctx context.Context, walletID, token string) (int64, error) {
	addr := r.addressOf(walletID)

	if token == "" || token == r.nativeSymbol {
		bal, err := r.client.BalanceAt(ctx, addr, nil)
		if err != nil {
			return 0, fmt.Errorf("sardis: read native balance: %w", err)
		}
		return bal.Int64(), nil
	}

	contract, ok := r.tokenAddresses[token]
	if !ok {
		return 0, fmt.Errorf("sardis: unknown token %q for this chain", token)
	}

	data := make([]byte, 0, 4+32)
	data = append(data, common.FromHex(erc20BalanceOfSelector)...)
	data = append(data, common.LeftPadBytes(addr.Bytes(), 32)...)

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("sardis: call balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(out).Int64(), nil
}

// SolanaBalanceClient is the subset of *rpc.Client a SolanaBalanceReader
// calls.
type SolanaBalanceClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// SolanaBalanceReader implements balance.Reader for one Solana cluster:
// native SOL lamports directly, or an SPL token balance via the
// wallet's associated token account for the configured mint.
type SolanaBalanceReader struct {
	client       SolanaBalanceClient
	addressOf    func(walletID string) solana.PublicKey
	nativeSymbol string
	mints        map[string]solana.PublicKey
	spl          *money.SPLAdapter
}

// NewSolanaBalanceReader builds a reader for one Solana cluster.
func NewSolanaBalanceReader(client SolanaBalanceClient, addressOf func(walletID string) solana.PublicKey, nativeSymbol string, mints map[string]solana.PublicKey) *SolanaBalanceReader {
	return &SolanaBalanceReader{client: client, addressOf: addressOf, nativeSymbol: nativeSymbol, mints: mints, spl: money.NewSPLAdapter()}
}

// ReadBalance implements balance.Reader.
func (r *SolanaBalanceReader) ReadBalance(ctx context.Context, walletID, token string) (int64, error) {
	owner := r.addressOf(walletID)

	if token == "" || token == r.nativeSymbol {
		res, err := r.client.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		if err != nil {
			return 0, fmt.Errorf("sardis: read sol balance: %w", err)
		}
		return int64(res.Value), nil
	}

	mint, ok := r.mints[token]
	if !ok {
		return 0, fmt.Errorf("sardis: unknown token %q for this cluster", token)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("sardis: derive associated token account: %w", err)
	}
	res, err := r.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("sardis: read spl balance: %w", err)
	}
	raw := new(big.Int)
	raw.SetString(res.Value.Amount, 10)

	m, err := r.spl.FromSPLAmount(mint.String(), raw.Uint64())
	if err != nil {
		// Mint isn't in the asset registry (e.g. a custom token) — the
		// raw atomic amount is still meaningful even without Money's
		// asset metadata attached.
		return raw.Int64(), nil
	}
	return m.Atomic, nil
}
