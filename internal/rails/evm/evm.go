// Package evm implements the EVM rail (Base, Polygon, Arbitrum, Optimism,
// Ethereum — mainnets and testnets) of spec.md §4.11, grounded on
// certenIO-certen-validator's pkg/ethereum/client.go wrapper around
// go-ethereum's ethclient, and on original_source/.../cctp.py's manual
// ERC-20 call-data encoding convention (reused here for plain transfers).
package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sardis-ai/payments-core/internal/rails"
	"github.com/sardis-ai/payments-core/internal/rpcutil"
)

// erc20TransferSelector is the first 4 bytes of keccak256("transfer(address,uint256)").
const erc20TransferSelector = "a9059cbb"

// Signer abstracts the MPC signer collaborator: it countersigns a raw,
// unsigned transaction for walletID on chain and returns the signed
// bytes ready for broadcast. Kept narrow, mirroring internal/ledger's
// ChainSubmitter decoupling; internal/signer's EVMAdapter satisfies it.
type Signer interface {
	Sign(ctx context.Context, walletID, chain string, tx *types.Transaction) (*types.Transaction, error)
}

// Dial wraps ethclient.Dial so callers get the real network client
// behind RPCClient without importing ethclient directly.
func Dial(rpcURL string) (*ethclient.Client, error) {
	return ethclient.Dial(rpcURL)
}

// Adapter implements rails.Rail for EVM-compatible chains.
type Adapter struct {
	chain     string
	client    EthClient
	signer    Signer
	gasLimit  uint64
	mu        sync.Mutex
	noncePlan map[string]uint64 // walletID -> next nonce not yet confirmed on-chain
}

// EthClient is the subset of *ethclient.Client the adapter calls,
// narrowed for testability without a live node — same shape as
// certenIO's pkg/ethereum.Client wrapper.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// NewAdapter constructs an EVM rail adapter for a single chain.
func NewAdapter(chain string, client EthClient, signer Signer) (*Adapter, error) {
	if _, err := ChainIDFor(chain); err != nil {
		return nil, err
	}
	return &Adapter{chain: chain, client: client, signer: signer, gasLimit: 90000, noncePlan: make(map[string]uint64)}, nil
}

func (a *Adapter) ProviderName() string { return "evm" }
func (a *Adapter) RailName() string     { return a.chain }

// encodeERC20Transfer builds transfer(address,uint256) call data:
// selector || 32-byte zero-padded recipient || 32-byte amount, the
// same manual-encoding convention cctp.py uses for approve/depositForBurn.
func encodeERC20Transfer(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	selectorBytes := common.FromHex(erc20TransferSelector)
	data = append(data, selectorBytes...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// nextNonce returns and reserves the next pending nonce for
// (walletID, chain), tracked locally so back-to-back submits within
// the same settlement don't race the node's pending-nonce view.
func (a *Adapter) nextNonce(ctx context.Context, wallet common.Address, walletID string) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := walletID + ":" + a.chain
	if planned, ok := a.noncePlan[key]; ok {
		a.noncePlan[key] = planned + 1
		return planned, nil
	}

	onChain, err := rpcutil.WithRetry(ctx, func() (uint64, error) {
		return a.client.PendingNonceAt(ctx, wallet)
	})
	if err != nil {
		return 0, fmt.Errorf("evm: fetch pending nonce: %w", err)
	}
	a.noncePlan[key] = onChain + 1
	return onChain, nil
}

// Submit builds, signs, and broadcasts an ERC-20 transfer using
// EIP-1559 fee fields.
func (a *Adapter) Submit(ctx context.Context, req rails.TxRequest) (rails.SubmittedTx, error) {
	ctx, cancel := rails.WithTimeout(ctx, req)
	defer cancel()

	chainID, err := ChainIDFor(a.chain)
	if err != nil {
		return rails.SubmittedTx{}, err
	}

	from := common.HexToAddress(req.FromAddress)
	to := common.HexToAddress(req.ToAddress)
	amount := big.NewInt(req.AmountMinor)

	nonce, err := a.nextNonce(ctx, from, req.WalletID)
	if err != nil {
		return rails.SubmittedTx{}, err
	}

	tip, err := rpcutil.WithRetry(ctx, func() (*big.Int, error) { return a.client.SuggestGasTipCap(ctx) })
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("evm: suggest gas tip: %w", err)
	}
	gasPrice, err := rpcutil.WithRetry(ctx, func() (*big.Int, error) { return a.client.SuggestGasPrice(ctx) })
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("evm: suggest gas price: %w", err)
	}
	feeCap := new(big.Int).Add(gasPrice, tip)

	data := req.Data
	if data == nil {
		data = encodeERC20Transfer(to, amount)
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       a.gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := a.signer.Sign(ctx, req.WalletID, a.chain, unsigned)
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("evm: sign transaction: %w", err)
	}

	if _, err := rpcutil.WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, a.client.SendTransaction(ctx, signed)
	}); err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("evm: broadcast transaction: %w", err)
	}

	return rails.SubmittedTx{
		TxHash:    signed.Hash().Hex(),
		Chain:     a.chain,
		Rail:      a.ProviderName(),
		Status:    "submitted",
		Submitted: time.Now().UTC(),
	}, nil
}

func (a *Adapter) GetReceipt(ctx context.Context, txHash string) (rails.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, rails.DefaultTimeout)
	defer cancel()

	receipt, err := rpcutil.WithRetry(ctx, func() (*types.Receipt, error) {
		return a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	})
	if err != nil {
		return rails.Receipt{}, fmt.Errorf("evm: fetch receipt: %w", err)
	}

	status := "failed"
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = "confirmed"
	}

	return rails.Receipt{
		TxHash:      txHash,
		Chain:       a.chain,
		BlockNumber: receipt.BlockNumber.Int64(),
		Status:      status,
		GasUsed:     int64(receipt.GasUsed),
	}, nil
}

func (a *Adapter) Estimate(ctx context.Context, req rails.TxRequest) (rails.GasEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, rails.DefaultTimeout)
	defer cancel()

	gasPrice, err := rpcutil.WithRetry(ctx, func() (*big.Int, error) { return a.client.SuggestGasPrice(ctx) })
	if err != nil {
		return rails.GasEstimate{}, fmt.Errorf("evm: suggest gas price: %w", err)
	}

	feeWei := new(big.Int).Mul(gasPrice, big.NewInt(int64(a.gasLimit)))
	return rails.GasEstimate{
		FeeMinor:       feeWei.Int64(),
		FeeToken:       "ETH",
		EstimatedUnits: int64(a.gasLimit),
	}, nil
}
