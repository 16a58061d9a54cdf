// Package solanarail implements the Solana rail of spec.md §4.11,
// adapting pkg/x402/solana's gasless-transaction builder and
// internal/money's SPL adapter into a full dispatcher (the x402
// package only ever verified a transaction a client built; this one
// builds, signs, and submits on the settlement engine's behalf).
package solanarail

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sardis-ai/payments-core/internal/money"
	"github.com/sardis-ai/payments-core/internal/rails"
	"github.com/sardis-ai/payments-core/internal/rpcutil"
)

// Signer abstracts the MPC signer collaborator: it produces an
// ed25519 signature over an already-serialized Solana message for
// walletID, mirroring internal/rails/evm's narrow Signer interface.
type Signer interface {
	Sign(ctx context.Context, walletID, chain string, message []byte) (solana.Signature, error)
}

// RPCClient is the subset of *rpc.Client the adapter calls.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// computeUnitLimit and computeUnitPrice mirror the defaults the x402
// gasless builder's callers used for USDC transfers.
const (
	defaultComputeUnitLimit = uint32(200000)
	defaultComputeUnitPrice = uint64(1)
)

// Adapter implements rails.Rail for Solana, co-signing every transfer
// with a rotating pool of server fee-payer wallets the way
// SolanaVerifier.getNextWallet does for gasless x402 payments.
type Adapter struct {
	network     string
	client      RPCClient
	signer      Signer
	feePayers   []solana.PrivateKey
	feePayerIdx atomic.Uint64
	spl         *money.SPLAdapter
}

// NewAdapter constructs a Solana rail adapter. feePayers must be
// non-empty; they fund transaction fees while the wallet's own key
// (held by signer) authorizes the token transfer.
func NewAdapter(network string, client RPCClient, signer Signer, feePayers []solana.PrivateKey) (*Adapter, error) {
	if len(feePayers) == 0 {
		return nil, fmt.Errorf("solanarail: at least one fee payer wallet required")
	}
	return &Adapter{
		network:   network,
		client:    client,
		signer:    signer,
		feePayers: feePayers,
		spl:       money.NewSPLAdapter(),
	}, nil
}

func (a *Adapter) ProviderName() string { return "solana" }
func (a *Adapter) RailName() string     { return a.network }

// nextFeePayer round-robins the configured fee-payer pool, same
// strategy as SolanaVerifier.getNextWallet without its health-checker
// integration (not used here: Submit retries transient RPC errors
// itself, and any other failure surfaces as a plain error).
func (a *Adapter) nextFeePayer() solana.PrivateKey {
	idx := a.feePayerIdx.Add(1) % uint64(len(a.feePayers))
	return a.feePayers[idx]
}

// Submit builds an SPL token transfer (compute-budget instructions,
// TransferChecked, and an optional memo — the same instruction order
// BuildGaslessTransaction uses), signs it with both the wallet's MPC
// signature and a server fee-payer key, and broadcasts it.
func (a *Adapter) Submit(ctx context.Context, req rails.TxRequest) (rails.SubmittedTx, error) {
	ctx, cancel := rails.WithTimeout(ctx, req)
	defer cancel()

	asset, err := money.GetAsset(req.Token)
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: %w", err)
	}
	if asset.IsSPLToken() {
		if _, err := money.ValidateStablecoinMint(asset.Metadata.SolanaMint); err != nil {
			return rails.SubmittedTx{}, fmt.Errorf("solanarail: %w", err)
		}
	}
	mint, amount, err := a.spl.ToSPLAmount(money.New(asset, req.AmountMinor))
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: %w", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: parse mint: %w", err)
	}

	payer, err := solana.PublicKeyFromBase58(req.FromAddress)
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: parse from address: %w", err)
	}
	recipient, err := solana.PublicKeyFromBase58(req.ToAddress)
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: parse to address: %w", err)
	}

	fromTokenAccount, _, err := solana.FindAssociatedTokenAddress(payer, mintKey)
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: derive source token account: %w", err)
	}
	toTokenAccount, _, err := solana.FindAssociatedTokenAddress(recipient, mintKey)
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: derive destination token account: %w", err)
	}

	latest, err := rpcutil.WithRetry(ctx, func() (*rpc.GetLatestBlockhashResult, error) {
		return a.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: fetch blockhash: %w", err)
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(defaultComputeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(defaultComputeUnitPrice).Build(),
		token.NewTransferCheckedInstruction(
			amount,
			asset.Decimals,
			fromTokenAccount,
			mintKey,
			toTokenAccount,
			payer,
			[]solana.PublicKey{},
		).Build(),
	}
	if req.IdempotencyKey != "" {
		instructions = append(instructions, memo.NewMemoInstruction([]byte(req.IdempotencyKey), payer).Build())
	}

	feePayer := a.nextFeePayer()
	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(feePayer.PublicKey()))
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: build transaction: %w", err)
	}

	if err := a.coSign(ctx, tx, req.WalletID, payer, feePayer); err != nil {
		return rails.SubmittedTx{}, err
	}

	sig, err := rpcutil.WithRetry(ctx, func() (solana.Signature, error) {
		return a.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{SkipPreflight: false})
	})
	if err != nil {
		return rails.SubmittedTx{}, fmt.Errorf("solanarail: broadcast transaction: %w", err)
	}

	return rails.SubmittedTx{
		TxHash:    sig.String(),
		Chain:     a.network,
		Rail:      a.ProviderName(),
		Status:    "submitted",
		Submitted: time.Now().UTC(),
	}, nil
}

// coSign signs tx's message once per required signer: the wallet's
// signature comes from the MPC signer collaborator, the fee payer
// signs locally since the server custodies that key directly.
func (a *Adapter) coSign(ctx context.Context, tx *solana.Transaction, walletID string, wallet solana.PublicKey, feePayer solana.PrivateKey) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("solanarail: marshal message: %w", err)
	}

	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	tx.Signatures = make([]solana.Signature, numSigners)

	for i := 0; i < numSigners; i++ {
		key := tx.Message.AccountKeys[i]
		switch {
		case key.Equals(feePayer.PublicKey()):
			sig, signErr := feePayer.Sign(msg)
			if signErr != nil {
				return fmt.Errorf("solanarail: fee payer sign: %w", signErr)
			}
			tx.Signatures[i] = sig
		case key.Equals(wallet):
			sig, signErr := a.signer.Sign(ctx, walletID, a.network, msg)
			if signErr != nil {
				return fmt.Errorf("solanarail: wallet sign: %w", signErr)
			}
			tx.Signatures[i] = sig
		default:
			return fmt.Errorf("solanarail: unexpected required signer %s", key)
		}
	}
	return nil
}

func (a *Adapter) GetReceipt(ctx context.Context, txHash string) (rails.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, rails.DefaultTimeout)
	defer cancel()

	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return rails.Receipt{}, fmt.Errorf("solanarail: parse signature: %w", err)
	}

	result, err := a.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return rails.Receipt{}, fmt.Errorf("solanarail: fetch signature status: %w", err)
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return rails.Receipt{TxHash: txHash, Chain: a.network, Status: "pending"}, nil
	}

	status := result.Value[0]
	state := "pending"
	if status.Err != nil {
		state = "failed"
	} else if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized || status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
		state = "confirmed"
	}

	var blockNumber int64
	if status.Slot > 0 {
		blockNumber = int64(status.Slot)
	}

	return rails.Receipt{
		TxHash:      txHash,
		Chain:       a.network,
		BlockNumber: blockNumber,
		Status:      state,
	}, nil
}

// Estimate returns a conservative flat estimate: Solana fees are a
// small, near-constant base fee plus the configured priority fee, so
// no RPC round trip is needed the way EVM's gas-price lookup requires.
func (a *Adapter) Estimate(ctx context.Context, req rails.TxRequest) (rails.GasEstimate, error) {
	const baseFeeLamports = int64(5000)
	priorityFeeLamports := int64(defaultComputeUnitPrice) * int64(defaultComputeUnitLimit) / 1_000_000

	return rails.GasEstimate{
		FeeMinor:       baseFeeLamports + priorityFeeLamports,
		FeeToken:       "SOL",
		EstimatedUnits: int64(defaultComputeUnitLimit),
	}, nil
}
