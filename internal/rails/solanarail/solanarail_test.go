package solanarail

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sardis-ai/payments-core/internal/rails"
)

type fakeRPCClient struct {
	blockhash solana.Hash
	sentTx    *solana.Transaction
	sendErr   error
	sig       solana.Signature
	statusErr error
	status    *rpc.GetSignatureStatusesResult
}

func (f *fakeRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash},
	}, nil
}

func (f *fakeRPCClient) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.sentTx = tx
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return f.sig, nil
}

func (f *fakeRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return f.status, f.statusErr
}

type fakeSigner struct {
	called bool
}

func (f *fakeSigner) Sign(ctx context.Context, walletID, chain string, message []byte) (solana.Signature, error) {
	f.called = true
	var sig solana.Signature
	copy(sig[:], []byte("mpc-signature-placeholder-bytes"))
	return sig, nil
}

func mustRandomKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("NewRandomPrivateKey: %v", err)
	}
	return key
}

func TestNewAdapterRequiresFeePayers(t *testing.T) {
	if _, err := NewAdapter("solana-devnet", &fakeRPCClient{}, &fakeSigner{}, nil); err == nil {
		t.Fatal("expected error when no fee payers configured")
	}
}

func TestSubmitSignsWithWalletAndFeePayerAndBroadcasts(t *testing.T) {
	feePayer := mustRandomKey(t)
	wallet := mustRandomKey(t)
	recipient := mustRandomKey(t)

	client := &fakeRPCClient{blockhash: solana.Hash{1, 2, 3}}
	signer := &fakeSigner{}
	a, err := NewAdapter("solana-devnet", client, signer, []solana.PrivateKey{feePayer})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}

	req := rails.TxRequest{
		WalletID:       "wallet-1",
		FromAddress:    wallet.PublicKey().String(),
		ToAddress:      recipient.PublicKey().String(),
		Token:          "USDC",
		AmountMinor:    1_500_000,
		IdempotencyKey: "idem-1",
	}

	submitted, err := a.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !signer.called {
		t.Fatal("expected MPC signer to be invoked for the wallet's signature")
	}
	if client.sentTx == nil {
		t.Fatal("expected transaction to be broadcast")
	}
	if submitted.Rail != "solana" || submitted.Chain != "solana-devnet" {
		t.Fatalf("unexpected SubmittedTx: %+v", submitted)
	}

	feePayerIdx := -1
	for i, key := range client.sentTx.Message.AccountKeys {
		if key.Equals(feePayer.PublicKey()) {
			feePayerIdx = i
			break
		}
	}
	if feePayerIdx == -1 {
		t.Fatal("fee payer not present among account keys")
	}
	if client.sentTx.Signatures[feePayerIdx] == (solana.Signature{}) {
		t.Fatal("expected fee payer signature to be set")
	}
}

func TestSubmitRejectsUnknownAsset(t *testing.T) {
	feePayer := mustRandomKey(t)
	wallet := mustRandomKey(t)
	recipient := mustRandomKey(t)

	client := &fakeRPCClient{blockhash: solana.Hash{1, 2, 3}}
	a, _ := NewAdapter("solana-devnet", client, &fakeSigner{}, []solana.PrivateKey{feePayer})

	_, err := a.Submit(context.Background(), rails.TxRequest{
		WalletID:    "wallet-1",
		FromAddress: wallet.PublicKey().String(),
		ToAddress:   recipient.PublicKey().String(),
		Token:       "NOT-A-REAL-ASSET",
		AmountMinor: 1,
	})
	if err == nil {
		t.Fatal("expected error for unknown asset code")
	}
}

func TestSubmitRejectsNonStablecoinAsset(t *testing.T) {
	feePayer := mustRandomKey(t)
	wallet := mustRandomKey(t)
	recipient := mustRandomKey(t)

	client := &fakeRPCClient{blockhash: solana.Hash{1, 2, 3}}
	a, _ := NewAdapter("solana-devnet", client, &fakeSigner{}, []solana.PrivateKey{feePayer})

	_, err := a.Submit(context.Background(), rails.TxRequest{
		WalletID:    "wallet-1",
		FromAddress: wallet.PublicKey().String(),
		ToAddress:   recipient.PublicKey().String(),
		Token:       "SOL",
		AmountMinor: 1,
	})
	if err == nil {
		t.Fatal("expected error for a non-stablecoin SPL asset")
	}
	if client.sentTx != nil {
		t.Fatal("expected rejection before any transaction was built or broadcast")
	}
}

func TestGetReceiptMapsFinalizedStatus(t *testing.T) {
	sig := solana.Signature{9, 9, 9}
	client := &fakeRPCClient{
		status: &rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{
				{ConfirmationStatus: rpc.ConfirmationStatusFinalized, Slot: 100},
			},
		},
	}
	a, _ := NewAdapter("solana-devnet", client, &fakeSigner{}, []solana.PrivateKey{mustRandomKey(t)})

	receipt, err := a.GetReceipt(context.Background(), sig.String())
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if receipt.Status != "confirmed" || receipt.BlockNumber != 100 {
		t.Fatalf("receipt = %+v, want confirmed/100", receipt)
	}
}

func TestGetReceiptPendingWhenStatusUnavailable(t *testing.T) {
	sig := solana.Signature{9, 9, 9}
	client := &fakeRPCClient{status: &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}}
	a, _ := NewAdapter("solana-devnet", client, &fakeSigner{}, []solana.PrivateKey{mustRandomKey(t)})

	receipt, err := a.GetReceipt(context.Background(), sig.String())
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if receipt.Status != "pending" {
		t.Fatalf("receipt.Status = %q, want pending", receipt.Status)
	}
}

func TestEstimateReturnsFlatSolanaFee(t *testing.T) {
	a, _ := NewAdapter("solana-devnet", &fakeRPCClient{}, &fakeSigner{}, []solana.PrivateKey{mustRandomKey(t)})
	est, err := a.Estimate(context.Background(), rails.TxRequest{})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.FeeToken != "SOL" || est.FeeMinor <= 0 {
		t.Fatalf("unexpected estimate: %+v", est)
	}
}
