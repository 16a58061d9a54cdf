package cctp

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sardis-ai/payments-core/internal/rails"
)

type fakeRail struct {
	chain     string
	submitted []rails.TxRequest
	nextHash  string
	err       error
}

func (f *fakeRail) ProviderName() string { return "evm" }
func (f *fakeRail) RailName() string     { return f.chain }

func (f *fakeRail) Submit(ctx context.Context, req rails.TxRequest) (rails.SubmittedTx, error) {
	f.submitted = append(f.submitted, req)
	if f.err != nil {
		return rails.SubmittedTx{}, f.err
	}
	return rails.SubmittedTx{TxHash: f.nextHash, Chain: f.chain, Rail: "evm", Status: "submitted"}, nil
}

func (f *fakeRail) GetReceipt(ctx context.Context, txHash string) (rails.Receipt, error) {
	return rails.Receipt{TxHash: txHash, Chain: f.chain, Status: "confirmed"}, nil
}

func (f *fakeRail) Estimate(ctx context.Context, req rails.TxRequest) (rails.GasEstimate, error) {
	return rails.GasEstimate{}, nil
}

type fakeAttestationClient struct {
	status      string
	attestation []byte
	err         error
}

func (f *fakeAttestationClient) GetAttestation(ctx context.Context, messageHash string) (string, []byte, error) {
	return f.status, f.attestation, f.err
}

func TestBridgeUSDCRejectsUnsupportedChains(t *testing.T) {
	svc := NewService(map[string]rails.Rail{}, &fakeAttestationClient{}, NewMemoryBridgeStore())
	if _, err := svc.BridgeUSDC(context.Background(), "dogechain", "base", 1_000_000, "0xabc", "wallet-1", ""); err == nil {
		t.Fatal("expected error for unsupported source chain")
	}
	if _, err := svc.BridgeUSDC(context.Background(), "base", "base", 1_000_000, "0xabc", "wallet-1", ""); err == nil {
		t.Fatal("expected error when source and destination chains match")
	}
}

func TestBridgeUSDCRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(map[string]rails.Rail{}, &fakeAttestationClient{}, NewMemoryBridgeStore())
	if _, err := svc.BridgeUSDC(context.Background(), "base", "ethereum", 0, "0xabc", "wallet-1", ""); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
}

func TestBridgeUSDCSubmitsApproveThenDepositForBurn(t *testing.T) {
	rail := &fakeRail{chain: "base", nextHash: "0xdeadbeef"}
	svc := NewService(map[string]rails.Rail{"base": rail}, &fakeAttestationClient{}, NewMemoryBridgeStore())

	recipient := "0x00000000000000000000000000000000000000aa"
	transfer, err := svc.BridgeUSDC(context.Background(), "base", "ethereum", 5_000_000, recipient, "wallet-1", "agent-1")
	if err != nil {
		t.Fatalf("BridgeUSDC: %v", err)
	}
	if len(rail.submitted) != 2 {
		t.Fatalf("len(submitted) = %d, want 2 (approve, depositForBurn)", len(rail.submitted))
	}
	if rail.submitted[0].ToAddress != USDCAddresses["base"] {
		t.Fatalf("approve target = %s, want USDC address", rail.submitted[0].ToAddress)
	}
	if rail.submitted[1].ToAddress != TokenMessengerAddresses["base"] {
		t.Fatalf("depositForBurn target = %s, want TokenMessenger address", rail.submitted[1].ToAddress)
	}
	if transfer.Status != StatusAwaitingAttestation {
		t.Fatalf("status = %q, want %q", transfer.Status, StatusAwaitingAttestation)
	}
	if transfer.SourceTxHash != "0xdeadbeef" {
		t.Fatalf("SourceTxHash = %q, want 0xdeadbeef", transfer.SourceTxHash)
	}
	if transfer.MessageHash == "" {
		t.Fatal("expected a derived message hash")
	}
}

func TestGetBridgeStatusAdvancesOnCompleteAttestation(t *testing.T) {
	rail := &fakeRail{chain: "base", nextHash: "0xdeadbeef"}
	store := NewMemoryBridgeStore()
	attester := &fakeAttestationClient{status: "complete", attestation: []byte{0x01, 0x02}}
	svc := NewService(map[string]rails.Rail{"base": rail}, attester, store)

	transfer, _ := svc.BridgeUSDC(context.Background(), "base", "ethereum", 1_000_000, "0x00000000000000000000000000000000000000aa", "wallet-1", "")

	updated, err := svc.GetBridgeStatus(context.Background(), transfer.TransferID)
	if err != nil {
		t.Fatalf("GetBridgeStatus: %v", err)
	}
	if updated.Status != StatusAttestationReceived {
		t.Fatalf("status = %q, want %q", updated.Status, StatusAttestationReceived)
	}
}

func TestCompleteBridgeRequiresAttestationReceivedOrAwaiting(t *testing.T) {
	store := NewMemoryBridgeStore()
	svc := NewService(map[string]rails.Rail{}, &fakeAttestationClient{}, store)
	_ = store.Save(context.Background(), BridgeTransfer{TransferID: "bridge_x", Status: StatusCompleted})

	if _, err := svc.CompleteBridge(context.Background(), "bridge_x", nil, nil); err == nil {
		t.Fatal("expected error completing an already-completed bridge")
	}
}

func TestCompleteBridgeCallsReceiveMessageOnDestinationChain(t *testing.T) {
	destRail := &fakeRail{chain: "ethereum", nextHash: "0xfeedface"}
	store := NewMemoryBridgeStore()
	svc := NewService(map[string]rails.Rail{"ethereum": destRail}, &fakeAttestationClient{}, store)

	_ = store.Save(context.Background(), BridgeTransfer{
		TransferID: "bridge_y",
		WalletID:   "wallet-1",
		ToChain:    "ethereum",
		Status:     StatusAttestationReceived,
	})

	transfer, err := svc.CompleteBridge(context.Background(), "bridge_y", []byte("message"), []byte("attestation"))
	if err != nil {
		t.Fatalf("CompleteBridge: %v", err)
	}
	if transfer.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", transfer.Status)
	}
	if transfer.DestinationTxHash != "0xfeedface" {
		t.Fatalf("DestinationTxHash = %q, want 0xfeedface", transfer.DestinationTxHash)
	}
	if len(destRail.submitted) != 1 || destRail.submitted[0].ToAddress != MessageTransmitterAddresses["ethereum"] {
		t.Fatalf("submitted = %+v, want one call to the MessageTransmitter", destRail.submitted)
	}
}

func TestEstimateBridgeTimeUsesSlowerSide(t *testing.T) {
	svc := NewService(nil, nil, nil)
	got := svc.EstimateBridgeTime("base", "ethereum")
	if got != EstimatedBridgeTimes["ethereum"] {
		t.Fatalf("EstimateBridgeTime = %d, want %d (ethereum dominates)", got, EstimatedBridgeTimes["ethereum"])
	}
}

func TestEncodeApproveShapesCallData(t *testing.T) {
	data, err := encodeApprove("0x00000000000000000000000000000000000000aa", 1000)
	if err != nil {
		t.Fatalf("encodeApprove: %v", err)
	}
	if got := common.Bytes2Hex(data[:4]); got != erc20ApproveSelector {
		t.Fatalf("selector = %q, want %q", got, erc20ApproveSelector)
	}
	if len(data) != 4+32+32 {
		t.Fatalf("len(data) = %d, want %d", len(data), 4+32+32)
	}
}

func TestEncodeReceiveMessageProducesExpectedLength(t *testing.T) {
	message := []byte("hello-message")
	attestation := []byte("attestation-bytes")
	data := encodeReceiveMessage(message, attestation)

	pad32 := func(n int) int { return ((n + 31) / 32) * 32 }
	want := 4 + 32 + 32 + 32 + pad32(len(message)) + 32 + pad32(len(attestation))
	if len(data) != want {
		t.Fatalf("len(data) = %d, want %d", len(data), want)
	}
	if got := common.Bytes2Hex(data[:4]); got != receiveMessageSelector {
		t.Fatalf("selector = %q, want %q", got, receiveMessageSelector)
	}
}
