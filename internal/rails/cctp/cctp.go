// Package cctp implements the USDC bridge rail (spec.md §4.11) on top
// of Circle's Cross-Chain Transfer Protocol V2, grounded on
// original_source/.../sardis_chain/cctp.py. It drives three manually
// ABI-encoded calls (approve, depositForBurn, receiveMessage) through
// an existing rails.Rail (an EVM adapter per chain), rather than
// owning its own transport.
package cctp

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/sardis-ai/payments-core/internal/rails"
)

// BridgeStatus tracks a transfer's progress through the CCTP flow.
type BridgeStatus string

const (
	StatusInitiated           BridgeStatus = "initiated"
	StatusDepositSubmitted    BridgeStatus = "deposit_submitted"
	StatusAwaitingAttestation BridgeStatus = "awaiting_attestation"
	StatusAttestationReceived BridgeStatus = "attestation_received"
	StatusCompleting          BridgeStatus = "completing"
	StatusCompleted           BridgeStatus = "completed"
	StatusFailed              BridgeStatus = "failed"
)

// BridgeTransfer tracks one cross-chain USDC transfer end to end.
type BridgeTransfer struct {
	TransferID        string
	WalletID          string
	AgentID           string
	FromChain         string
	ToChain           string
	AmountMinor       int64 // USDC has 6 decimals
	Token             string
	MessageHash       string
	SourceTxHash      string
	DestinationTxHash string
	Status            BridgeStatus
	Error             string
	CreatedAt         time.Time
}

// AttestationClient polls Circle's attestation service for a
// message's signed attestation, once the source deposit has landed.
type AttestationClient interface {
	GetAttestation(ctx context.Context, messageHash string) (status string, attestation []byte, err error)
}

// BridgeStore persists BridgeTransfer state across the wait for
// attestation, which can take up to twenty minutes — far longer than
// any single settlement request's lifetime.
type BridgeStore interface {
	Save(ctx context.Context, transfer BridgeTransfer) error
	Get(ctx context.Context, transferID string) (BridgeTransfer, error)
}

// MemoryBridgeStore is an in-process BridgeStore for tests and
// single-instance deployments.
type MemoryBridgeStore struct {
	mu        sync.RWMutex
	transfers map[string]BridgeTransfer
}

func NewMemoryBridgeStore() *MemoryBridgeStore {
	return &MemoryBridgeStore{transfers: make(map[string]BridgeTransfer)}
}

func (s *MemoryBridgeStore) Save(ctx context.Context, transfer BridgeTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[transfer.TransferID] = transfer
	return nil
}

func (s *MemoryBridgeStore) Get(ctx context.Context, transferID string) (BridgeTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transfer, ok := s.transfers[transferID]
	if !ok {
		return BridgeTransfer{}, fmt.Errorf("cctp: transfer %s not found", transferID)
	}
	return transfer, nil
}

// Service drives CCTP bridge transfers, dispatching the approve,
// depositForBurn, and receiveMessage calls through a per-chain
// rails.Rail (an EVM adapter) rather than talking to a node directly.
type Service struct {
	rails       map[string]rails.Rail
	attestation AttestationClient
	store       BridgeStore
}

func NewService(railsByChain map[string]rails.Rail, attestation AttestationClient, store BridgeStore) *Service {
	return &Service{rails: railsByChain, attestation: attestation, store: store}
}

// BridgeUSDC initiates a cross-chain transfer: approve the
// TokenMessenger, then call depositForBurn, leaving the transfer
// awaiting Circle's attestation.
func (s *Service) BridgeUSDC(ctx context.Context, fromChain, toChain string, amountMinor int64, recipient, walletID, agentID string) (BridgeTransfer, error) {
	if !IsSupported(fromChain) {
		return BridgeTransfer{}, fmt.Errorf("cctp: source chain %q not supported", fromChain)
	}
	if !IsSupported(toChain) {
		return BridgeTransfer{}, fmt.Errorf("cctp: destination chain %q not supported", toChain)
	}
	if fromChain == toChain {
		return BridgeTransfer{}, fmt.Errorf("cctp: source and destination chains must differ")
	}
	if amountMinor <= 0 {
		return BridgeTransfer{}, fmt.Errorf("cctp: amount must be positive")
	}

	transfer := BridgeTransfer{
		TransferID:  "bridge_" + uuid.NewString(),
		WalletID:    walletID,
		AgentID:     agentID,
		FromChain:   fromChain,
		ToChain:     toChain,
		AmountMinor: amountMinor,
		Token:       "USDC",
		Status:      StatusInitiated,
		CreatedAt:   time.Now().UTC(),
	}

	rail, ok := s.rails[fromChain]
	if !ok {
		transfer.Status = StatusFailed
		transfer.Error = fmt.Sprintf("no rail configured for chain %q", fromChain)
		_ = s.store.Save(ctx, transfer)
		return transfer, fmt.Errorf("cctp: %s", transfer.Error)
	}

	destDomain, _ := DomainFor(toChain)
	tokenMessenger := TokenMessengerAddresses[fromChain]
	usdcAddress := USDCAddresses[fromChain]

	approveData, err := encodeApprove(tokenMessenger, amountMinor)
	if err != nil {
		return s.fail(ctx, transfer, fmt.Errorf("encode approve: %w", err))
	}
	if _, err := rail.Submit(ctx, rails.TxRequest{
		WalletID:  walletID,
		Chain:     fromChain,
		ToAddress: usdcAddress,
		Data:      approveData,
	}); err != nil {
		return s.fail(ctx, transfer, fmt.Errorf("submit approve: %w", err))
	}

	depositData, err := encodeDepositForBurn(amountMinor, destDomain, recipient, usdcAddress)
	if err != nil {
		return s.fail(ctx, transfer, fmt.Errorf("encode depositForBurn: %w", err))
	}
	submitted, err := rail.Submit(ctx, rails.TxRequest{
		WalletID:  walletID,
		Chain:     fromChain,
		ToAddress: tokenMessenger,
		Data:      depositData,
	})
	if err != nil {
		return s.fail(ctx, transfer, fmt.Errorf("submit depositForBurn: %w", err))
	}

	transfer.SourceTxHash = submitted.TxHash
	transfer.Status = StatusDepositSubmitted
	// The MessageSent event's topic carries the real message hash;
	// without log access through the generic rails.Receipt type, fall
	// back to hashing the tx hash, the same fallback cctp.py itself
	// uses when a deposit receipt's logs are unavailable.
	transfer.MessageHash = hashTxHash(submitted.TxHash)
	transfer.Status = StatusAwaitingAttestation

	if err := s.store.Save(ctx, transfer); err != nil {
		return transfer, fmt.Errorf("cctp: save transfer: %w", err)
	}
	return transfer, nil
}

func (s *Service) fail(ctx context.Context, transfer BridgeTransfer, err error) (BridgeTransfer, error) {
	transfer.Status = StatusFailed
	transfer.Error = err.Error()
	_ = s.store.Save(ctx, transfer)
	return transfer, err
}

// GetBridgeStatus polls Circle's attestation service for the
// transfer's message hash and advances its stored status once an
// attestation is available.
func (s *Service) GetBridgeStatus(ctx context.Context, transferID string) (BridgeTransfer, error) {
	transfer, err := s.store.Get(ctx, transferID)
	if err != nil {
		return BridgeTransfer{}, err
	}
	if transfer.Status != StatusAwaitingAttestation {
		return transfer, nil
	}

	status, attestation, err := s.attestation.GetAttestation(ctx, transfer.MessageHash)
	if err != nil {
		return transfer, fmt.Errorf("cctp: check attestation: %w", err)
	}
	if status == "complete" && len(attestation) > 0 {
		transfer.Status = StatusAttestationReceived
		if saveErr := s.store.Save(ctx, transfer); saveErr != nil {
			return transfer, saveErr
		}
	}
	return transfer, nil
}

// CompleteBridge calls receiveMessage on the destination chain's
// MessageTransmitter once an attestation has been received.
func (s *Service) CompleteBridge(ctx context.Context, transferID string, messageBytes, attestation []byte) (BridgeTransfer, error) {
	transfer, err := s.store.Get(ctx, transferID)
	if err != nil {
		return BridgeTransfer{}, err
	}
	if transfer.Status != StatusAwaitingAttestation && transfer.Status != StatusAttestationReceived {
		return transfer, fmt.Errorf("cctp: cannot complete bridge in status %q", transfer.Status)
	}

	transfer.Status = StatusCompleting
	rail, ok := s.rails[transfer.ToChain]
	if !ok {
		return s.fail(ctx, transfer, fmt.Errorf("no rail configured for chain %q", transfer.ToChain))
	}

	receiveData := encodeReceiveMessage(messageBytes, attestation)
	submitted, err := rail.Submit(ctx, rails.TxRequest{
		WalletID:  transfer.WalletID,
		Chain:     transfer.ToChain,
		ToAddress: MessageTransmitterAddresses[transfer.ToChain],
		Data:      receiveData,
	})
	if err != nil {
		return s.fail(ctx, transfer, fmt.Errorf("submit receiveMessage: %w", err))
	}

	transfer.DestinationTxHash = submitted.TxHash
	transfer.Status = StatusCompleted
	if err := s.store.Save(ctx, transfer); err != nil {
		return transfer, fmt.Errorf("cctp: save transfer: %w", err)
	}
	return transfer, nil
}

// EstimateBridgeTime projects end-to-end latency in seconds.
func (s *Service) EstimateBridgeTime(fromChain, toChain string) int {
	return EstimateBridgeSeconds(fromChain, toChain)
}

func hashTxHash(txHash string) string {
	return crypto.Keccak256Hash(common.FromHex(txHash)).Hex()
}

// encodeApprove builds approve(address,uint256) call data.
func encodeApprove(spender string, amountMinor int64) ([]byte, error) {
	if !common.IsHexAddress(spender) {
		return nil, fmt.Errorf("invalid spender address %q", spender)
	}
	data := make([]byte, 0, 4+32+32)
	data = append(data, common.FromHex(erc20ApproveSelector)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(spender).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(amountMinor).Bytes(), 32)...)
	return data, nil
}

// encodeDepositForBurn builds
// depositForBurn(uint256,uint32,bytes32,address) call data. The
// recipient is an EVM address left-padded to bytes32, per CCTP's
// mint-recipient encoding.
func encodeDepositForBurn(amountMinor int64, destDomain uint32, mintRecipient, burnToken string) ([]byte, error) {
	if !common.IsHexAddress(mintRecipient) {
		return nil, fmt.Errorf("invalid mint recipient address %q", mintRecipient)
	}
	if !common.IsHexAddress(burnToken) {
		return nil, fmt.Errorf("invalid burn token address %q", burnToken)
	}
	data := make([]byte, 0, 4+32+32+32+32)
	data = append(data, common.FromHex(depositForBurnSelector)...)
	data = append(data, common.LeftPadBytes(big.NewInt(amountMinor).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(destDomain)).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(mintRecipient).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(burnToken).Bytes(), 32)...)
	return data, nil
}

// encodeReceiveMessage builds receiveMessage(bytes,bytes) call data,
// ABI-encoding the two dynamic byte arrays by hand: selector, two
// head offsets, then each argument's length-prefixed, 32-byte-aligned
// body — the same layout cctp.py's _encode_receive_message produces.
func encodeReceiveMessage(message, attestation []byte) []byte {
	pad32 := func(n int) int { return ((n + 31) / 32) * 32 }

	msgPaddedLen := pad32(len(message))
	offset1 := int64(64)
	offset2 := offset1 + 32 + int64(msgPaddedLen)

	data := make([]byte, 0, 4+32+32+32+msgPaddedLen+32+pad32(len(attestation)))
	data = append(data, common.FromHex(receiveMessageSelector)...)
	data = append(data, common.LeftPadBytes(big.NewInt(offset1).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(offset2).Bytes(), 32)...)

	data = append(data, common.LeftPadBytes(big.NewInt(int64(len(message))).Bytes(), 32)...)
	data = append(data, rightPadBytes(message, msgPaddedLen)...)

	attPaddedLen := pad32(len(attestation))
	data = append(data, common.LeftPadBytes(big.NewInt(int64(len(attestation))).Bytes(), 32)...)
	data = append(data, rightPadBytes(attestation, attPaddedLen)...)

	return data
}

func rightPadBytes(b []byte, length int) []byte {
	if length <= len(b) {
		return b
	}
	out := make([]byte, length)
	copy(out, b)
	return out
}
