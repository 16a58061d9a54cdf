package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/sardis-ai/payments-core/internal/errors"
	"github.com/sardis-ai/payments-core/internal/mandate"
)

// executeRequest is the AP2 mandate-chain submission body for
// POST /payments/execute (spec §4.3, §4.10).
type executeRequest struct {
	Intent  mandate.Intent  `json:"intent"`
	Cart    mandate.Cart    `json:"cart"`
	Payment mandate.Payment `json:"payment"`
}

// executeResponse mirrors spec §6's settlement response shape.
type executeResponse struct {
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	Chain         string `json:"chain,omitempty"`
	Status        string `json:"status,omitempty"`
	LedgerEntryID string `json:"ledger_entry_id,omitempty"`
	ApprovalID    string `json:"approval_id,omitempty"`
}

func (h *handlers) executePayment(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}

	result, err := h.verifier.VerifyChain(r.Context(), req.Intent, req.Cart, req.Payment)
	if err != nil {
		h.logger.Error().Err(err).Msg("mandate chain verification failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "verification error")
		return
	}
	if !result.Accepted {
		writeJSON(w, http.StatusOK, executeResponse{Accepted: false, Reason: result.Reason})
		return
	}

	receipt, err := h.engine.DispatchPayment(r.Context(), result)
	if err != nil {
		h.logger.Error().Err(err).Str("mandate_id", req.Payment.MandateID).Msg("settlement dispatch failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeSettlementTimeout, "settlement could not complete")
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		Accepted:      receipt.Accepted,
		Reason:        receipt.Reason,
		TxHash:        receipt.TxHash,
		Chain:         receipt.Chain,
		Status:        receipt.Status,
		LedgerEntryID: receipt.LedgerEntryID,
		ApprovalID:    receipt.ApprovalID,
	})
}

// createX402Challenge issues a 402 challenge a client must sign and
// return to payments/x402/submit.
type createChallengeRequest struct {
	Payer   string `json:"payer"`
	Payee   string `json:"payee"`
	Amount  int64  `json:"amount"`
	Network string `json:"network"`
}

func (h *handlers) createX402Challenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}
	if req.Payer == "" || req.Payee == "" || req.Amount <= 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "payer, payee, and a positive amount are required")
		return
	}

	challenge := mandate.Challenge{
		PaymentID: uuid.NewString(),
		Payer:     req.Payer,
		Payee:     req.Payee,
		Amount:    req.Amount,
		Nonce:     uuid.NewString(),
		Network:   req.Network,
		Version:   "2.0",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	h.challenges.Save(challenge)

	writeJSON(w, http.StatusOK, challenge)
}

func (h *handlers) submitX402Payload(w http.ResponseWriter, r *http.Request) {
	var payload mandate.Payload
	if err := decodeJSON(r.Body, &payload); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}

	challenge, ok := h.challenges.Take(payload.PaymentID)
	if !ok {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeX402ChallengeExpired, "no matching challenge, or it has expired")
		return
	}

	result, err := h.verifier.VerifyX402(r.Context(), challenge, payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("x402 verification failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "verification error")
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{Accepted: result.Accepted, Reason: result.Reason})
}
