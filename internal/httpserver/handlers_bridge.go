package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sardis-ai/payments-core/internal/errors"
)

type bridgeRequest struct {
	FromChain   string `json:"from_chain"`
	ToChain     string `json:"to_chain"`
	AmountMinor int64  `json:"amount_minor"`
	Recipient   string `json:"recipient"`
	WalletID    string `json:"wallet_id"`
	AgentID     string `json:"agent_id"`
}

func (h *handlers) bridgeUSDC(w http.ResponseWriter, r *http.Request) {
	var req bridgeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}
	if req.FromChain == "" || req.ToChain == "" || req.AmountMinor <= 0 || req.Recipient == "" || req.WalletID == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "from_chain, to_chain, amount_minor, recipient, and wallet_id are required")
		return
	}

	transfer, err := h.bridge.BridgeUSDC(r.Context(), req.FromChain, req.ToChain, req.AmountMinor, req.Recipient, req.WalletID, req.AgentID)
	if err != nil {
		h.logger.Error().Err(err).Msg("cctp bridge initiation failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeRailUnavailable, "bridge initiation failed")
		return
	}
	writeJSON(w, http.StatusAccepted, transfer)
}

func (h *handlers) getBridgeStatus(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "transferId")
	transfer, err := h.bridge.GetBridgeStatus(r.Context(), transferID)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeResourceNotFound, "transfer not found")
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}
