package httpserver

import (
	"errors"
	"net/http"

	apierrors "github.com/sardis-ai/payments-core/internal/errors"
	"github.com/sardis-ai/payments-core/internal/rails/funding"
)

type fundingRequest struct {
	WalletID    string `json:"wallet_id"`
	AgentID     string `json:"agent_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Source      string `json:"source"`
}

type fundingResponse struct {
	Result   funding.FundingResult   `json:"result"`
	Attempts []funding.FundingAttempt `json:"attempts,omitempty"`
}

func (h *handlers) executeFunding(w http.ResponseWriter, r *http.Request) {
	var req fundingRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}
	if req.WalletID == "" || req.AgentID == "" || req.AmountMinor <= 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "wallet_id, agent_id, and a positive amount_minor are required")
		return
	}

	result, attempts, err := h.funding.ExecuteFundingWithFailover(r.Context(), funding.FundingRequest{
		WalletID:    req.WalletID,
		AgentID:     req.AgentID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Source:      req.Source,
	})
	if err != nil {
		var routingErr *funding.FundingRoutingError
		if errors.As(err, &routingErr) {
			writeJSON(w, http.StatusBadGateway, fundingResponse{Attempts: routingErr.Attempts})
			return
		}
		h.logger.Error().Err(err).Msg("funding execution failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeFundingRouting, "funding execution failed")
		return
	}
	writeJSON(w, http.StatusOK, fundingResponse{Result: result, Attempts: attempts})
}
