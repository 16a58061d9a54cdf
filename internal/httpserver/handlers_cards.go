package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sardis-ai/payments-core/internal/errors"
	"github.com/sardis-ai/payments-core/internal/rails/card"
)

type createCardRequest struct {
	WalletID       string `json:"wallet_id"`
	AgentID        string `json:"agent_id"`
	SpendLimit     int64  `json:"spend_limit_minor"`
	Currency       string `json:"currency"`
	CardholderName string `json:"cardholder_name"`
}

func (h *handlers) createCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}
	if req.WalletID == "" || req.AgentID == "" || req.SpendLimit <= 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "wallet_id, agent_id, and a positive spend_limit_minor are required")
		return
	}

	issued, err := h.cards.CreateCard(r.Context(), card.CreateCardRequest{
		WalletID:       req.WalletID,
		AgentID:        req.AgentID,
		SpendLimit:     req.SpendLimit,
		Currency:       req.Currency,
		CardholderName: req.CardholderName,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create card")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeRailUnavailable, "card issuance failed")
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (h *handlers) freezeCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")
	if err := h.cards.Freeze(r.Context(), cardID); err != nil {
		h.logger.Error().Err(err).Str("card_id", cardID).Msg("failed to freeze card")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeRailUnavailable, "could not freeze card")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) unfreezeCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")
	if err := h.cards.Unfreeze(r.Context(), cardID); err != nil {
		h.logger.Error().Err(err).Str("card_id", cardID).Msg("failed to unfreeze card")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeRailUnavailable, "could not unfreeze card")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
