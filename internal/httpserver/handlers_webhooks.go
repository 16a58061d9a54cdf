package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/sardis-ai/payments-core/internal/errors"
	"github.com/sardis-ai/payments-core/internal/webhook"
)

type createWebhookSubscriptionRequest struct {
	TenantID string   `json:"tenant_id"`
	URL      string   `json:"url"`
	Secret   string   `json:"secret"`
	Events   []string `json:"events"`
}

func (h *handlers) createWebhookSubscription(w http.ResponseWriter, r *http.Request) {
	var req createWebhookSubscriptionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}
	if req.TenantID == "" || req.URL == "" || len(req.Events) == 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "tenant_id, url, and at least one event are required")
		return
	}

	sub := webhook.Subscription{
		EndpointID: uuid.NewString(),
		TenantID:   req.TenantID,
		URL:        req.URL,
		Secret:     req.Secret,
		Events:     req.Events,
		Enabled:    true,
		CreatedAt:  time.Now(),
	}

	if err := h.subscriptions.Save(r.Context(), sub); err != nil {
		h.logger.Error().Err(err).Msg("failed to save webhook subscription")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError, "could not save subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

func (h *handlers) getWebhookSubscription(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpointId")
	sub, err := h.subscriptions.Get(r.Context(), endpointID)
	if err != nil {
		if errors.Is(err, webhook.ErrSubscriptionNotFound) {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeResourceNotFound, "subscription not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to load webhook subscription")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError, "could not load subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *handlers) deleteWebhookSubscription(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpointId")
	if err := h.subscriptions.Delete(r.Context(), endpointID); err != nil {
		if errors.Is(err, webhook.ErrSubscriptionNotFound) {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeResourceNotFound, "subscription not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to delete webhook subscription")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError, "could not delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
