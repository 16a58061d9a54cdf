package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sardis-ai/payments-core/internal/approval"
	apierrors "github.com/sardis-ai/payments-core/internal/errors"
)

type approveRequest struct {
	Approver string `json:"approver"`
}

type rejectRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}

// approvalResponse mirrors an approval.Request for the wire.
type approvalResponse struct {
	RequestID     string   `json:"request_id"`
	TransactionID string   `json:"transaction_id"`
	AgentID       string   `json:"agent_id"`
	AmountMinor   int64    `json:"amount_minor"`
	Status        string   `json:"status"`
	Approvers     []string `json:"approvers"`
	ExpiresAt     string   `json:"expires_at"`
}

func toApprovalResponse(req approval.Request) approvalResponse {
	return approvalResponse{
		RequestID:     req.RequestID,
		TransactionID: req.TransactionID,
		AgentID:       req.AgentID,
		AmountMinor:   req.AmountMinor,
		Status:        string(req.Status),
		Approvers:     req.Approvers,
		ExpiresAt:     req.ExpiresAt.Format(time.RFC3339),
	}
}

func (h *handlers) getApproval(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	req, err := h.approvals.Get(r.Context(), transactionID)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalResponse(req))
}

// approvalSignatureMessage is the fixed message an approver's wallet
// must sign over, binding the signature to one transaction and action
// so it can't be replayed against a different approval request.
func approvalSignatureMessage(action, transactionID string) string {
	return action + ":" + transactionID
}

func (h *handlers) approveTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")

	var body approveRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}
	if body.Approver == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "approver is required")
		return
	}
	if err := h.approvalAuth.VerifyUserRequest(r, []string{body.Approver}, approvalSignatureMessage("approve", transactionID)); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeApproverNotListed, "approver signature invalid")
		return
	}

	quorumReached, err := h.approvals.Approve(r.Context(), transactionID, body.Approver, time.Now())
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"quorum_reached": quorumReached})
}

func (h *handlers) rejectTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")

	var body rejectRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "malformed request body")
		return
	}
	if body.Approver == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "approver is required")
		return
	}
	if err := h.approvalAuth.VerifyUserRequest(r, []string{body.Approver}, approvalSignatureMessage("reject", transactionID)); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeApproverNotListed, "approver signature invalid")
		return
	}

	if err := h.approvals.Reject(r.Context(), transactionID, body.Approver, body.Reason, time.Now()); err != nil {
		writeApprovalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "rejected"})
}

func writeApprovalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeApprovalNotFound, "approval request not found")
	case errors.Is(err, approval.ErrExpired):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeApprovalExpired, "approval request has expired")
	case errors.Is(err, approval.ErrNotPending):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeApprovalNotPending, "approval request is no longer pending")
	case errors.Is(err, approval.ErrUnauthorized):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeApproverNotListed, "approver is not on the approver list")
	default:
		apierrors.WriteSimpleError(w, apierrors.ErrCodeResourceNotFound, "approval action failed")
	}
}
