package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/sardis-ai/payments-core/internal/approval"
	"github.com/sardis-ai/payments-core/internal/auth"
	"github.com/sardis-ai/payments-core/internal/config"
	"github.com/sardis-ai/payments-core/internal/mandate"
	"github.com/sardis-ai/payments-core/internal/webhook"
)

// withURLParam injects a chi route param into a request, mirroring what
// the router would populate for a handler registered with {transactionId}.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func testHandlers() *handlers {
	return &handlers{
		cfg: &config.Config{
			Chains: map[string]config.ChainConfig{
				"base": {Rail: "evm"},
			},
		},
		verifier:      &mandate.Verifier{AllowedDomains: map[string]bool{"merchant.example.com": true}},
		challenges:    mandate.NewMemoryChallengeStore(),
		approvals:     approval.NewMemoryStore(),
		approvalAuth:  auth.NewSignatureVerifier(),
		subscriptions: webhook.NewMemorySubscriptionStore(),
		logger:        zerolog.Nop(),
	}
}

func TestHealth(t *testing.T) {
	h := testHandlers()
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/sardis-health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
}

func TestWellKnownPaymentOptions(t *testing.T) {
	h := testHandlers()
	rec := httptest.NewRecorder()
	h.wellKnownPaymentOptions(rec, httptest.NewRequest(http.MethodGet, "/.well-known/payment-options", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestX402ChallengeThenSubmitRoundTrip(t *testing.T) {
	h := testHandlers()

	body, _ := json.Marshal(createChallengeRequest{Payer: "payer1", Payee: "payee1", Amount: 1000, Network: "base"})
	rec := httptest.NewRecorder()
	h.createX402Challenge(rec, httptest.NewRequest(http.MethodPost, "/payments/x402/challenge", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var challenge mandate.Challenge
	if err := json.NewDecoder(rec.Body).Decode(&challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}

	payload := mandate.Payload{
		PaymentID: challenge.PaymentID,
		Payer:     challenge.Payer,
		Payee:     challenge.Payee,
		Amount:    challenge.Amount,
		Nonce:     challenge.Nonce,
		Network:   challenge.Network,
		Version:   challenge.Version,
	}
	payloadBody, _ := json.Marshal(payload)

	submitRec := httptest.NewRecorder()
	h.submitX402Payload(submitRec, httptest.NewRequest(http.MethodPost, "/payments/x402/submit", bytes.NewReader(payloadBody)))
	if submitRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", submitRec.Code, submitRec.Body.String())
	}

	var resp executeResponse
	if err := json.NewDecoder(submitRec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted {
		t.Errorf("expected payload to be accepted, got reason %q", resp.Reason)
	}

	// Replaying the same payment ID fails: the challenge was consumed.
	replayRec := httptest.NewRecorder()
	h.submitX402Payload(replayRec, httptest.NewRequest(http.MethodPost, "/payments/x402/submit", bytes.NewReader(payloadBody)))
	if replayRec.Code == http.StatusOK {
		var replayResp executeResponse
		json.NewDecoder(replayRec.Body).Decode(&replayResp)
		if replayResp.Accepted {
			t.Error("expected replayed challenge submission to be rejected")
		}
	}
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	h := testHandlers()

	body, _ := json.Marshal(createWebhookSubscriptionRequest{
		TenantID: "tenant1",
		URL:      "https://example.com/hook",
		Events:   []string{"payment.settled"},
	})
	rec := httptest.NewRecorder()
	h.createWebhookSubscription(rec, httptest.NewRequest(http.MethodPost, "/webhooks/subscriptions", bytes.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var sub webhook.Subscription
	if err := json.NewDecoder(rec.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.EndpointID == "" {
		t.Fatal("expected a generated endpoint id")
	}
}

func TestApprovalLifecycle(t *testing.T) {
	h := testHandlers()
	ctx := httptest.NewRequest(http.MethodPost, "/", nil).Context()

	approver := solana.NewWallet().PrivateKey
	approverAddr := approver.PublicKey().String()

	req, err := h.approvals.Request(ctx, "tx1", "agent1", 5000, "large_payment", []string{approverAddr}, 1, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}
	if req.Status != approval.StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	body, _ := json.Marshal(approveRequest{Approver: approverAddr})
	r := httptest.NewRequest(http.MethodPost, "/approvals/tx1/approve", bytes.NewReader(body))
	r = withURLParam(r, "transactionId", "tx1")
	signApprovalRequest(t, r, approver, approvalSignatureMessage("approve", "tx1"))

	rec := httptest.NewRecorder()
	h.approveTransaction(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApprovalRejectsForgedApprover(t *testing.T) {
	h := testHandlers()
	ctx := httptest.NewRequest(http.MethodPost, "/", nil).Context()

	approver := solana.NewWallet().PrivateKey
	approverAddr := approver.PublicKey().String()
	impostor := solana.NewWallet().PrivateKey

	if _, err := h.approvals.Request(ctx, "tx2", "agent1", 5000, "large_payment", []string{approverAddr}, 1, time.Hour, time.Now()); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	// Claims to be approverAddr in the body but signs with a different key.
	body, _ := json.Marshal(approveRequest{Approver: approverAddr})
	r := httptest.NewRequest(http.MethodPost, "/approvals/tx2/approve", bytes.NewReader(body))
	r = withURLParam(r, "transactionId", "tx2")
	signApprovalRequest(t, r, impostor, approvalSignatureMessage("approve", "tx2"))

	rec := httptest.NewRecorder()
	h.approveTransaction(rec, r)
	if rec.Code == http.StatusOK {
		t.Fatal("expected a forged approver signature to be rejected")
	}
}

// signApprovalRequest signs message with key and attaches the
// X-Signature/X-Message/X-Signer headers auth.SignatureVerifier expects.
func signApprovalRequest(t *testing.T, r *http.Request, key solana.PrivateKey, message string) {
	t.Helper()
	sig, err := key.Sign([]byte(message))
	if err != nil {
		t.Fatalf("sign approval request: %v", err)
	}
	r.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(sig[:]))
	r.Header.Set("X-Message", message)
	r.Header.Set("X-Signer", key.PublicKey().String())
}
