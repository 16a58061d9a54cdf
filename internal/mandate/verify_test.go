package mandate

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/sardis-ai/payments-core/internal/canon"
	"github.com/sardis-ai/payments-core/internal/replaycache"
)

type fixture struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return fixture{pub: pub, priv: priv}
}

func (f fixture) verificationMethod() string {
	return "did:sardis:agent-001#ed25519:" + hex.EncodeToString(f.pub)
}

func (f fixture) sign(t *testing.T, m any) string {
	t.Helper()
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cleared := canon.WithoutProofValue(generic, "proof")
	message, err := canon.Canonicalize(cleared)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	sig := ed25519.Sign(f.priv, message)
	return hex.EncodeToString(sig)
}

func buildChain(t *testing.T, f fixture, now time.Time) (Intent, Cart, Payment) {
	t.Helper()
	expires := now.Add(time.Hour)

	intent := Intent{
		Envelope: Envelope{
			MandateID: "intent-1",
			Subject:   "agent-001",
			Domain:    "merchant.example",
			ExpiresAt: expires,
			Proof: Proof{
				VerificationMethod: f.verificationMethod(),
				ProofPurpose:       "assertionMethod",
			},
		},
		Type:           TypeIntent,
		MerchantDomain: "merchant.example",
	}
	intent.Proof.ProofValue = f.sign(t, intent)

	cart := Cart{
		Envelope: Envelope{
			MandateID: "cart-1",
			Subject:   "agent-001",
			Domain:    "merchant.example",
			ExpiresAt: expires,
			Proof: Proof{
				VerificationMethod: f.verificationMethod(),
				ProofPurpose:       "assertionMethod",
			},
		},
		Type:           TypeCart,
		SubtotalMinor:  1000,
		TaxesMinor:     100,
		Currency:       "USD",
		MerchantDomain: "merchant.example",
	}
	cart.Proof.ProofValue = f.sign(t, cart)

	payment := Payment{
		Envelope: Envelope{
			MandateID: "payment-1",
			Subject:   "agent-001",
			Domain:    "merchant.example",
			ExpiresAt: expires,
			Proof: Proof{
				VerificationMethod: f.verificationMethod(),
				ProofPurpose:       "assertionMethod",
			},
		},
		Purpose:             "checkout",
		AmountMinor:         1100,
		MerchantDomain:      "merchant.example",
		AIAgentPresence:     true,
		TransactionModality: ModalityHumanNotPresent,
	}
	payment.Proof.ProofValue = f.sign(t, payment)

	return intent, cart, payment
}

func newVerifier() *Verifier {
	return &Verifier{
		Replay:         replaycache.NewMemoryCache(1000, time.Hour),
		AllowedDomains: map[string]bool{"merchant.example": true},
	}
}

func TestVerifyChainAccepts(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	v := newVerifier()
	defer v.Replay.Stop()

	result, err := v.VerifyChain(context.Background(), intent, cart, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected accepted chain, got reason %q", result.Reason)
	}
}

func TestVerifyChainRejectsReplay(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	v := newVerifier()
	defer v.Replay.Stop()
	ctx := context.Background()

	if _, err := v.VerifyChain(ctx, intent, cart, payment); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	result, err := v.VerifyChain(ctx, intent, cart, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted || result.Reason != "replay_detected" {
		t.Fatalf("expected replay_detected, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}
}

func TestVerifyChainPartialReplayInsertsNothing(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	v := newVerifier()
	defer v.Replay.Stop()
	ctx := context.Background()

	// Pre-record only the cart mandate, simulating a bundle that reuses a
	// cart ID from an earlier chain while intent and payment are fresh.
	if _, err := v.Replay.CheckAndInsert(ctx, cart.Envelope.MandateID, cart.Envelope.ExpiresAt); err != nil {
		t.Fatalf("seed cart replay: %v", err)
	}

	result, err := v.VerifyChain(ctx, intent, cart, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted || result.Reason != "replay_detected" {
		t.Fatalf("expected replay_detected, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}

	seen, err := v.Replay.Contains(ctx, intent.Envelope.MandateID)
	if err != nil {
		t.Fatalf("Contains(intent): %v", err)
	}
	if seen {
		t.Fatal("intent mandate ID must not be recorded when the chain is rejected for a sibling mandate's replay")
	}

	seen, err = v.Replay.Contains(ctx, payment.Envelope.MandateID)
	if err != nil {
		t.Fatalf("Contains(payment): %v", err)
	}
	if seen {
		t.Fatal("payment mandate ID must not be recorded when the chain is rejected for a sibling mandate's replay")
	}
}

func TestVerifyChainRejectsExpired(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	intent.ExpiresAt = now.Add(-time.Minute)
	v := newVerifier()
	defer v.Replay.Stop()

	result, err := v.VerifyChain(context.Background(), intent, cart, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted || result.Reason != "mandate_expired" {
		t.Fatalf("expected mandate_expired, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}
}

func TestVerifyChainRejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	payment.AmountMinor = 999999 // invalidates the signed payload without re-signing
	v := newVerifier()
	defer v.Replay.Stop()

	result, err := v.VerifyChain(context.Background(), intent, cart, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted || result.Reason != "signature_invalid" {
		t.Fatalf("expected signature_invalid, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}
}

func TestVerifyChainRejectsDomainNotAuthorized(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	v := newVerifier()
	defer v.Replay.Stop()
	v.AllowedDomains = map[string]bool{"other.example": true}

	result, err := v.VerifyChain(context.Background(), intent, cart, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted || result.Reason != "domain_not_authorized" {
		t.Fatalf("expected domain_not_authorized, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}
}

func TestVerifyChainRejectsAmountExceedsCartTotal(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	payment.AmountMinor = cart.SubtotalMinor + cart.TaxesMinor + 1
	payment.Proof.ProofValue = f.sign(t, payment)
	v := newVerifier()
	defer v.Replay.Stop()

	result, err := v.VerifyChain(context.Background(), intent, cart, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted || result.Reason != "payment_exceeds_cart_total" {
		t.Fatalf("expected payment_exceeds_cart_total, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}
}

func TestVerifyChainProductionRequiresRegistry(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	intent, cart, payment := buildChain(t, f, now)
	v := newVerifier()
	defer v.Replay.Stop()
	v.Environment = EnvironmentProduction

	_, err := v.VerifyChain(context.Background(), intent, cart, payment)
	if err == nil {
		t.Fatal("expected a fatal error when production environment has no identity registry")
	}
}

func TestVerifyX402AcceptsMatchingPayload(t *testing.T) {
	now := time.Now()
	challenge := Challenge{
		PaymentID: "pay-1",
		Nonce:     "nonce-1",
		Amount:    500,
		Version:   "2.0",
		ExpiresAt: now.Add(time.Minute),
	}
	payload := Payload{
		PaymentID: "pay-1",
		Nonce:     "nonce-1",
		Amount:    500,
		Version:   "2.0",
	}
	v := &Verifier{}
	result, err := v.VerifyX402(context.Background(), challenge, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected accepted, got reason %q", result.Reason)
	}
}

func TestVerifyX402RejectsExpiredChallenge(t *testing.T) {
	now := time.Now()
	challenge := Challenge{
		PaymentID: "pay-1",
		Version:   "2.0",
		ExpiresAt: now.Add(-time.Second),
	}
	payload := Payload{PaymentID: "pay-1", Version: "2.0"}
	v := &Verifier{}
	result, _ := v.VerifyX402(context.Background(), challenge, payload)
	if result.Accepted || result.Reason != "x402_challenge_expired" {
		t.Fatalf("expected x402_challenge_expired, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}
}

func TestVerifyX402RejectsUnsupportedVersion(t *testing.T) {
	now := time.Now()
	challenge := Challenge{PaymentID: "pay-1", Version: "3.0", ExpiresAt: now.Add(time.Minute)}
	payload := Payload{PaymentID: "pay-1", Version: "3.0"}
	v := &Verifier{}
	result, _ := v.VerifyX402(context.Background(), challenge, payload)
	if result.Accepted || result.Reason != "x402_version_unsupported" {
		t.Fatalf("expected x402_version_unsupported, got accepted=%v reason=%q", result.Accepted, result.Reason)
	}
}
