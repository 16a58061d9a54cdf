package mandate

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sardis-ai/payments-core/internal/canon"
	"github.com/sardis-ai/payments-core/internal/replaycache"
)

// EnvironmentProduction is the SARDIS_ENVIRONMENT value that requires an
// IdentityRegistry to be configured (spec §4.3 step 5).
const EnvironmentProduction = "production"

// reject is a sentinel used internally to short-circuit the ordered
// verification steps with a specific reason code.
type reject struct{ reason string }

func (r reject) Error() string { return r.reason }

func fail(reason string) error { return reject{reason: reason} }

// Verifier implements VerifyChain and VerifyX402 against a shared replay
// cache, allowed-domain set, and (in production) identity registry.
type Verifier struct {
	Replay          replaycache.Cache
	AllowedDomains  map[string]bool
	Registry        IdentityRegistry
	Environment     string
	X402SignatureFn func(payload Payload) (alg canon.Algorithm, pubkeyHex string, err error)
}

// VerifyChain implements the ten ordered steps of spec §4.3. It never
// returns side effects for a rejected chain: step 6 only probes the replay
// cache, and check_and_insert only happens once every step has passed.
func (v *Verifier) VerifyChain(ctx context.Context, intent Intent, cart Cart, payment Payment) (Result, error) {
	now := time.Now()

	if err := v.checkShape(intent, cart, payment); err != nil {
		return reasonResult(err)
	}
	if err := v.checkTypes(intent, cart, payment); err != nil {
		return reasonResult(err)
	}
	if err := v.checkExpiration(now, intent.ExpiresAt, cart.ExpiresAt, payment.ExpiresAt); err != nil {
		return reasonResult(err)
	}
	if err := v.checkDomains(intent.Domain, cart.Domain, payment.Domain); err != nil {
		return reasonResult(err)
	}
	if err := v.checkSignature(intent.Proof, signablePayload(intent)); err != nil {
		return reasonResult(err)
	}
	if err := v.checkSignature(cart.Proof, signablePayload(cart)); err != nil {
		return reasonResult(err)
	}
	if err := v.checkSignature(payment.Proof, signablePayload(payment)); err != nil {
		return reasonResult(err)
	}
	for _, m := range []Envelope{intent.Envelope, cart.Envelope, payment.Envelope} {
		seen, err := v.Replay.Contains(ctx, m.MandateID)
		if err != nil {
			return reasonResult(fmt.Errorf("mandate: replay cache lookup failed for %s: %w", m.MandateID, err))
		}
		if seen {
			return reasonResult(fail("replay_detected"))
		}
	}
	if err := v.checkSubjects(intent, cart, payment); err != nil {
		return reasonResult(err)
	}
	if err := v.checkMerchantBinding(cart, payment); err != nil {
		return reasonResult(err)
	}
	if err := v.checkAmountBinding(cart, payment); err != nil {
		return reasonResult(err)
	}
	if err := v.checkAgentPresence(payment); err != nil {
		return reasonResult(err)
	}
	if err := v.checkReplay(ctx, intent, cart, payment); err != nil {
		return reasonResult(err)
	}

	return Result{Accepted: true, Chain: &Chain{Intent: intent, Cart: cart, Payment: payment}}, nil
}

func reasonResult(err error) (Result, error) {
	var r reject
	if e, ok := err.(reject); ok {
		r = e
		return Result{Accepted: false, Reason: r.reason}, nil
	}
	// A non-reject error is fatal (e.g. identity registry missing in
	// production) and propagates rather than being encoded as a reason.
	return Result{}, err
}

func (v *Verifier) checkShape(intent Intent, cart Cart, payment Payment) error {
	if intent.MandateID == "" || intent.Subject == "" || intent.Proof.ProofValue == "" || intent.Proof.VerificationMethod == "" {
		return fail("invalid_payload")
	}
	if cart.MandateID == "" || cart.Subject == "" || cart.Proof.ProofValue == "" || cart.Proof.VerificationMethod == "" {
		return fail("invalid_payload")
	}
	if payment.MandateID == "" || payment.Subject == "" || payment.Proof.ProofValue == "" || payment.Proof.VerificationMethod == "" {
		return fail("invalid_payload")
	}
	return nil
}

func (v *Verifier) checkTypes(intent Intent, cart Cart, payment Payment) error {
	if intent.Type != TypeIntent {
		return fail("intent_invalid_type")
	}
	if cart.Type != TypeCart {
		return fail("cart_invalid_type")
	}
	if payment.Purpose != "checkout" {
		return fail("payment_invalid_type")
	}
	return nil
}

func (v *Verifier) checkExpiration(now time.Time, times ...time.Time) error {
	for _, t := range times {
		if !t.After(now) {
			return fail("mandate_expired")
		}
	}
	return nil
}

func (v *Verifier) checkDomains(domains ...string) error {
	if len(v.AllowedDomains) == 0 {
		return fail("domain_not_authorized")
	}
	for _, d := range domains {
		if !v.AllowedDomains[d] {
			return fail("domain_not_authorized")
		}
	}
	return nil
}

// checkSignature canonicalizes payload with proof_value cleared and verifies
// the signature named in proof.verification_method.
func (v *Verifier) checkSignature(proof Proof, payload map[string]any) error {
	alg, pubkeyHex, err := canon.ParseVerificationMethod(proof.VerificationMethod)
	if err != nil {
		return fail("signature_malformed")
	}

	if v.Environment == EnvironmentProduction {
		if v.Registry == nil {
			return fmt.Errorf("mandate: production environment requires an identity registry")
		}
		resolvedAlg, resolvedKey, err := v.Registry.ResolveKey(proof.VerificationMethod)
		if err != nil {
			return fail("signature_invalid")
		}
		alg, pubkeyHex = canon.Algorithm(resolvedAlg), resolvedKey
	}

	cleared := canon.WithoutProofValue(payload, "proof")
	message, err := canon.Canonicalize(cleared)
	if err != nil {
		return fail("signature_malformed")
	}

	sig, err := hex.DecodeString(proof.ProofValue)
	if err != nil {
		return fail("signature_malformed")
	}

	ok, err := canon.Verify(alg, pubkeyHex, message, sig)
	if err != nil {
		return fail("signature_malformed")
	}
	if !ok {
		return fail("signature_invalid")
	}
	return nil
}

// checkReplay is fail-closed and all-or-nothing like every other step: it
// probes all three mandate IDs read-only before inserting any of them, so a
// replay on the cart or payment mandate never leaves the intent mandate's ID
// permanently recorded for a chain that was ultimately rejected.
func (v *Verifier) checkReplay(ctx context.Context, intent Intent, cart Cart, payment Payment) error {
	envelopes := []Envelope{intent.Envelope, cart.Envelope, payment.Envelope}

	for _, m := range envelopes {
		seen, err := v.Replay.Contains(ctx, m.MandateID)
		if err != nil {
			return fmt.Errorf("mandate: replay cache lookup failed for %s: %w", m.MandateID, err)
		}
		if seen {
			return fail("replay_detected")
		}
	}

	for _, m := range envelopes {
		outcome, err := v.Replay.CheckAndInsert(ctx, m.MandateID, m.ExpiresAt)
		if err != nil {
			return fmt.Errorf("mandate: replay cache insert failed for %s: %w", m.MandateID, err)
		}
		if outcome == replaycache.Replay {
			return fail("replay_detected")
		}
	}
	return nil
}

func (v *Verifier) checkSubjects(intent Intent, cart Cart, payment Payment) error {
	if intent.Subject != cart.Subject || cart.Subject != payment.Subject {
		return fail("subject_mismatch")
	}
	return nil
}

func (v *Verifier) checkMerchantBinding(cart Cart, payment Payment) error {
	if payment.MerchantDomain == "" {
		return fail("payment_missing_merchant_domain")
	}
	if payment.MerchantDomain != cart.MerchantDomain {
		return fail("merchant_domain_mismatch")
	}
	return nil
}

func (v *Verifier) checkAmountBinding(cart Cart, payment Payment) error {
	if payment.AmountMinor > cart.SubtotalMinor+cart.TaxesMinor {
		return fail("payment_exceeds_cart_total")
	}
	return nil
}

func (v *Verifier) checkAgentPresence(payment Payment) error {
	if !payment.AIAgentPresence {
		return fail("payment_agent_presence_required")
	}
	switch payment.TransactionModality {
	case ModalityHumanPresent, ModalityHumanNotPresent:
	default:
		return fail("payment_invalid_modality")
	}
	return nil
}

// signablePayload round-trips m through JSON into a generic map so
// checkSignature can clear proof_value before canonicalizing.
func signablePayload(m any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// VerifyX402 implements the x402 challenge/payload check (spec §4.3,
// "x402 variant").
func (v *Verifier) VerifyX402(ctx context.Context, challenge Challenge, payload Payload) (Result, error) {
	if !SupportedX402Versions[payload.Version] {
		return Result{Accepted: false, Reason: "x402_version_unsupported"}, nil
	}
	if !time.Now().Before(challenge.ExpiresAt) {
		return Result{Accepted: false, Reason: "x402_challenge_expired"}, nil
	}
	if payload.PaymentID != challenge.PaymentID {
		return Result{Accepted: false, Reason: "x402_payment_id_mismatch"}, nil
	}
	if payload.Nonce != challenge.Nonce {
		return Result{Accepted: false, Reason: "x402_nonce_mismatch"}, nil
	}
	if payload.Amount != challenge.Amount {
		return Result{Accepted: false, Reason: "x402_amount_mismatch"}, nil
	}

	if v.X402SignatureFn != nil {
		alg, pubkeyHex, err := v.X402SignatureFn(payload)
		if err != nil {
			return Result{Accepted: false, Reason: "x402_signature_invalid"}, nil
		}
		message := []byte(fmt.Sprintf("%s|%s|%d|%s|%s|%s",
			payload.PaymentID, payload.Payer, payload.Amount, payload.Nonce, payload.Payee, payload.Network))
		sig, err := hex.DecodeString(payload.Signature)
		if err != nil {
			return Result{Accepted: false, Reason: "x402_signature_invalid"}, nil
		}
		ok, err := canon.Verify(alg, pubkeyHex, message, sig)
		if err != nil || !ok {
			return Result{Accepted: false, Reason: "x402_signature_invalid"}, nil
		}
	}

	return Result{Accepted: true}, nil
}
