// Package mandate implements the AP2 mandate-chain verifier and the x402
// challenge/payload variant (spec §4.3). Both verifiers are fail-closed: the
// caller receives accepted=false plus a specific reason code, never a partial
// success.
package mandate

import "time"

// Type distinguishes the three mandate roles in a chain.
type Type string

const (
	TypeIntent  Type = "intent"
	TypeCart    Type = "cart"
	TypePayment Type = "payment"
)

// Modality is how the human was present for a payment mandate.
type Modality string

const (
	ModalityHumanPresent    Modality = "human_present"
	ModalityHumanNotPresent Modality = "human_not_present"
)

// Proof is the signature envelope attached to every mandate.
type Proof struct {
	VerificationMethod string    `json:"verification_method"`
	Created            time.Time `json:"created"`
	ProofValue         string    `json:"proof_value"`
	ProofPurpose       string    `json:"proof_purpose"`
}

// Envelope carries the fields every mandate type shares.
type Envelope struct {
	MandateID string    `json:"mandate_id"`
	Issuer    string    `json:"issuer"`
	Subject   string    `json:"subject"`
	Domain    string    `json:"domain"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
	Proof     Proof     `json:"proof"`
}

// Intent is the first mandate in a chain: what the agent wants to buy.
type Intent struct {
	Envelope
	Type            Type   `json:"type"`
	RequestedAmount int64  `json:"requested_amount"`
	MerchantDomain  string `json:"merchant_domain"`
	Scope           string `json:"scope"`
}

// LineItem is one priced entry on a cart.
type LineItem struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price_minor"`
}

// Cart is the second mandate: the priced contents of the purchase.
type Cart struct {
	Envelope
	Type           Type       `json:"type"`
	LineItems      []LineItem `json:"line_items"`
	SubtotalMinor  int64      `json:"subtotal_minor"`
	TaxesMinor     int64      `json:"taxes_minor"`
	Currency       string     `json:"currency"`
	MerchantDomain string     `json:"merchant_domain"`
}

// Payment is the third mandate: authorization to move funds.
type Payment struct {
	Envelope
	Purpose             string   `json:"purpose"` // must equal "checkout"
	AmountMinor         int64    `json:"amount_minor"`
	Token               string   `json:"token"`
	Chain               string   `json:"chain"`
	Destination         string   `json:"destination"`
	AuditHash           string   `json:"audit_hash"`
	AIAgentPresence     bool     `json:"ai_agent_presence"`
	TransactionModality Modality `json:"transaction_modality"`
	MerchantDomain      string   `json:"merchant_domain"`
}

// Chain is a verified (intent, cart, payment) triple.
type Chain struct {
	Intent  Intent
	Cart    Cart
	Payment Payment
}

// Result is the outcome of a verification call.
type Result struct {
	Accepted bool
	Reason   string
	Chain    *Chain
}

// IdentityRegistry resolves a mandate's verification_method to the
// algorithm and public key that should have signed it. Production
// deployments (SARDIS_ENVIRONMENT=production) must supply one; its own
// storage and key-distribution mechanics are out of scope here.
type IdentityRegistry interface {
	ResolveKey(did string) (alg, pubkeyHex string, err error)
}

// x402 types.

// Challenge is the server-issued 402 challenge.
type Challenge struct {
	PaymentID string    `json:"payment_id"`
	Payer     string    `json:"payer"`
	Payee     string    `json:"payee"`
	Amount    int64     `json:"amount"`
	Nonce     string    `json:"nonce"`
	Network   string    `json:"network"`
	Version   string    `json:"version"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Payload is the client-submitted response to a Challenge.
type Payload struct {
	PaymentID string `json:"payment_id"`
	Payer     string `json:"payer"`
	Payee     string `json:"payee"`
	Amount    int64  `json:"amount"`
	Nonce     string `json:"nonce"`
	Network   string `json:"network"`
	Version   string `json:"version"`
	Signature string `json:"signature,omitempty"`
}

// SupportedX402Versions lists the protocol versions this verifier accepts.
var SupportedX402Versions = map[string]bool{
	"1.0": true,
	"2.0": true,
}
