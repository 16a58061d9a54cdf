// Package ledger implements the append-only audit ledger and Merkle
// anchoring of spec.md §4.12: every settlement produces an Entry keyed
// by a unique TxID, chained to the previous entry by an AuditAnchor
// hash, periodically batched into a Merkle tree whose root is submitted
// on-chain for independent verification.
package ledger

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrDuplicateTxID is returned by Store.Append when tx_id already exists.
var ErrDuplicateTxID = errors.New("ledger: duplicate tx_id")

// ErrNotFound is returned when an entry or anchor lookup fails.
var ErrNotFound = errors.New("ledger: not found")

// Entry is one append-only ledger row.
type Entry struct {
	EntryID     string          `json:"entry_id"`
	TxID        string          `json:"tx_id"`
	WalletID    string          `json:"wallet_id"`
	AgentID     string          `json:"agent_id"`
	AmountMinor int64           `json:"amount_minor"`
	Token       string          `json:"token"`
	Chain       string          `json:"chain"`
	Rail        string          `json:"rail"`
	Data        json.RawMessage `json:"data,omitempty"`
	PriorHash   string          `json:"prior_hash"`
	AuditAnchor string          `json:"audit_anchor"`
	Sequence    int64           `json:"sequence"`
	AnchorID    string          `json:"anchor_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// canonicalPayload is the subset of Entry hashed into AuditAnchor and
// into Merkle leaves — excludes AuditAnchor/AnchorID themselves (which
// are computed from this payload, not part of it) and CreatedAt (whose
// wall-clock jitter would make the hash chain non-reproducible across
// replays in tests).
type canonicalPayload struct {
	EntryID     string          `json:"entry_id"`
	TxID        string          `json:"tx_id"`
	WalletID    string          `json:"wallet_id"`
	AgentID     string          `json:"agent_id"`
	AmountMinor int64           `json:"amount_minor"`
	Token       string          `json:"token"`
	Chain       string          `json:"chain"`
	Rail        string          `json:"rail"`
	Data        json.RawMessage `json:"data,omitempty"`
	PriorHash   string          `json:"prior_hash"`
	Sequence    int64           `json:"sequence"`
}

func (e Entry) canonical() canonicalPayload {
	return canonicalPayload{
		EntryID:     e.EntryID,
		TxID:        e.TxID,
		WalletID:    e.WalletID,
		AgentID:     e.AgentID,
		AmountMinor: e.AmountMinor,
		Token:       e.Token,
		Chain:       e.Chain,
		Rail:        e.Rail,
		Data:        e.Data,
		PriorHash:   e.PriorHash,
		Sequence:    e.Sequence,
	}
}

// Anchor is one Merkle-root submission covering a contiguous range of
// unanchored entries.
type Anchor struct {
	AnchorID        string    `json:"anchor_id"`
	MerkleRoot      string    `json:"merkle_root"`
	EntryCount      int       `json:"entry_count"`
	FirstEntryID    string    `json:"first_entry_id"`
	LastEntryID     string    `json:"last_entry_id"`
	Chain           string    `json:"chain"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	BlockNumber     int64     `json:"block_number,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ConfirmedAt     time.Time `json:"confirmed_at,omitempty"`
}
