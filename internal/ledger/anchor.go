package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChainSubmitter posts a Merkle root on-chain and reports where it
// landed. Satisfied by a rail adapter's Submit path (spec.md §4.12:
// "submits the root to a configured chain"); kept as a narrow interface
// here rather than importing a rail package directly, so ledger has no
// dependency on which chain anchoring actually uses.
type ChainSubmitter interface {
	SubmitRoot(ctx context.Context, chain, merkleRoot string) (transactionHash string, blockNumber int64, err error)
}

// Anchoring periodically batches unanchored entries into a Merkle tree
// and submits the root on-chain, per spec.md §4.12.
type Anchoring struct {
	Store      Store
	Submitter  ChainSubmitter
	Chain      string
	BatchLimit int
}

func NewAnchoring(store Store, submitter ChainSubmitter, chain string) *Anchoring {
	return &Anchoring{Store: store, Submitter: submitter, Chain: chain, BatchLimit: 10000}
}

// RunOnce collects unanchored entries, builds a Merkle tree, records the
// Anchor, submits the root, and marks every covered entry anchored. It
// is a no-op returning a zero Anchor if there is nothing unanchored.
func (a *Anchoring) RunOnce(ctx context.Context) (Anchor, error) {
	entries, err := a.Store.Unanchored(ctx, a.BatchLimit)
	if err != nil {
		return Anchor{}, fmt.Errorf("ledger: list unanchored entries: %w", err)
	}
	if len(entries) == 0 {
		return Anchor{}, nil
	}

	leaves := make([]string, len(entries))
	for i, e := range entries {
		hash, err := leafHash(e)
		if err != nil {
			return Anchor{}, fmt.Errorf("ledger: hash entry %s: %w", e.EntryID, err)
		}
		leaves[i] = hash
	}

	tree := buildMerkleTree(leaves)
	root := tree.root()

	anchor := Anchor{
		AnchorID:     uuid.NewString(),
		MerkleRoot:   root,
		EntryCount:   len(entries),
		FirstEntryID: entries[0].EntryID,
		LastEntryID:  entries[len(entries)-1].EntryID,
		Chain:        a.Chain,
		CreatedAt:    time.Now(),
	}
	if err := a.Store.SaveAnchor(ctx, anchor); err != nil {
		return Anchor{}, fmt.Errorf("ledger: save anchor: %w", err)
	}
	if err := a.Store.MarkAnchored(ctx, anchor.AnchorID, entries[0].Sequence, entries[len(entries)-1].Sequence); err != nil {
		return Anchor{}, fmt.Errorf("ledger: mark entries anchored: %w", err)
	}

	if a.Submitter != nil {
		txHash, blockNumber, err := a.Submitter.SubmitRoot(ctx, a.Chain, root)
		if err != nil {
			return anchor, fmt.Errorf("ledger: submit root: %w", err)
		}
		anchor.TransactionHash = txHash
		anchor.BlockNumber = blockNumber
		anchor.ConfirmedAt = time.Now()
		if err := a.Store.SaveAnchor(ctx, anchor); err != nil {
			return anchor, fmt.Errorf("ledger: save confirmed anchor: %w", err)
		}
	}

	return anchor, nil
}

// VerifyEntry rebuilds entry's leaf hash and walks proof to recompute a
// root, comparing it against anchorID's stored Merkle root.
func VerifyEntry(ctx context.Context, store Store, entry Entry, anchorID string) (bool, error) {
	anchor, err := store.GetAnchor(ctx, anchorID)
	if err != nil {
		return false, err
	}

	proof, err := GetProofForEntry(ctx, store, entry.EntryID)
	if err != nil {
		return false, err
	}

	leaf, err := leafHash(entry)
	if err != nil {
		return false, err
	}

	return recomputeRoot(leaf, proof) == anchor.MerkleRoot, nil
}

// VerifyAnchor re-derives anchorID's Merkle root from its covered
// entries and compares it against the stored root — a self-check that
// the stored root matches what the covered entries actually hash to,
// independent of any single entry's proof path.
func VerifyAnchor(ctx context.Context, store Store, anchorID string) (bool, error) {
	anchor, err := store.GetAnchor(ctx, anchorID)
	if err != nil {
		return false, err
	}

	entries, err := store.EntriesForAnchor(ctx, anchorID)
	if err != nil {
		return false, err
	}

	leaves := make([]string, len(entries))
	for i, e := range entries {
		hash, err := leafHash(e)
		if err != nil {
			return false, err
		}
		leaves[i] = hash
	}

	return buildMerkleTree(leaves).root() == anchor.MerkleRoot, nil
}

// GetProofForEntry returns the Merkle authentication path proving
// entryID's membership in its anchor's tree.
func GetProofForEntry(ctx context.Context, store Store, entryID string) ([]ProofStep, error) {
	entry, err := store.GetByEntryID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.AnchorID == "" {
		return nil, fmt.Errorf("ledger: entry %s is not yet anchored", entryID)
	}

	entries, err := store.EntriesForAnchor(ctx, entry.AnchorID)
	if err != nil {
		return nil, err
	}

	leaves := make([]string, len(entries))
	index := -1
	for i, e := range entries {
		hash, err := leafHash(e)
		if err != nil {
			return nil, err
		}
		leaves[i] = hash
		if e.EntryID == entryID {
			index = i
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("ledger: entry %s not found among its anchor's entries", entryID)
	}

	return buildMerkleTree(leaves).proofFor(index), nil
}
