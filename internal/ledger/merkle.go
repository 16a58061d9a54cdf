package ledger

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sardis-ai/payments-core/internal/canon"
)

// Direction is which side of a Merkle proof step the sibling hash sits
// on, needed to recompute the parent in the right byte order.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ProofStep is one authentication-path step: the sibling hash and which
// side it sits on relative to the node being proved.
type ProofStep struct {
	Hash      string    `json:"hash"`
	Direction Direction `json:"direction"`
}

// leafHash hashes a single entry's canonical payload using the same
// canonicalization path internal/canon uses for mandate hashing, so the
// ledger's hash chain and Merkle leaves are computed the same way as
// every other content-addressed hash in the system.
func leafHash(e Entry) (string, error) {
	payload, err := canon.Canonicalize(e.canonical())
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func nodeHash(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// merkleTree holds every level of a Merkle tree built over a sequence
// of leaf hashes, level 0 being the leaves themselves, so that
// proofFor can walk back up without recomputing already-hashed nodes.
type merkleTree struct {
	levels [][]string
}

// buildMerkleTree builds a tree over leaves, duplicating the final
// leaf of an odd-sized level so every level after it has complete
// pairs — the standard Merkle-tree odd-leaf convention.
func buildMerkleTree(leaves []string) merkleTree {
	if len(leaves) == 0 {
		return merkleTree{levels: [][]string{{}}}
	}

	levels := [][]string{append([]string(nil), leaves...)}
	for len(levels[len(levels)-1]) > 1 {
		current := levels[len(levels)-1]
		if len(current)%2 == 1 {
			current = append(current, current[len(current)-1])
		}

		var next []string
		for i := 0; i < len(current); i += 2 {
			next = append(next, nodeHash(current[i], current[i+1]))
		}
		levels = append(levels, next)
	}
	return merkleTree{levels: levels}
}

func (t merkleTree) root() string {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return ""
	}
	return top[0]
}

// proofFor returns the authentication path for the leaf at index,
// bottom to top.
func (t merkleTree) proofFor(index int) []ProofStep {
	var proof []ProofStep
	idx := index

	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		isRightNode := idx%2 == 1
		var siblingIdx int
		var direction Direction
		if isRightNode {
			siblingIdx = idx - 1
			direction = DirectionLeft
		} else {
			siblingIdx = idx + 1
			direction = DirectionRight
		}

		if siblingIdx < len(nodes) {
			proof = append(proof, ProofStep{Hash: nodes[siblingIdx], Direction: direction})
		}
		idx /= 2
	}
	return proof
}

// recomputeRoot walks proof from a leaf hash up to a root candidate,
// combining with each sibling in the order its Direction specifies.
func recomputeRoot(leaf string, proof []ProofStep) string {
	current := leaf
	for _, step := range proof {
		if step.Direction == DirectionLeft {
			current = nodeHash(step.Hash, current)
		} else {
			current = nodeHash(current, step.Hash)
		}
	}
	return current
}
