// Package canon implements deterministic JSON canonicalization and the
// hashing/signature primitives mandates are verified against (spec §4.1).
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize produces a deterministic JSON encoding of v: object keys are
// sorted lexicographically, there is no insignificant whitespace, and
// numeric forms are preserved exactly as json.Marshal would emit them.
//
// v is first round-tripped through json.Marshal/Unmarshal into a generic
// map[string]any/[]any/scalar tree so struct field order never leaks into
// the encoding, then re-serialized with keys sorted at every level.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canon: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case json.Number:
		buf.WriteString(val.String())

	default:
		// string, bool, nil
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	}
	return nil
}

// HashSHA256 hashes canonical bytes. SHA-256 is the literal primitive named
// by spec §4.1 ("hash_sha256") — stdlib crypto/sha256 is used directly since
// no ecosystem library redefines or improves on SHA-256 itself.
func HashSHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// HashObject canonicalizes then hashes v in one step.
func HashObject(v any) ([32]byte, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return [32]byte{}, err
	}
	return HashSHA256(b), nil
}

// WithoutProofValue returns a shallow copy of a map with "proofValue"
// cleared, used before hashing a mandate for signature verification
// (the proof value itself cannot be part of the signed payload).
func WithoutProofValue(m map[string]any, proofPath ...string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	if len(proofPath) == 0 {
		return out
	}
	// Only a single level of nesting (proof.proofValue) is needed for
	// mandate envelopes.
	if len(proofPath) == 1 {
		if nested, ok := out[proofPath[0]].(map[string]any); ok {
			clone := make(map[string]any, len(nested))
			for k, v := range nested {
				clone[k] = v
			}
			clone["proofValue"] = ""
			out[proofPath[0]] = clone
		}
	}
	return out
}
