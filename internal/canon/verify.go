package canon

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// Algorithm identifies the signature scheme encoded in a mandate's
// verification_method (spec §4.1: "did#alg:pubkey_hex").
type Algorithm string

const (
	AlgEd25519   Algorithm = "ed25519"
	AlgSecp256k1 Algorithm = "secp256k1"
)

// ErrUnsupportedAlgorithm is returned for a verification_method naming an
// algorithm this build does not implement.
var ErrUnsupportedAlgorithm = errors.New("canon: unsupported signature algorithm")

// ParseVerificationMethod splits "did#alg:pubkey_hex" into its algorithm and
// hex-encoded public key.
func ParseVerificationMethod(method string) (alg Algorithm, pubkeyHex string, err error) {
	_, rest, ok := strings.Cut(method, "#")
	if !ok {
		return "", "", fmt.Errorf("canon: malformed verification_method %q", method)
	}
	algStr, key, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", fmt.Errorf("canon: malformed verification_method %q", method)
	}
	return Algorithm(algStr), key, nil
}

// Verify checks message against signature using the named algorithm and
// hex-encoded public key. It never panics: malformed keys or signatures
// are returned as an error rather than propagating library panics, since
// spec §4.1 limits failure modes to "malformed key, malformed signature,
// cryptographic mismatch".
func Verify(alg Algorithm, pubkeyHex string, message, signature []byte) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("canon: verify panic: %v", r)
		}
	}()

	switch alg {
	case AlgEd25519:
		return verifyEd25519(pubkeyHex, message, signature)
	case AlgSecp256k1:
		return verifySecp256k1(pubkeyHex, message, signature)
	default:
		return false, ErrUnsupportedAlgorithm
	}
}

func verifyEd25519(pubkeyHex string, message, signature []byte) (bool, error) {
	keyBytes, err := decodeKey(pubkeyHex)
	if err != nil {
		return false, fmt.Errorf("canon: malformed ed25519 key: %w", err)
	}
	if len(keyBytes) != solana.PublicKeyLength {
		return false, fmt.Errorf("canon: ed25519 key has wrong length %d", len(keyBytes))
	}
	if len(signature) != 64 {
		return false, fmt.Errorf("canon: malformed ed25519 signature length %d", len(signature))
	}
	var pub solana.PublicKey
	copy(pub[:], keyBytes)
	var sig solana.Signature
	copy(sig[:], signature)
	return sig.Verify(pub, message), nil
}

func verifySecp256k1(pubkeyHex string, message, signature []byte) (bool, error) {
	keyBytes, err := decodeKey(pubkeyHex)
	if err != nil {
		return false, fmt.Errorf("canon: malformed secp256k1 key: %w", err)
	}
	if len(signature) != 65 {
		return false, fmt.Errorf("canon: malformed secp256k1 signature length %d", len(signature))
	}
	digest := ethcrypto.Keccak256(message)
	// Signature[64] is the recovery id; VerifySignature wants the 64-byte
	// r||s form without it.
	ok := ethcrypto.VerifySignature(keyBytes, digest, signature[:64])
	return ok, nil
}

func decodeKey(pubkeyHex string) ([]byte, error) {
	cleaned := strings.TrimPrefix(pubkeyHex, "0x")
	return hex.DecodeString(cleaned)
}
