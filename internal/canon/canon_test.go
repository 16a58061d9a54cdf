package canon

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}
	out, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"a":2,"b":1,"c":{"y":2,"z":1}}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}

func TestCanonicalizeDeterministic(t *testing.T) {
	a := map[string]any{"x": 1, "y": 2}
	b := map[string]any{"y": 2, "x": 1}
	outA, _ := Canonicalize(a)
	outB, _ := Canonicalize(b)
	if string(outA) != string(outB) {
		t.Fatalf("canonical forms diverged: %s vs %s", outA, outB)
	}
}

func TestParseVerificationMethod(t *testing.T) {
	alg, key, err := ParseVerificationMethod("did:sardis:agent-001#ed25519:abcd")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if alg != AlgEd25519 || key != "abcd" {
		t.Fatalf("got alg=%s key=%s", alg, key)
	}
}

func TestVerifyEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("hello sardis")
	sig := ed25519.Sign(priv, msg)

	ok, err := Verify(AlgEd25519, hex.EncodeToString(pub), msg, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected valid signature to verify")
	}

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0xFF
	ok, err = Verify(AlgEd25519, hex.EncodeToString(pub), tampered, sig)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if ok {
		t.Fatal("expected tampered message to fail verification")
	}
}

func TestVerifyMalformedKey(t *testing.T) {
	_, err := Verify(AlgEd25519, "not-hex", []byte("m"), make([]byte, 64))
	if err == nil {
		t.Fatal("expected error for malformed key")
	}
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	_, err := Verify("bogus", "00", []byte("m"), []byte("s"))
	if err != ErrUnsupportedAlgorithm {
		t.Fatalf("got %v want ErrUnsupportedAlgorithm", err)
	}
}
