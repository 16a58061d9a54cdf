package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPRegistryResolveKeySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dids/did:key:z6Mkabc" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(resolveResponse{Algorithm: "ed25519", PublicKey: "abcd1234"})
	}))
	defer server.Close()

	registry := NewHTTPRegistry(server.URL)
	alg, pubkeyHex, err := registry.ResolveKey("did:key:z6Mkabc")
	if err != nil {
		t.Fatalf("ResolveKey: %v", err)
	}
	if alg != "ed25519" || pubkeyHex != "abcd1234" {
		t.Fatalf("got alg=%q pubkeyHex=%q", alg, pubkeyHex)
	}
}

func TestHTTPRegistryResolveKeyNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	registry := NewHTTPRegistry(server.URL)
	if _, _, err := registry.ResolveKey("did:key:unknown"); err == nil {
		t.Fatal("expected an error for an unregistered did")
	}
}

func TestHTTPRegistryResolveKeyMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resolveResponse{Algorithm: "ed25519"})
	}))
	defer server.Close()

	registry := NewHTTPRegistry(server.URL)
	if _, _, err := registry.ResolveKey("did:key:z6Mkabc"); err == nil {
		t.Fatal("expected an error when pubkey_hex is missing")
	}
}
