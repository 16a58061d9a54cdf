// Package identity implements mandate.IdentityRegistry (spec §4.3 step
// 5: production deployments resolve a mandate's verification_method
// DID to its signing algorithm and public key via an external registry
// rather than trusting a key embedded in the mandate itself).
//
// No DID-resolution SDK exists anywhere in the corpus, so this is a
// small net/http client rather than a wrapped third-party library — the
// same stdlib-for-lack-of-a-library justification as
// pkg/sardis/circle_attestation.go.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPRegistry resolves verification_method DIDs against an external
// identity registry service over HTTP.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistry builds a registry client against baseURL, the same
// endpoint config.MandateConfig.IdentityRegistryURL names.
func NewHTTPRegistry(baseURL string) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type resolveResponse struct {
	Algorithm string `json:"alg"`
	PublicKey string `json:"pubkey_hex"`
}

// ResolveKey implements mandate.IdentityRegistry.
func (r *HTTPRegistry) ResolveKey(did string) (alg, pubkeyHex string, err error) {
	endpoint := fmt.Sprintf("%s/dids/%s", r.baseURL, url.PathEscape(did))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("identity: resolve %s: %w", did, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", "", fmt.Errorf("identity: did %s not found in registry", did)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("identity: registry returned status %d for %s", resp.StatusCode, did)
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("identity: decode registry response for %s: %w", did, err)
	}
	if body.Algorithm == "" || body.PublicKey == "" {
		return "", "", fmt.Errorf("identity: registry response for %s missing alg or pubkey_hex", did)
	}
	return body.Algorithm, body.PublicKey, nil
}
