package sardis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// circleAttestationClient implements rails/cctp.AttestationClient
// against Circle's public Iris attestation API. No Circle SDK exists
// anywhere in the corpus, so this is a small net/http client rather
// than a wrapped third-party library — the one place in this package
// that falls back to the standard library for lack of an available
// dependency.
type circleAttestationClient struct {
	baseURL string
	client  *http.Client
}

func newCircleAttestationClient() *circleAttestationClient {
	return &circleAttestationClient{
		baseURL: "https://iris-api.circle.com",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type circleAttestationResponse struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation"`
}

// GetAttestation implements cctp.AttestationClient.
func (c *circleAttestationClient) GetAttestation(ctx context.Context, messageHash string) (string, []byte, error) {
	url := fmt.Sprintf("%s/attestations/%s", c.baseURL, messageHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("sardis: circle attestation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "pending_confirmations", nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("sardis: circle attestation returned status %d", resp.StatusCode)
	}

	var body circleAttestationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, fmt.Errorf("sardis: decode circle attestation response: %w", err)
	}
	if body.Status != "complete" {
		return body.Status, nil, nil
	}

	attestation, err := hex.DecodeString(trimHexPrefix(body.Attestation))
	if err != nil {
		return "", nil, fmt.Errorf("sardis: decode attestation hex: %w", err)
	}
	return body.Status, attestation, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
