package httpserver

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptime_seconds"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		UptimeSec: int64(time.Since(serverStartTime).Seconds()),
	})
}

// wellKnownPaymentOptions advertises the rails and mandate flows this
// deployment accepts, so an agent can discover how to pay before
// constructing a mandate chain.
func (h *handlers) wellKnownPaymentOptions(w http.ResponseWriter, r *http.Request) {
	chains := make([]map[string]string, 0, len(h.cfg.Chains))
	for name, chain := range h.cfg.Chains {
		chains = append(chains, map[string]string{"chain": name, "rail": chain.Rail})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ap2_mandate_chain": true,
		"x402":              true,
		"x402_versions":     []string{"1.0", "2.0"},
		"chains":            chains,
	})
}

// agentCard serves the AP2 agent discovery document (equivalent to an
// A2A agent card), describing this server as a merchant payment
// settlement endpoint.
func (h *handlers) agentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "sardis-payments-core",
		"description": "AP2/x402 agent-payments orchestration core",
		"capabilities": map[string]bool{
			"mandate_chain_settlement": true,
			"x402_challenge_flow":      true,
			"webhooks":                 true,
		},
	})
}

func (h *handlers) openAPISpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.0",
		"info": map[string]string{
			"title":   "Sardis Payments Core",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/payments/execute":        map[string]string{"post": "Submit a verified AP2 mandate chain for settlement"},
			"/payments/x402/challenge": map[string]string{"post": "Issue an x402 payment challenge"},
			"/payments/x402/submit":    map[string]string{"post": "Submit a signed x402 payload"},
		},
	})
}
