package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()
	defer clearEnv()

	// Mandate.allowed_domains is required; a bare Load("") fails.
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when required fields are missing, got nil")
	}
}

func TestLoadConfig_ValidMinimal(t *testing.T) {
	clearEnv()
	os.Setenv("SARDIS_MANDATE_ALLOWED_DOMAINS", "merchant.example.com")
	defer clearEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error with valid config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config, got nil")
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Settlement.LockTTL.Duration != 30*time.Second {
		t.Errorf("expected default lock TTL 30s, got %v", cfg.Settlement.LockTTL.Duration)
	}
	if cfg.Settlement.IdempotencyTTL.Duration != 24*time.Hour {
		t.Errorf("expected default idempotency TTL 24h, got %v", cfg.Settlement.IdempotencyTTL.Duration)
	}
	if cfg.Mandate.Environment != "staging" {
		t.Errorf("expected default mandate environment 'staging', got %s", cfg.Mandate.Environment)
	}
}

func TestLoadConfig_ProductionRequiresIdentityRegistry(t *testing.T) {
	clearEnv()
	os.Setenv("SARDIS_MANDATE_ALLOWED_DOMAINS", "merchant.example.com")
	os.Setenv("SARDIS_MANDATE_ENVIRONMENT", "production")
	defer clearEnv()

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when production environment lacks an identity registry")
	}
	if !contains(err.Error(), "identity_registry_url") {
		t.Errorf("expected error about identity_registry_url, got: %v", err)
	}
}

func TestLoadConfig_PostgresBackendRequiresURL(t *testing.T) {
	clearEnv()
	os.Setenv("SARDIS_MANDATE_ALLOWED_DOMAINS", "merchant.example.com")
	os.Setenv("SARDIS_STORAGE_BACKEND", "postgres")
	defer clearEnv()

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when postgres backend lacks a connection URL")
	}
	if !contains(err.Error(), "storage.postgres_url") {
		t.Errorf("expected error about storage.postgres_url, got: %v", err)
	}
}

func TestNormalizeRoutePrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{"  /api/  ", "/api"},
		{"sardis-pay", "/sardis-pay"},
		{"/v1/sardis", "/v1/sardis"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalizeRoutePrefix(tt.input)
			if got != tt.want {
				t.Errorf("normalizeRoutePrefix(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// Test helpers

func clearEnv() {
	envVars := []string{
		"SARDIS_SERVER_ADDRESS", "SARDIS_ROUTE_PREFIX", "SARDIS_ADMIN_METRICS_API_KEY",
		"SARDIS_LOG_LEVEL", "SARDIS_LOG_FORMAT", "SARDIS_ENVIRONMENT",
		"SARDIS_MANDATE_ENVIRONMENT", "SARDIS_IDENTITY_REGISTRY_URL", "SARDIS_MANDATE_ALLOWED_DOMAINS",
		"SARDIS_SETTLEMENT_LOCK_TTL", "SARDIS_SETTLEMENT_IDEMPOTENCY_TTL",
		"SARDIS_SETTLEMENT_CONFIRMATION_ATTEMPTS", "SARDIS_SETTLEMENT_CONFIRMATION_INTERVAL",
		"SARDIS_WEBHOOK_TIMEOUT", "SARDIS_WEBHOOK_POLL_INTERVAL",
		"SARDIS_STORAGE_BACKEND", "SARDIS_STORAGE_POSTGRES_URL",
		"SARDIS_API_KEY_ENABLED",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > len(substr) && containsAny(s, substr))
}

func containsAny(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
