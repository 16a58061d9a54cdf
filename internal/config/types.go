package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig           `yaml:"server"`
	Logging        LoggingConfig          `yaml:"logging"`
	Mandate        MandateConfig          `yaml:"mandate"`
	Chains         map[string]ChainConfig `yaml:"chains"`
	Settlement     SettlementConfig       `yaml:"settlement"`
	Compliance     ComplianceConfig       `yaml:"compliance"`
	Webhook        WebhookConfig          `yaml:"webhook"`
	Storage        StorageConfig          `yaml:"storage"`
	RateLimit      RateLimitConfig        `yaml:"rate_limit"`
	APIKey         APIKeyConfig           `yaml:"api_key"`
	CircuitBreaker CircuitBreakerConfig   `yaml:"circuit_breaker"`
	Risk           RiskConfig             `yaml:"risk"`
}

// RiskConfig tunes the spec §4.6 guardrails that run alongside compliance
// and policy: per-agent velocity caps and the behavioral-drift monitor.
type RiskConfig struct {
	VelocityLimits      VelocityLimitsConfig `yaml:"velocity_limits"`
	BehaviorSensitivity string               `yaml:"behavior_sensitivity"` // "relaxed", "normal", "strict", "paranoid" (default: "normal")
}

// VelocityLimitsConfig bounds the default per-agent transaction counts
// across sliding windows (internal/velocity). Zero disables a tier.
type VelocityLimitsConfig struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`          // Optional prefix for all routes (e.g., "/api")
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // Optional API key to protect /metrics endpoint (leave empty to disable protection)
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// MandateConfig holds AP2 mandate-chain and x402 verifier configuration
// (spec §4.3).
type MandateConfig struct {
	Environment         string   `yaml:"environment"`           // "production" requires IdentityRegistryURL
	AllowedDomains      []string `yaml:"allowed_domains"`       // merchant/issuer domains mandates may bind to
	IdentityRegistryURL string   `yaml:"identity_registry_url"` // resolves verification_method -> (alg, pubkey) in production
	ReplayCacheMaxSize  int      `yaml:"replay_cache_max_size"`
	ReplaySweep         Duration `yaml:"replay_sweep_interval"`
}

// ChainConfig configures one settlement rail: its RPC endpoint and which
// rail adapter (internal/rails/evm, solanarail, cctp) serves it.
type ChainConfig struct {
	Rail           string   `yaml:"rail"` // "evm", "solana", "cctp"
	Network        string   `yaml:"network"`
	RPCURL         string   `yaml:"rpc_url"`
	WSURL          string   `yaml:"ws_url"`
	AllowedTokens  []string `yaml:"allowed_tokens"`
	SignerProvider string   `yaml:"signer_provider"` // "local" or "mpc" (internal/signer)
}

// SettlementConfig tunes the orchestration knobs of internal/settlement.Engine.
type SettlementConfig struct {
	LockTTL              Duration `yaml:"lock_ttl"`
	IdempotencyTTL       Duration `yaml:"idempotency_ttl"`
	ConfirmationAttempts int      `yaml:"confirmation_attempts"`
	ConfirmationInterval Duration `yaml:"confirmation_interval"`
}

// ComplianceConfig configures internal/compliance.Gate's base-rule
// allow-list. Sanctions/KYC providers are external systems (spec
// Non-goals) and are wired only when a deployment supplies its own
// compliance.SanctionsProvider/KYCProvider implementation.
type ComplianceConfig struct {
	AllowedTokensByChain map[string][]string `yaml:"allowed_tokens_by_chain"`
	DeniedTenants        []string            `yaml:"denied_tenants"`
}

// WebhookConfig configures internal/webhook.Dispatcher delivery.
type WebhookConfig struct {
	Timeout      Duration `yaml:"timeout"`
	PollInterval Duration `yaml:"poll_interval"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // Maximum number of open connections (default: 25)
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // Maximum number of idle connections (default: 5)
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // Maximum lifetime of connections (default: 5m)
}

// StorageConfig selects the persistence backend for ledger, approval,
// and webhook subscription/delivery state.
type StorageConfig struct {
	Backend      string             `yaml:"backend"` // "memory" or "postgres"
	PostgresURL  string             `yaml:"postgres_url"`
	PostgresPool PostgresPoolConfig `yaml:"postgres_pool"`

	// WebhookBackend overrides Backend for webhook subscription/delivery
	// state only, adding a "mongo" option — webhooks have no foreign-key
	// relationship to the ledger or approval tables, so a deployment can
	// run its transactional stores on Postgres while keeping the
	// higher-churn webhook queue on a document store. Empty falls back
	// to Backend.
	WebhookBackend string `yaml:"webhook_backend"`
	MongoURL       string `yaml:"mongo_url"`
	MongoDatabase  string `yaml:"mongo_database"`
}

// RateLimitConfig holds rate limiting configuration.
// Provides multi-tier rate limiting to prevent spam while allowing legitimate use.
type RateLimitConfig struct {
	// Global rate limiting (across all users)
	GlobalEnabled bool     `yaml:"global_enabled"` // Enable global rate limiting
	GlobalLimit   int      `yaml:"global_limit"`   // Requests allowed per global window
	GlobalWindow  Duration `yaml:"global_window"`  // Time window for global limit

	// Per-wallet rate limiting (identified by X-Wallet header)
	PerWalletEnabled bool     `yaml:"per_wallet_enabled"` // Enable per-wallet rate limiting
	PerWalletLimit   int      `yaml:"per_wallet_limit"`   // Requests allowed per wallet per window
	PerWalletWindow  Duration `yaml:"per_wallet_window"`  // Time window for per-wallet limit

	// Per-IP rate limiting (fallback when wallet not identified)
	PerIPEnabled bool     `yaml:"per_ip_enabled"` // Enable per-IP rate limiting
	PerIPLimit   int      `yaml:"per_ip_limit"`   // Requests allowed per IP per window
	PerIPWindow  Duration `yaml:"per_ip_window"`  // Time window for per-IP limit
}

// APIKeyConfig holds API key authentication and tier configuration.
// Allows trusted partners to bypass rate limits via X-API-Key header.
type APIKeyConfig struct {
	Enabled bool              `yaml:"enabled"` // Enable API key authentication (default: false)
	Keys    map[string]string `yaml:"keys"`    // Map of API key -> tier (free, pro, enterprise, partner)
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
// Prevents cascading failures by failing fast when external services are degraded.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`    // Enable circuit breakers (default: true)
	EVMRPC    BreakerServiceConfig `yaml:"evm_rpc"`     // EVM JSON-RPC circuit breaker
	SolanaRPC BreakerServiceConfig `yaml:"solana_rpc"`  // Solana RPC circuit breaker
	Webhook   BreakerServiceConfig `yaml:"webhook"`     // Webhook delivery circuit breaker
	Sanctions BreakerServiceConfig `yaml:"sanctions"`   // Sanctions screening provider circuit breaker
	KYC       BreakerServiceConfig `yaml:"kyc"`         // KYC verification provider circuit breaker
	Card      BreakerServiceConfig `yaml:"card"`        // Card issuing provider circuit breaker
	Funding   BreakerServiceConfig `yaml:"funding"`     // Funding rail provider circuit breaker
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
