package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use SARDIS_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "SARDIS_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "SARDIS_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "SARDIS_ADMIN_METRICS_API_KEY")

	// Normalize route prefix: ensure it starts with / and doesn't end with /
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "SARDIS_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "SARDIS_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "SARDIS_ENVIRONMENT")

	// Mandate config
	setIfEnv(&c.Mandate.Environment, "SARDIS_ENVIRONMENT")
	setIfEnv(&c.Mandate.Environment, "SARDIS_MANDATE_ENVIRONMENT")
	setIfEnv(&c.Mandate.IdentityRegistryURL, "SARDIS_IDENTITY_REGISTRY_URL")
	if v := os.Getenv("SARDIS_MANDATE_ALLOWED_DOMAINS"); v != "" {
		c.Mandate.AllowedDomains = strings.Split(v, ",")
	}

	// Settlement config
	setDurationIfEnv(&c.Settlement.LockTTL, "SARDIS_SETTLEMENT_LOCK_TTL")
	setDurationIfEnv(&c.Settlement.IdempotencyTTL, "SARDIS_SETTLEMENT_IDEMPOTENCY_TTL")
	if v := os.Getenv("SARDIS_SETTLEMENT_CONFIRMATION_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Settlement.ConfirmationAttempts = n
		}
	}
	setDurationIfEnv(&c.Settlement.ConfirmationInterval, "SARDIS_SETTLEMENT_CONFIRMATION_INTERVAL")

	// Webhook config
	setDurationIfEnv(&c.Webhook.Timeout, "SARDIS_WEBHOOK_TIMEOUT")
	setDurationIfEnv(&c.Webhook.PollInterval, "SARDIS_WEBHOOK_POLL_INTERVAL")

	// Storage config
	setIfEnv(&c.Storage.Backend, "SARDIS_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "SARDIS_STORAGE_POSTGRES_URL")

	// API Key config
	setBoolIfEnv(&c.APIKey.Enabled, "SARDIS_API_KEY_ENABLED")
	// Load API keys (SARDIS_API_KEY_*)
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "SARDIS_API_KEY_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimPrefix(parts[0], "SARDIS_API_KEY_")
		if name == "" || name == "ENABLED" {
			continue
		}
		if c.APIKey.Keys == nil {
			c.APIKey.Keys = make(map[string]string)
		}
		// SARDIS_API_KEY_PARTNER_ABC123=partner -> key: "partner_abc123", tier: "partner"
		key := strings.ToLower(name)
		tier := strings.TrimSpace(parts[1])
		c.APIKey.Keys[key] = tier
	}
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "api" -> "/api", "/api/" -> "/api", "sardis-pay" -> "/sardis-pay"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	// Ensure it starts with /
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	// Ensure it doesn't end with /
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix
}
