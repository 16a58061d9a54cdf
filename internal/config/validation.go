package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sardis-ai/payments-core/internal/mandate"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Mandate.Environment == "" {
		c.Mandate.Environment = "staging"
	}
	if c.Mandate.ReplayCacheMaxSize <= 0 {
		c.Mandate.ReplayCacheMaxSize = 100_000
	}
	if c.Mandate.ReplaySweep.Duration <= 0 {
		c.Mandate.ReplaySweep = Duration{Duration: 5 * time.Minute}
	}

	if c.Settlement.LockTTL.Duration <= 0 {
		c.Settlement.LockTTL = Duration{Duration: 30 * time.Second}
	}
	if c.Settlement.IdempotencyTTL.Duration <= 0 {
		c.Settlement.IdempotencyTTL = Duration{Duration: 24 * time.Hour}
	}
	if c.Settlement.ConfirmationAttempts <= 0 {
		c.Settlement.ConfirmationAttempts = 3
	}
	if c.Settlement.ConfirmationInterval.Duration <= 0 {
		c.Settlement.ConfirmationInterval = Duration{Duration: 2 * time.Second}
	}

	if c.Webhook.Timeout.Duration <= 0 {
		c.Webhook.Timeout = Duration{Duration: 10 * time.Second}
	}
	if c.Webhook.PollInterval.Duration <= 0 {
		c.Webhook.PollInterval = Duration{Duration: 5 * time.Second}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	if c.Mandate.Environment == mandate.EnvironmentProduction && c.Mandate.IdentityRegistryURL == "" {
		errs = append(errs, "mandate.identity_registry_url is required when mandate.environment is \"production\" (spec §4.3 step 5)")
	}
	if len(c.Mandate.AllowedDomains) == 0 {
		errs = append(errs, "mandate.allowed_domains must list at least one merchant/issuer domain")
	}

	for name, chain := range c.Chains {
		switch chain.Rail {
		case "evm", "solana", "cctp":
		default:
			errs = append(errs, fmt.Sprintf("chains.%s.rail must be one of evm, solana, cctp", name))
		}
		if chain.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chains.%s.rpc_url is required", name))
		}
	}

	switch c.Storage.Backend {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q must be one of memory, postgres", c.Storage.Backend))
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresURL == "" {
		errs = append(errs, "storage.postgres_url is required when storage.backend is \"postgres\"")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25 // default
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5 // default
	}

	// Validate: maxIdle cannot exceed maxOpen
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute // default
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
