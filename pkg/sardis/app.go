package sardis

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sardis-ai/payments-core/internal/approval"
	"github.com/sardis-ai/payments-core/internal/auth"
	"github.com/sardis-ai/payments-core/internal/balance"
	"github.com/sardis-ai/payments-core/internal/behavior"
	"github.com/sardis-ai/payments-core/internal/canon"
	"github.com/sardis-ai/payments-core/internal/circuitbreaker"
	"github.com/sardis-ai/payments-core/internal/compliance"
	"github.com/sardis-ai/payments-core/internal/confidence"
	"github.com/sardis-ai/payments-core/internal/config"
	"github.com/sardis-ai/payments-core/internal/dbpool"
	"github.com/sardis-ai/payments-core/internal/httpserver"
	"github.com/sardis-ai/payments-core/internal/identity"
	"github.com/sardis-ai/payments-core/internal/idempotency"
	"github.com/sardis-ai/payments-core/internal/ledger"
	"github.com/sardis-ai/payments-core/internal/lifecycle"
	"github.com/sardis-ai/payments-core/internal/logger"
	"github.com/sardis-ai/payments-core/internal/mandate"
	"github.com/sardis-ai/payments-core/internal/metrics"
	"github.com/sardis-ai/payments-core/internal/observability"
	"github.com/sardis-ai/payments-core/internal/policy"
	"github.com/sardis-ai/payments-core/internal/rails"
	"github.com/sardis-ai/payments-core/internal/rails/card"
	"github.com/sardis-ai/payments-core/internal/rails/cctp"
	"github.com/sardis-ai/payments-core/internal/rails/evm"
	"github.com/sardis-ai/payments-core/internal/rails/funding"
	"github.com/sardis-ai/payments-core/internal/rails/solanarail"
	"github.com/sardis-ai/payments-core/internal/replaycache"
	"github.com/sardis-ai/payments-core/internal/settlement"
	"github.com/sardis-ai/payments-core/internal/signer"
	solanautil "github.com/sardis-ai/payments-core/internal/solana"
	"github.com/sardis-ai/payments-core/internal/velocity"
	"github.com/sardis-ai/payments-core/internal/walletlock"
	"github.com/sardis-ai/payments-core/internal/webhook"
)

// App holds every wired collaborator of a running Sardis deployment,
// assembled from config.Config the same way the teacher's cmd entrypoint
// built its service graph from config before handing it to httpserver.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Server *httpserver.Server

	webhooks   *webhook.Dispatcher
	idempotent *idempotency.MemoryStore
	replay     *replaycache.MemoryCache
	cctp       *cctp.Service
	resources  *lifecycle.Manager
}

// NewApp wires every settlement collaborator from cfg and returns a
// ready-to-serve App. It does not start webhook dispatch — call Start
// for that; the idempotency and replay-cache sweeps start in their
// constructors here.
func NewApp(cfg *config.Config) (*App, error) {
	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "sardis-payments-core",
		Environment: cfg.Logging.Environment,
	})

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	replayCache := replaycache.NewMemoryCache(cfg.Mandate.ReplayCacheMaxSize, cfg.Mandate.ReplaySweep.Duration)
	allowedDomains := make(map[string]bool, len(cfg.Mandate.AllowedDomains))
	for _, d := range cfg.Mandate.AllowedDomains {
		allowedDomains[d] = true
	}
	verifier := &mandate.Verifier{
		Replay:         replayCache,
		AllowedDomains: allowedDomains,
		Environment:    cfg.Mandate.Environment,
	}
	if cfg.Mandate.IdentityRegistryURL != "" {
		registry := identity.NewHTTPRegistry(cfg.Mandate.IdentityRegistryURL)
		verifier.Registry = registry
		verifier.X402SignatureFn = func(payload mandate.Payload) (canon.Algorithm, string, error) {
			alg, pubkeyHex, err := registry.ResolveKey(payload.Payer)
			return canon.Algorithm(alg), pubkeyHex, err
		}
	}
	challenges := mandate.NewMemoryChallengeStore()

	keyProvider := signer.NewLocalKeyProvider()
	mpcSigner := signer.NewMPCSigner(keyProvider)

	railsByChain := make(map[string]rails.Rail)
	balancesByChain := make(map[string]balance.Reader)
	for name, chainCfg := range cfg.Chains {
		rail, reader, err := buildChainRail(name, chainCfg, mpcSigner, keyProvider)
		if err != nil {
			log.Warn().Err(err).Str("chain", name).Msg("skipping chain: could not build rail adapter")
			continue
		}
		railsByChain[name] = rail
		balancesByChain[name] = reader
	}
	railSelector := NewChainRailSelector(railsByChain, balancesByChain)

	cctpService := cctp.NewService(railsByChain, newCircleAttestationClient(), cctp.NewMemoryBridgeStore())

	cardProviders := []card.CardProvider{card.NewMemoryProvider("sandbox")}
	if key := os.Getenv("SARDIS_STRIPE_SECRET_KEY"); key != "" {
		cardProviders = append(cardProviders, card.NewStripeProvider(card.StripeConfig{SecretKey: key}, metricsCollector))
	}
	cardRouter := card.NewRouter(cardProviders...)

	fundingProviders := []funding.FundingAdapter{funding.NewMemoryProvider("sandbox")}
	if key := os.Getenv("SARDIS_STRIPE_TREASURY_SECRET_KEY"); key != "" {
		fundingProviders = append(fundingProviders, funding.NewStripeTreasuryProvider(funding.StripeTreasuryConfig{
			SecretKey:          key,
			FinancialAccountID: os.Getenv("SARDIS_STRIPE_TREASURY_ACCOUNT_ID"),
		}, metricsCollector))
	}
	fundingRouter := funding.NewRouter(fundingProviders...)

	allowlistRules := compliance.NewAllowlistRules(cfg.Compliance.AllowedTokensByChain)
	for _, tenantID := range cfg.Compliance.DeniedTenants {
		allowlistRules.DeniedTenants[tenantID] = true
	}
	complianceGate := &compliance.Gate{
		BaseRules: allowlistRules,
		Audit:     compliance.NewMemoryAuditLog(),
		Breakers:  breakers,
	}

	policyEvaluator := &policy.Evaluator{
		Policies: policy.NewMemoryRepository(),
		Groups:   policy.NewMemoryGroupRepository(),
		Spending: policy.NewMemorySpendingRepository(),
	}

	hooks := observability.NewRegistry(log)
	hooks.RegisterPaymentHook(observability.NewPrometheusHook(metricsCollector))

	confidenceCtx := NewMemoryConfidenceContext(confidence.KYABasic)
	approverResolver := NewMemoryApproverResolver(nil, envApprovers())
	walletResolver := NewMemoryWalletResolver(keyProvider)

	velocityLimiter := &velocity.Limiter{
		Repo: velocity.NewMemoryRepository(),
		Limits: func(agentID string) velocity.Limits {
			return velocity.Limits{
				Minute: cfg.Risk.VelocityLimits.PerMinute,
				Hour:   cfg.Risk.VelocityLimits.PerHour,
				Day:    cfg.Risk.VelocityLimits.PerDay,
			}
		},
	}
	behaviorMonitor := behavior.NewMonitor(behaviorSensitivity(cfg.Risk.BehaviorSensitivity))

	locks := walletlock.NewLocker()
	balances := balance.NewCache(balance.WithMetrics(metricsCollector))
	idemStore := idempotency.NewMemoryStore(100000, 10*time.Minute)

	resources := lifecycle.NewManager()

	pool, err := buildSharedPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("sardis: build postgres pool: %w", err)
	}
	if pool != nil {
		resources.Register("postgres_pool", pool)
	}

	ledgerStore, err := buildLedgerStore(cfg, pool)
	if err != nil {
		return nil, fmt.Errorf("sardis: build ledger store: %w", err)
	}
	approvalStore, err := buildApprovalStore(cfg, pool)
	if err != nil {
		return nil, fmt.Errorf("sardis: build approval store: %w", err)
	}
	subscriptionStore, deliveryStore, err := buildWebhookStores(cfg, pool, resources)
	if err != nil {
		return nil, fmt.Errorf("sardis: build webhook stores: %w", err)
	}
	webhookDispatcher := webhook.NewDispatcher(subscriptionStore, deliveryStore, cfg.Webhook.Timeout.Duration,
		webhook.WithLogger(log),
		webhook.WithMetrics(metricsCollector),
		webhook.WithPollInterval(cfg.Webhook.PollInterval.Duration),
		webhook.WithCircuitBreaker(breakers),
	)

	engine := settlement.NewEngine(
		idemStore,
		locks,
		balances,
		walletResolver,
		complianceGate,
		policyEvaluator,
		confidenceCtx,
		approverResolver,
		approvalStore,
		railSelector,
		ledgerStore,
		webhookDispatcher,
		settlement.WithLogger(log),
		settlement.WithMetrics(metricsCollector),
		settlement.WithHooks(hooks),
		settlement.WithVelocity(velocityLimiter),
		settlement.WithBehavior(behaviorMonitor),
		settlement.WithConfirmationPolicy(settlement.ConfirmationPolicy{
			Attempts: cfg.Settlement.ConfirmationAttempts,
			Interval: cfg.Settlement.ConfirmationInterval.Duration,
		}),
	)

	server := httpserver.New(httpserver.Deps{
		Config:           cfg,
		Verifier:         verifier,
		Challenges:       challenges,
		Engine:           engine,
		Approvals:        approvalStore,
		ApprovalAuth:     auth.NewSignatureVerifier(),
		Subscriptions:    subscriptionStore,
		IdempotencyStore: idemStore,
		Cards:            cardRouter,
		Funding:          fundingRouter,
		Bridge:           cctpService,
		Metrics:          metricsCollector,
		Logger:           log,
	})

	return &App{
		Config:     cfg,
		Logger:     log,
		Server:     server,
		webhooks:   webhookDispatcher,
		idempotent: idemStore,
		replay:     replayCache,
		cctp:       cctpService,
		resources:  resources,
	}, nil
}

// Start runs the background goroutines a live deployment needs
// (webhook delivery, idempotency/replay-cache sweeps already run on
// their own timers from their constructors) until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.webhooks.Start(ctx)
}

// Shutdown stops background sweeps and the webhook dispatch loop
// cleanly.
func (a *App) Shutdown() {
	a.webhooks.Stop()
	a.idempotent.Stop()
	a.replay.Stop()
	if err := a.resources.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("sardis: resource cleanup failed during shutdown")
	}
}

func envApprovers() []string {
	if v := os.Getenv("SARDIS_DEFAULT_APPROVERS"); v != "" {
		return splitCSV(v)
	}
	return nil
}

func splitCSV(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// buildSharedPool opens the one PostgreSQL connection pool every
// postgres-backed store shares, rather than each store calling
// sql.Open on its own connection string (internal/ledger, /approval,
// and /webhook each already accept an externally-owned *sql.DB via
// their NewPostgresStoreWithDB constructor for exactly this reason).
// Returns nil, nil for a memory-backed deployment.
func buildSharedPool(cfg *config.Config) (*dbpool.SharedPool, error) {
	if cfg.Storage.Backend != "postgres" {
		return nil, nil
	}
	return dbpool.NewSharedPool(cfg.Storage.PostgresURL, cfg.Storage.PostgresPool)
}

func buildLedgerStore(cfg *config.Config, pool *dbpool.SharedPool) (ledger.Store, error) {
	if pool != nil {
		return ledger.NewPostgresStoreWithDB(pool.DB())
	}
	return ledger.NewMemoryStore(), nil
}

func buildApprovalStore(cfg *config.Config, pool *dbpool.SharedPool) (approval.Store, error) {
	if pool != nil {
		return approval.NewPostgresStoreWithDB(pool.DB())
	}
	return approval.NewMemoryStore(), nil
}

// buildWebhookStores honors StorageConfig.WebhookBackend as an override of
// the shared Backend, so a deployment can keep ledger/approval on Postgres
// (they need its transactional guarantees) while routing the higher-churn,
// foreign-key-free webhook queue to MongoDB instead.
func buildWebhookStores(cfg *config.Config, pool *dbpool.SharedPool, resources *lifecycle.Manager) (webhook.SubscriptionStore, webhook.DeliveryStore, error) {
	backend := cfg.Storage.WebhookBackend
	if backend == "" {
		backend = cfg.Storage.Backend
	}

	switch backend {
	case "mongo":
		store, err := webhook.NewMongoStore(cfg.Storage.MongoURL, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("build mongo webhook store: %w", err)
		}
		resources.Register("webhook_mongo_store", store)
		return store, store, nil
	case "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("build webhook store: postgres backend requires a shared pool")
		}
		store, err := webhook.NewPostgresStoreWithDB(pool.DB())
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return webhook.NewMemorySubscriptionStore(), webhook.NewMemoryDeliveryStore(), nil
	}
}

// solanaFeePayer loads the Solana fee-payer keypair from
// SARDIS_SOLANA_FEE_PAYER_KEY (base58 or solana-keygen JSON array
// format, per internal/solana.ParsePrivateKey). Falling back to a fresh
// ephemeral wallet would silently produce an unfunded fee payer that
// can never actually submit a transaction, so an unset key is an error
// rather than a quiet default.
func solanaFeePayer() (solanago.PrivateKey, error) {
	key := os.Getenv("SARDIS_SOLANA_FEE_PAYER_KEY")
	if key == "" {
		return solanago.PrivateKey{}, fmt.Errorf("SARDIS_SOLANA_FEE_PAYER_KEY is not set")
	}
	return solanautil.ParsePrivateKey(key)
}

// behaviorSensitivity maps a config string to behavior.Sensitivity,
// defaulting to Normal for an empty or unrecognized value rather than
// erroring — the monitor's own threshold lookup already falls back the
// same way, so this just keeps the two in one place.
func behaviorSensitivity(s string) behavior.Sensitivity {
	switch behavior.Sensitivity(s) {
	case behavior.SensitivityRelaxed, behavior.SensitivityStrict, behavior.SensitivityParanoid:
		return behavior.Sensitivity(s)
	default:
		return behavior.SensitivityNormal
	}
}

// buildChainRail constructs the rail adapter and balance reader for one
// configured chain, dispatching on chainCfg.Rail.
func buildChainRail(name string, chainCfg config.ChainConfig, mpcSigner *signer.MPCSigner, keyProvider *signer.LocalKeyProvider) (rails.Rail, balance.Reader, error) {
	switch chainCfg.Rail {
	case "evm":
		client, err := evm.Dial(chainCfg.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial evm rpc: %w", err)
		}
		adapter, err := evm.NewAdapter(name, client, mpcSigner.ForEVM())
		if err != nil {
			return nil, nil, err
		}
		tokenAddresses := make(map[string]common.Address)
		for _, addrHex := range chainCfg.AllowedTokens {
			if common.IsHexAddress(addrHex) {
				tokenAddresses[addrHex] = common.HexToAddress(addrHex)
			}
		}
		reader := NewEVMBalanceReader(client, keyProvider.EVMAddress, "", tokenAddresses)
		return adapter, reader, nil

	case "solana":
		client := solanarpc.New(chainCfg.RPCURL)
		feePayer, err := solanaFeePayer()
		if err != nil {
			return nil, nil, fmt.Errorf("solana fee payer: %w", err)
		}
		adapter, err := solanarail.NewAdapter(chainCfg.Network, client, mpcSigner.ForSolana(), []solanago.PrivateKey{feePayer})
		if err != nil {
			return nil, nil, err
		}
		mints := make(map[string]solanago.PublicKey)
		for _, mintAddr := range chainCfg.AllowedTokens {
			if pk, err := solanago.PublicKeyFromBase58(mintAddr); err == nil {
				mints[mintAddr] = pk
			}
		}
		reader := NewSolanaBalanceReader(client, keyProvider.SolanaAddress, "", mints)
		return adapter, reader, nil

	default:
		return nil, nil, fmt.Errorf("unsupported rail %q", chainCfg.Rail)
	}
}
