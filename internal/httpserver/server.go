package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sardis-ai/payments-core/internal/apikey"
	"github.com/sardis-ai/payments-core/internal/approval"
	"github.com/sardis-ai/payments-core/internal/auth"
	"github.com/sardis-ai/payments-core/internal/config"
	"github.com/sardis-ai/payments-core/internal/idempotency"
	"github.com/sardis-ai/payments-core/internal/logger"
	"github.com/sardis-ai/payments-core/internal/mandate"
	"github.com/sardis-ai/payments-core/internal/metrics"
	"github.com/sardis-ai/payments-core/internal/rails/card"
	"github.com/sardis-ai/payments-core/internal/rails/cctp"
	"github.com/sardis-ai/payments-core/internal/rails/funding"
	"github.com/sardis-ai/payments-core/internal/ratelimit"
	"github.com/sardis-ai/payments-core/internal/settlement"
	"github.com/sardis-ai/payments-core/internal/tenant"
	"github.com/sardis-ai/payments-core/internal/versioning"
	"github.com/sardis-ai/payments-core/internal/webhook"
)

var serverStartTime = time.Now()

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg              *config.Config
	verifier         *mandate.Verifier
	challenges       mandate.ChallengeStore
	engine           *settlement.Engine
	approvals        approval.Store
	approvalAuth     *auth.SignatureVerifier
	subscriptions    webhook.SubscriptionStore
	idempotencyStore idempotency.Store
	cards            *card.Router
	funding          *funding.Router
	bridge           *cctp.Service
	metrics          *metrics.Metrics
	logger           zerolog.Logger
}

// Deps bundles every collaborator Server needs, so New/ConfigureRouter
// don't grow a parameter for every new endpoint.
type Deps struct {
	Config           *config.Config
	Verifier         *mandate.Verifier
	Challenges       mandate.ChallengeStore
	Engine           *settlement.Engine
	Approvals        approval.Store
	ApprovalAuth     *auth.SignatureVerifier
	Subscriptions    webhook.SubscriptionStore
	IdempotencyStore idempotency.Store
	Cards            *card.Router
	Funding          *funding.Router
	Bridge           *cctp.Service
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
}

// New builds the HTTP server with a configured router.
func New(d Deps) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:              d.Config,
			verifier:         d.Verifier,
			challenges:       d.Challenges,
			engine:           d.Engine,
			approvals:        d.Approvals,
			approvalAuth:     d.ApprovalAuth,
			subscriptions:    d.Subscriptions,
			idempotencyStore: d.IdempotencyStore,
			cards:            d.Cards,
			funding:          d.Funding,
			bridge:           d.Bridge,
			metrics:          d.Metrics,
			logger:           d.Logger,
		},
		httpServer: &http.Server{
			Addr:         d.Config.Server.Address,
			ReadTimeout:  d.Config.Server.ReadTimeout.Duration,
			WriteTimeout: d.Config.Server.WriteTimeout.Duration,
			IdleTimeout:  d.Config.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, d)

	return s
}

// ConfigureRouter attaches Sardis routes to an existing router.
func ConfigureRouter(router chi.Router, d Deps) {
	if router == nil {
		return
	}

	handler := handlers{
		cfg:              d.Config,
		verifier:         d.Verifier,
		challenges:       d.Challenges,
		engine:           d.Engine,
		approvals:        d.Approvals,
		approvalAuth:     d.ApprovalAuth,
		subscriptions:    d.Subscriptions,
		idempotencyStore: d.IdempotencyStore,
		cards:            d.Cards,
		funding:          d.Funding,
		bridge:           d.Bridge,
		metrics:          d.Metrics,
		logger:           d.Logger,
	}

	cfg := d.Config

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Location"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Security headers middleware (applied first for all responses)
	router.Use(securityHeadersMiddleware)

	// Structured logging middleware (before RequestID for context propagation)
	router.Use(logger.Middleware(d.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// Tenant extraction (header/subdomain), read downstream by the
	// compliance gate's per-tenant allow/deny rules (spec §4.5 step 1).
	router.Use(tenant.Extraction)

	// API version negotiation middleware (adds version to context from Accept header)
	router.Use(versioning.Negotiation)

	// API key authentication middleware (before rate limiting), extracts
	// X-API-Key and stores the resolved tier in context for rate limit
	// exemptions.
	apiKeyCfg := apikey.Config{
		Enabled: cfg.APIKey.Enabled,
		APIKeys: make(map[string]apikey.Tier),
	}
	for key, tierStr := range cfg.APIKey.Keys {
		apiKeyCfg.APIKeys[key] = apikey.Tier(tierStr)
	}
	router.Use(apikey.Middleware(apiKeyCfg))

	rateLimitCfg := ratelimit.Config{
		GlobalEnabled:    cfg.RateLimit.GlobalEnabled,
		GlobalLimit:      cfg.RateLimit.GlobalLimit,
		GlobalWindow:     cfg.RateLimit.GlobalWindow.Duration,
		GlobalBurst:      cfg.RateLimit.GlobalLimit / 10,
		PerWalletEnabled: cfg.RateLimit.PerWalletEnabled,
		PerWalletLimit:   cfg.RateLimit.PerWalletLimit,
		PerWalletWindow:  cfg.RateLimit.PerWalletWindow.Duration,
		PerWalletBurst:   cfg.RateLimit.PerWalletLimit / 6,
		PerIPEnabled:     cfg.RateLimit.PerIPEnabled,
		PerIPLimit:       cfg.RateLimit.PerIPLimit,
		PerIPWindow:      cfg.RateLimit.PerIPWindow.Duration,
		PerIPBurst:       cfg.RateLimit.PerIPLimit / 6,
		Metrics:          d.Metrics,
	}
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.WalletLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	prefix := cfg.Server.RoutePrefix

	// Lightweight endpoints: health, discovery, docs, metrics.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/sardis-health", handler.health)
		r.Get("/.well-known/payment-options", handler.wellKnownPaymentOptions)
		r.Get("/.well-known/agent.json", handler.agentCard)
		r.Get("/openapi.json", handler.openAPISpec)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", promhttp.Handler())
	})

	idempotencyMW := idempotency.Middleware(d.IdempotencyStore, cfg.Settlement.IdempotencyTTL.Duration)

	// Settlement endpoints: blockchain confirmations and external rail
	// calls can run long, so these get a generous timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// AP2 mandate-chain settlement (spec §4.3, §4.10).
		r.With(idempotencyMW).Post(prefix+"/payments/execute", handler.executePayment)

		// x402 challenge/payload flow (spec §4.3's alternate variant).
		r.Post(prefix+"/payments/x402/challenge", handler.createX402Challenge)
		r.With(idempotencyMW).Post(prefix+"/payments/x402/submit", handler.submitX402Payload)

		// Approval actions on a suspended settlement (spec §4.7).
		r.Post(prefix+"/approvals/{transactionId}/approve", handler.approveTransaction)
		r.Post(prefix+"/approvals/{transactionId}/reject", handler.rejectTransaction)
		r.Get(prefix+"/approvals/{transactionId}", handler.getApproval)

		// Webhook subscription management (spec §4.13).
		r.Post(prefix+"/webhooks/subscriptions", handler.createWebhookSubscription)
		r.Get(prefix+"/webhooks/subscriptions/{endpointId}", handler.getWebhookSubscription)
		r.Delete(prefix+"/webhooks/subscriptions/{endpointId}", handler.deleteWebhookSubscription)

		// Card issuing and funding rails (spec §4.11's non-crypto rails).
		r.Post(prefix+"/cards", handler.createCard)
		r.Post(prefix+"/cards/{cardId}/freeze", handler.freezeCard)
		r.Post(prefix+"/cards/{cardId}/unfreeze", handler.unfreezeCard)
		r.Post(prefix+"/funding/execute", handler.executeFunding)

		// CCTP cross-chain USDC bridging (spec §4.11's CCTP rail).
		r.Post(prefix+"/bridge/cctp", handler.bridgeUSDC)
		r.Get(prefix+"/bridge/cctp/{transferId}", handler.getBridgeStatus)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
