package linkservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/api"
	"github.com/bondedhq/link-server/internal/api/recovery"
	"github.com/bondedhq/link-server/internal/assistant"
	"github.com/bondedhq/link-server/internal/config"
	"github.com/bondedhq/link-server/internal/factcache"
	"github.com/bondedhq/link-server/internal/factory"
	"github.com/bondedhq/link-server/internal/health"
	"github.com/bondedhq/link-server/internal/logger"
	"github.com/bondedhq/link-server/internal/messaging"
	"github.com/bondedhq/link-server/internal/outreach"
	"github.com/bondedhq/link-server/internal/reply"
	"github.com/bondedhq/link-server/internal/retrieval"
	"github.com/bondedhq/link-server/internal/store"
	"github.com/bondedhq/link-server/internal/textgen"
)

// Run starts the link service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("link-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("search_index_url", cfg.SearchIndexURL).
		Str("embed_model", cfg.EmbedModel).
		Msg("Link service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	// Initialize dependencies (store, index, embedder)
	st, idx, embedder, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	router, err := buildRouter(ctx, st, idx, embedder, cfg, log)
	if err != nil {
		return err
	}

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, st, idx, embedder)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs required components and enforces fail-fast on missing deps.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, retrieval.Index, retrieval.Embeddings, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, nil, nil, err
	}

	idx, err := factory.NewIndex(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Document index adapter unavailable")
		return nil, nil, nil, err
	}

	embedder := factory.NewEmbedder(ctx, cfg, log)
	if embedder == nil {
		return nil, nil, nil, fmt.Errorf("embedding provider not configured")
	}
	return st, idx, embedder, nil
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(ctx context.Context, st store.Store, idx retrieval.Index, embedder retrieval.Embeddings, cfg *config.Config, log zerolog.Logger) (*mux.Router, error) {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	msg := messaging.New(st, log)
	facts := factcache.New(st.Facts(), factcache.Config{
		WriteThreshold:      cfg.FactWriteThreshold,
		EventTTLDays:        cfg.FactTTLEventDays,
		EventUnknownTTLDays: cfg.FactTTLEventUnknownDays,
		ProfileTTLDays:      cfg.FactTTLProfileDays,
		OutreachTTLDays:     cfg.FactTTLOutreachDays,
		LookupLimit:         cfg.FactLookupLimit,
	}, log)

	// Model fallback for ambiguous replies is optional; heuristics carry the
	// common cases when no API key is configured.
	var gen textgen.Generator
	if cfg.GenAIAPIKey != "" {
		client, err := textgen.New(ctx, cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			log.Error().Stack().Err(err).Msg("Failed to create text generator")
			return nil, err
		}
		gen = client
	}
	interp := reply.NewInterpreter(gen)

	mgr := outreach.NewManager(st, msg, interp, facts, outreach.Config{
		BatchSize:         cfg.OutreachBatchSize,
		BatchMax:          cfg.OutreachBatchMax,
		MaxExpansions:     cfg.OutreachMaxExpansions,
		HardCap:           cfg.OutreachHardCap,
		ForumMinTargets:   cfg.ForumMinTargets,
		RecontactCooldown: time.Duration(cfg.RecontactCooldownDays) * 24 * time.Hour,
		TargetThreshold:   cfg.TargetThreshold,
	}, log)
	coord := outreach.NewCoordinator(st, msg, facts, log)

	ret := retrieval.NewRetriever(idx, embedder, cfg.SearchAlphaKeyword, cfg.SearchAlphaVector, cfg.SearchTopK, log)
	svc := assistant.New(st, msg, mgr, coord, facts, ret, interp, log)

	// Messages
	messagesHandler := api.NewMessagesHandler(svc)
	root.HandleFunc("/v0/messages", messagesHandler.HandleMessage).Methods("POST")

	// Outreach runs
	outreachHandler := api.NewOutreachHandler(mgr, coord, st.Runs())
	root.HandleFunc("/v0/outreach/{runId}", outreachHandler.GetRun).Methods("GET")
	root.HandleFunc("/v0/outreach/{runId}/collect", outreachHandler.Collect).Methods("POST")
	root.HandleFunc("/v0/outreach/{runId}/consent", outreachHandler.ResolveConsent).Methods("POST")
	root.HandleFunc("/v0/outreach/{runId}/cancel", outreachHandler.Cancel).Methods("POST")

	// Verified facts
	factsHandler := api.NewFactsHandler(facts)
	root.HandleFunc("/v0/facts", factsHandler.ListFacts).Methods("GET")

	// Health
	healthHandler := api.NewHealthHandler()
	root.HandleFunc("/v0/health", healthHandler.CheckHealth).Methods("GET")

	return root, nil
}

// startHealthCheckers starts component checkers and service-level aggregator; binds health.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, idx retrieval.Index, embedder retrieval.Embeddings) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	idxChecker := retrieval.NewIndexHealthChecker(idx, log, probeTimeout)
	go idxChecker.Start(ctx, interval)
	checkers = append(checkers, idxChecker)

	embChecker := retrieval.NewEmbedderHealthChecker(embedder, log, probeTimeout)
	go embChecker.Start(ctx, interval)
	checkers = append(checkers, embChecker)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	// Checkers start unhealthy and need time to complete their first probe cycle
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
