// Package memoryserver wires configuration, storage, the vector index and
// the HTTP API into a runnable service.
package memoryserver

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmem/openmem-server/internal/api"
	"github.com/openmem/openmem-server/internal/categorize"
	"github.com/openmem/openmem-server/internal/config"
	"github.com/openmem/openmem-server/internal/health"
	"github.com/openmem/openmem-server/internal/logger"
	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/store/postgres"
	"github.com/openmem/openmem-server/internal/store/sqlite"
	"github.com/openmem/openmem-server/internal/vector"
)

// Run starts the openmem HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("openmem-server")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("store unavailable")
		return err
	}

	idx, err := vector.NewWeaviateIndex(ctx, cfg.WeaviateURL, float64(cfg.SearchAlpha))
	if err != nil {
		log.Error().Stack().Err(err).Msg("vector index unavailable")
		return err
	}

	cat := newCategorizer(cfg, log)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, idx)
	router := api.NewRouter(st, idx, cat, svcHealth.IsHealthy, log)

	if err := waitUntilHealthy(ctx, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Stack().Err(err).Msg("server forced to shutdown")
			return err
		}
		log.Info().Msg("server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return postgres.NewFromDSN(ctx, cfg.PostgresDSN)
	case "sqlite":
		return sqlite.NewAtPath(ctx, cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unsupported DB driver: %s", cfg.DBDriver)
}

// newCategorizer builds the LLM categorizer with keyword fallback; without
// an API key the keyword matcher runs alone.
func newCategorizer(cfg *config.Config, log zerolog.Logger) categorize.Categorizer {
	fb := &categorize.Fallback{Secondary: categorize.Keyword{}, Log: log}
	if cfg.CategorizerAPIKey != "" {
		fb.Primary = categorize.NewLLM(cfg.CategorizerBaseURL, cfg.CategorizerAPIKey, cfg.CategorizerModel)
	}
	return fb
}

func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, idx vector.Index) *health.ServiceHealthChecker {
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second

	var deps []health.HealthChecker
	if pinger, ok := st.(health.HealthPinger); ok {
		deps = append(deps, health.NewComponentChecker("store", pinger, log, probeTimeout))
	}
	deps = append(deps, health.NewComponentChecker("vector-index", idx, log, probeTimeout))

	svc := health.NewServiceHealthChecker(log, deps...)
	for _, d := range deps {
		go d.Start(ctx, interval)
	}
	go svc.Start(ctx, interval)
	return svc
}

// waitUntilHealthy blocks startup until every dependency reports healthy,
// with a hard cap so a dead dependency fails fast.
func waitUntilHealthy(ctx context.Context, svc *health.ServiceHealthChecker) error {
	deadline := time.After(60 * time.Second)
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("dependencies did not become healthy in time")
		case <-tick.C:
			if svc.IsHealthy() {
				return nil
			}
		}
	}
}
