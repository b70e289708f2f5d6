// Package server wires configuration, storage and the HTTP API into a
// running XenovaLaw server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	"github.com/xenovalaw/xenova/internal/ai/providers"
	"github.com/xenovalaw/xenova/internal/ai/usage"
	"github.com/xenovalaw/xenova/internal/api"
	"github.com/xenovalaw/xenova/internal/config"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/metrics"
	"github.com/xenovalaw/xenova/internal/provisioning"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// tenantGaugeInterval is how often the tenants-per-tier gauge is refreshed.
var tenantGaugeInterval = time.Minute

// Run starts the XenovaLaw server and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(ctx context.Context, version string) error {
	// Baseline logger for early startup messages
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "xenova",
	})
	defer logging.Shutdown()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "xenova",
		FilePath:  cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", version).Str("db_driver", cfg.DatabaseDriver).Msg("Starting XenovaLaw server")

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	catalog := licensing.Default()
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid tier catalog: %w", err)
	}

	blobs, err := OpenBlobStore(cfg)
	if err != nil {
		return err
	}

	limiters, err := openLimiters(cfg)
	if err != nil {
		return err
	}
	defer limiters.close()

	feed, err := openUsageFeed(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := feed.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to flush usage feed")
		}
	}()

	sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}

	provider, err := providers.NewFromConfig(providers.Config{
		APIKey:  cfg.AnthropicAPIKey,
		Model:   cfg.AIModel,
		BaseURL: cfg.AIBaseURL,
		Timeout: cfg.AITimeout,
	})
	switch {
	case errors.Is(err, providers.ErrNotConfigured):
		log.Warn().Msg("ANTHROPIC_API_KEY not set; AI actions will fail until it is configured")
		provider = nil
	case err != nil:
		return fmt.Errorf("create AI provider: %w", err)
	default:
		log.Info().Str("provider", provider.Name()).Str("model", provider.Model()).Msg("AI provider configured")
	}

	accountant := usage.NewAccountant(st, feed)
	handler := api.NewRouter(api.Deps{
		Store:          st,
		Catalog:        catalog,
		Sessions:       sessions,
		Assistant:      assistant.NewService(st, accountant, provider, assistant.Config{Catalog: catalog, Timeout: cfg.AITimeout}),
		Accountant:     accountant,
		Provisioning:   provisioning.NewService(st, catalog),
		Blobs:          blobs,
		LoginLimiter:   limiters.login,
		APILimiter:     limiters.api,
		AdminKey:       cfg.AdminKey,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		SecureCookies:  true,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		return nil
	})
	if cfg.MetricsPort != 0 {
		metricsSrv := metrics.NewServer(fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.MetricsPort))
		g.Go(func() error { return metrics.Serve(gctx, metricsSrv) })
	}
	g.Go(func() error {
		trackTenants(gctx, st, tenantGaugeInterval)
		return nil
	})
	for _, run := range limiters.background {
		g.Go(func() error {
			run(gctx)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}
