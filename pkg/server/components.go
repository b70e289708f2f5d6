package server

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xenovalaw/xenova/internal/blob"
	"github.com/xenovalaw/xenova/internal/config"
	"github.com/xenovalaw/xenova/internal/metrics"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/ratelimit"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/internal/store/pgstore"
	"github.com/xenovalaw/xenova/internal/usagefeed"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// OpenStore opens the configured database and applies its schema.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		s, err := pgstore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := store.OpenSQLite(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	}
}

// OpenBlobStore opens the configured document content store.
func OpenBlobStore(cfg *config.Config) (blob.Store, error) {
	if cfg.DocumentStorage == config.StorageS3 {
		s, err := blob.NewS3Store(blob.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 document store: %w", err)
		}
		return s, nil
	}
	s, err := blob.NewLocalStore(cfg.DocumentsDir())
	if err != nil {
		return nil, fmt.Errorf("open local document store: %w", err)
	}
	return s, nil
}

type limiterSet struct {
	login      ratelimit.Limiter
	api        ratelimit.Limiter
	background []func(context.Context)
	closers    []func() error
}

func (l *limiterSet) close() {
	for _, c := range l.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Failed to close rate limiter")
		}
	}
}

// openLimiters shares Redis between replicas when configured and falls back
// to per-process windows otherwise.
func openLimiters(cfg *config.Config) (*limiterSet, error) {
	set := &limiterSet{}
	build := func(limit int) (ratelimit.Limiter, error) {
		if limit <= 0 {
			return nil, nil
		}
		if cfg.RedisURL != "" {
			rl, err := ratelimit.NewRedisLimiter(cfg.RedisURL, limit, cfg.RateLimitWindow)
			if err != nil {
				return nil, fmt.Errorf("open redis rate limiter: %w", err)
			}
			set.closers = append(set.closers, rl.Close)
			return rl, nil
		}
		ml := ratelimit.NewMemoryLimiter(limit, cfg.RateLimitWindow)
		set.background = append(set.background, ml.Run)
		return ml, nil
	}

	var err error
	if set.login, err = build(cfg.LoginRateLimit); err != nil {
		return nil, err
	}
	if set.api, err = build(cfg.APIRateLimit); err != nil {
		set.close()
		return nil, err
	}
	return set, nil
}

func openUsageFeed(cfg *config.Config) (usagefeed.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return usagefeed.Nop{}, nil
	}
	p, err := usagefeed.NewKafkaPublisher(usagefeed.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaUsageTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("open usage feed: %w", err)
	}
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaUsageTopic).Msg("AI usage feed enabled")
	return p, nil
}

type tenantLister interface {
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
}

// trackTenants refreshes the tenants-per-tier gauge until ctx is done.
func trackTenants(ctx context.Context, s tenantLister, interval time.Duration) {
	updateTenantGauge(ctx, s)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateTenantGauge(ctx, s)
		}
	}
}

func updateTenantGauge(ctx context.Context, s tenantLister) {
	tenants, err := s.ListTenants(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("Failed to count tenants for metrics")
		}
		return
	}
	counts := make(map[licensing.Tier]int)
	for _, t := range tenants {
		if t.Active {
			counts[t.Tier]++
		}
	}
	for _, tier := range licensing.Default().Tiers() {
		metrics.TenantsByTier.WithLabelValues(string(tier)).Set(float64(counts[tier]))
	}
}
