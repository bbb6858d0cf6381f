// Package app wires the promotion service's dependencies and owns the HTTP
// server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clearcart/promotion-engine/internal/config"
	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/internal/event"
	handler "github.com/clearcart/promotion-engine/internal/handler/http"
	"github.com/clearcart/promotion-engine/internal/repository"
	"github.com/clearcart/promotion-engine/internal/repository/memory"
	"github.com/clearcart/promotion-engine/internal/repository/postgres"
	"github.com/clearcart/promotion-engine/internal/repository/rediscache"
	"github.com/clearcart/promotion-engine/internal/service"
	"github.com/clearcart/promotion-engine/internal/settings"
	"github.com/clearcart/promotion-engine/pkg/database"
	"github.com/clearcart/promotion-engine/pkg/health"
	"github.com/clearcart/promotion-engine/pkg/httpclient"
	"github.com/clearcart/promotion-engine/pkg/kafka"
	"github.com/clearcart/promotion-engine/pkg/middleware"
)

// App holds the wired application.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server

	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *kafka.Producer
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	healthHandler := health.NewHandler()

	var (
		campaigns repository.CampaignRepository
		ledger    repository.UsageLedger
	)

	switch cfg.Storage {
	case "memory":
		store := memory.NewStore()
		campaigns = store
		ledger = store
		logger.Warn("running with in-memory storage, data will not survive restarts")

	default:
		pgCfg := cfg.PostgresConfig()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		healthHandler.Register("postgres", pool.Ping)

		campaigns = postgres.NewCampaignRepository(pool)
		ledger = postgres.NewUsageLedger(pool)

		if cfg.RedisEnabled {
			client, err := database.NewRedisClient(ctx, cfg.RedisConfig())
			if err != nil {
				return nil, fmt.Errorf("connect to redis: %w", err)
			}
			a.redis = client
			healthHandler.Register("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
			campaigns = rediscache.NewCampaignCache(campaigns, client, cfg.CampaignCacheTTL, logger)
		}
	}

	var emitter service.EventEmitter = event.NopEmitter{}
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.producer = producer
		healthHandler.Register("kafka", producer.Ping)
		emitter = event.NewProducer(producer, logger)
	}

	settingsProvider := buildSettingsProvider(cfg, logger)

	promotions := service.NewPromotionService(campaigns, ledger, settingsProvider, emitter, logger, time.Now)

	h := handler.NewHandler(promotions, promotions, logger)
	router := handler.NewRouter(h, handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		Logger:      logger,
		Health:      healthHandler,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
	})

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return a, nil
}

// buildSettingsProvider chains the constraint sources: HTTP behind a circuit
// breaker when a settings URL is configured, cached with a TTL, falling back
// to the configured static defaults.
func buildSettingsProvider(cfg *config.Config, logger *slog.Logger) settings.Provider {
	fallback := domain.DiscountConstraints{
		MinOrderAmount:     cfg.DefaultMinOrderAmount,
		MaxDiscountPercent: cfg.DefaultMaxDiscountPercent,
		MaxDiscountAmount:  cfg.DefaultMaxDiscountAmount,
	}

	if cfg.SettingsURL == "" {
		return settings.NewStaticProvider(fallback)
	}

	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("settings"),
		logger,
	)
	httpProvider := settings.NewHTTPProvider(client, cfg.SettingsURL)
	return settings.NewCachedProvider(httpProvider, fallback, cfg.SettingsCacheTTL, time.Now, logger)
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Close releases external resources.
func (a *App) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", slog.String("error", err.Error()))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis client", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
