package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zubariev/quarantine/internal/api"
	"github.com/Zubariev/quarantine/internal/auth"
	"github.com/Zubariev/quarantine/internal/cache"
	"github.com/Zubariev/quarantine/internal/config"
	"github.com/Zubariev/quarantine/internal/db"
	"github.com/Zubariev/quarantine/internal/game"
	"github.com/Zubariev/quarantine/internal/metrics"
	"github.com/Zubariev/quarantine/internal/payment"
	"github.com/Zubariev/quarantine/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.SlogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	backend, kind, err := store.Open(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  "quarantine-api",
	})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer backend.Close()
	if err := backend.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}
	logger.Info("store ready", "backend", kind)

	var gameStore game.Store = backend
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, catalog reads will fall through", "err", err)
		}
		gameStore = cache.NewCatalogStore(backend, rdb, cfg.CatalogCacheTTL, logger)
		logger.Info("catalog cache enabled", "ttl", cfg.CatalogCacheTTL.String())
	}

	m := metrics.New()
	opts := game.Options{Events: m, StoreTimeout: cfg.StoreTimeout}
	if cfg.StripeAPIKey != "" {
		opts.Processor = payment.New(payment.Config{
			APIKey:        cfg.StripeAPIKey,
			WebhookSecret: cfg.StripeWebhookKey,
			Currency:      cfg.StripeCurrency,
			Timeout:       cfg.PaymentTimeout,
		})
	} else {
		logger.Warn("STRIPE_API_KEY not set; real-money purchases are disabled")
	}
	gameSvc := game.NewService(gameStore, logger, opts)

	if cfg.SeedCatalog {
		if err := gameSvc.SeedDefaults(ctx); err != nil {
			logger.Error("seed defaults failed", "err", err)
			os.Exit(1)
		}
	}

	deps := api.Deps{Game: gameSvc, Metrics: m, Health: backend}
	if cfg.SupabaseURL != "" {
		supabase := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		deps.Verifier = supabase
		deps.Accounts = supabase
	}
	if cfg.SupabaseJWTSecret != "" {
		deps.Verifier = auth.NewJWTVerifier(cfg.SupabaseJWTSecret)
	}

	server := api.New(cfg, logger, deps)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("quarantine api listening", "addr", cfg.Addr, "payments", gameSvc.PaymentsEnabled())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
