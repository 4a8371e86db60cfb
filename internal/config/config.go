package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr              string        `env:"QUARANTINE_API_ADDR" envDefault:":8080"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxConns        int32         `env:"QUARANTINE_DB_MAX_CONNS" envDefault:"20"`
	DBMinConns        int32         `env:"QUARANTINE_DB_MIN_CONNS" envDefault:"2"`
	SupabaseURL       string        `env:"SUPABASE_URL"`
	SupabaseAnonKey   string        `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string        `env:"SUPABASE_JWT_SECRET"`
	StripeAPIKey      string        `env:"STRIPE_API_KEY"`
	StripeWebhookKey  string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripeCurrency    string        `env:"STRIPE_CURRENCY" envDefault:"usd"`
	PublicURL         string        `env:"QUARANTINE_PUBLIC_URL"`
	CORSOrigins       []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:5174"`
	RedisURL          string        `env:"REDIS_URL"`
	CatalogCacheTTL   time.Duration `env:"QUARANTINE_CATALOG_CACHE_TTL" envDefault:"5m"`
	StoreTimeout      time.Duration `env:"QUARANTINE_STORE_TIMEOUT" envDefault:"5s"`
	PaymentTimeout    time.Duration `env:"QUARANTINE_PAYMENT_TIMEOUT" envDefault:"20s"`
	SeedCatalog       bool          `env:"QUARANTINE_SEED_CATALOG" envDefault:"true"`
	LogLevel          string        `env:"QUARANTINE_LOG_LEVEL" envDefault:"info"`
}

type CLIConfig struct {
	APIBaseURL string `env:"QG_API_BASE_URL" envDefault:"http://localhost:8080"`
}

// loadDotEnv reads .env from the working directory if present. Values
// already in the environment win.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func LoadAPIFromEnv() (APIConfig, error) {
	if err := loadDotEnv(); err != nil {
		return APIConfig{}, err
	}
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.SupabaseAnonKey = strings.TrimSpace(cfg.SupabaseAnonKey)
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	cfg.StripeCurrency = strings.ToLower(strings.TrimSpace(cfg.StripeCurrency))
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SupabaseJWTSecret == "" {
		if cfg.SupabaseURL == "" {
			return cfg, fmt.Errorf("SUPABASE_URL is required")
		}
		if cfg.SupabaseAnonKey == "" {
			return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
		}
	}
	if cfg.StripeAPIKey != "" && cfg.StripeWebhookKey == "" {
		slog.Warn("STRIPE_WEBHOOK_SECRET is empty; payment webhooks will be rejected")
	}
	return cfg, nil
}

// MigrateConfig is the subset the schema migrator needs.
type MigrateConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	SeedCatalog bool   `env:"QUARANTINE_SEED_CATALOG" envDefault:"true"`
	LogLevel    string `env:"QUARANTINE_LOG_LEVEL" envDefault:"info"`
}

func LoadMigrateFromEnv() (MigrateConfig, error) {
	if err := loadDotEnv(); err != nil {
		return MigrateConfig{}, err
	}
	var cfg MigrateConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	_ = loadDotEnv()
	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

// SlogLevel maps a level name to slog; unknown names mean info.
func SlogLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
