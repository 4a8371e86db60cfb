package config

import (
	"log/slog"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/quarantine")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("PORT", "")
}

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	setBaseEnv(t)
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr got %q", cfg.Addr)
	}
	if cfg.SupabaseURL != "https://example.supabase.co" {
		t.Fatalf("supabase url should be trimmed, got %q", cfg.SupabaseURL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Fatalf("cors origins got %v", cfg.CORSOrigins)
	}
	if cfg.StoreTimeout != 5*time.Second || cfg.PaymentTimeout != 20*time.Second {
		t.Fatalf("timeouts got %s %s", cfg.StoreTimeout, cfg.PaymentTimeout)
	}
	if cfg.StripeCurrency != "usd" || !cfg.SeedCatalog {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadAPIFromEnvPortOverride(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("QUARANTINE_API_ADDR", ":9000")
	t.Setenv("PORT", "3000")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":3000" {
		t.Fatalf("PORT should override addr, got %q", cfg.Addr)
	}
}

func TestLoadAPIFromEnvRequiresAuthSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SUPABASE_URL", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing SUPABASE_URL to fail")
	}
	t.Setenv("SUPABASE_JWT_SECRET", "local-secret")
	if _, err := LoadAPIFromEnv(); err != nil {
		t.Fatalf("jwt secret alone should be enough: %v", err)
	}
}

func TestLoadAPIFromEnvRequiresDatabase(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := SlogLevel(in); got != want {
			t.Fatalf("level %q got %v want %v", in, got, want)
		}
	}
}
