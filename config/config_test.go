package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := FromEnv()
	cfg.StoreBackend = BackendSupabase
	cfg.SupabaseURL = "https://project.supabase.co"
	cfg.SupabaseKey = "anon-key"
	cfg.BrowserEngine = EngineChromedp
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(cfg *Config) { cfg.StoreBackend = "mysql" },
			wantErr: "store backend",
		},
		{
			name:    "missing supabase url",
			mutate:  func(cfg *Config) { cfg.SupabaseURL = "" },
			wantErr: "SUPABASE_URL",
		},
		{
			name:    "invalid supabase url",
			mutate:  func(cfg *Config) { cfg.SupabaseURL = "http://" },
			wantErr: "SUPABASE_URL",
		},
		{
			name:    "missing supabase key",
			mutate:  func(cfg *Config) { cfg.SupabaseKey = "" },
			wantErr: "SUPABASE_KEY",
		},
		{
			name:    "unknown browser engine",
			mutate:  func(cfg *Config) { cfg.BrowserEngine = "selenium" },
			wantErr: "browser engine",
		},
		{
			name:    "zero attempts",
			mutate:  func(cfg *Config) { cfg.InsertMaxAttempts = 0 },
			wantErr: "max attempts",
		},
		{
			name:    "negative scraper timeout",
			mutate:  func(cfg *Config) { cfg.ScraperTimeout = -1 * time.Second },
			wantErr: "scraper timeout",
		},
		{
			name: "base delay above max",
			mutate: func(cfg *Config) {
				cfg.RetryBaseDelay = 2 * time.Second
				cfg.RetryMaxDelay = time.Second
			},
			wantErr: "retry base delay",
		},
		{
			name:    "empty sqlite path",
			mutate:  func(cfg *Config) { cfg.StoreBackend = BackendSQLite; cfg.SQLitePath = "" },
			wantErr: "SQLITE_PATH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("config should validate, got %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("SUPABASE_KEY", "")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("INSERT_MAX_ATTEMPTS", "6")
	t.Setenv("HEADLESS", "false")
	t.Setenv("RATE_LIMIT_MS", "not-a-number")

	cfg := FromEnv()

	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendSQLite)
	}
	if cfg.SupabaseURL != "https://project.supabase.co" {
		t.Errorf("SupabaseURL = %q, trailing slash should be trimmed", cfg.SupabaseURL)
	}
	if cfg.SupabaseKey != "anon" {
		t.Errorf("SupabaseKey = %q, want anon key fallback", cfg.SupabaseKey)
	}
	if cfg.InsertMaxAttempts != 6 {
		t.Errorf("InsertMaxAttempts = %d, want 6", cfg.InsertMaxAttempts)
	}
	if cfg.Headless {
		t.Error("Headless should be false")
	}
	if cfg.RateLimit != time.Second {
		t.Errorf("RateLimit = %v, want default 1s for unparsable value", cfg.RateLimit)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: "5432", PostgresUser: "u",
		PostgresPassword: "p", PostgresDB: "infortic", PostgresSSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=infortic sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
