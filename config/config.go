package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Browser engines.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreBackend string

	SupabaseURL string
	SupabaseKey string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SQLitePath string

	BackendTimeout time.Duration
	ScraperTimeout time.Duration

	Headless      bool
	BrowserEngine string
	ChromeBin     string
	UserAgent     string

	InsertMaxAttempts int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	MaxConcurrency int
	RateLimit      time.Duration

	GoogleAPIKey string
	GoogleCSEID  string

	LogLevel    string
	RawCSVPath  string
	MetricsAddr string
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Load reads the .env file, if any, and returns a populated Config struct.
// dotenv reports whether a .env file was found.
func Load() (cfg *Config, dotenv bool) {
	dotenv = godotenv.Load() == nil
	return FromEnv(), dotenv
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	supabaseKey := getEnv("SUPABASE_KEY", "")
	if supabaseKey == "" {
		supabaseKey = getEnv("SUPABASE_ANON_KEY", "")
	}

	return &Config{
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendSupabase)),

		SupabaseURL: strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseKey: supabaseKey,

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "infortic"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getEnv("SQLITE_PATH", "./output/infortic.db"),

		BackendTimeout: time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 30)) * time.Second,
		ScraperTimeout: time.Duration(getEnvInt("SCRAPER_TIMEOUT_SECONDS", 30)) * time.Second,

		Headless:      getEnvBool("HEADLESS", true),
		BrowserEngine: strings.ToLower(getEnv("BROWSER_ENGINE", EngineChromedp)),
		ChromeBin:     getEnv("CHROME_BIN", ""),
		UserAgent:     getEnv("USER_AGENT", defaultUserAgent),

		InsertMaxAttempts: getEnvInt("INSERT_MAX_ATTEMPTS", 4),
		RetryBaseDelay:    time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 500)) * time.Millisecond,
		RetryMaxDelay:     time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 8000)) * time.Millisecond,

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimit:      time.Duration(getEnvInt("RATE_LIMIT_MS", 1000)) * time.Millisecond,

		GoogleAPIKey: getEnv("GOOGLE_API_KEY", ""),
		GoogleCSEID:  getEnv("GOOGLE_CSE_ID", ""),

		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		RawCSVPath:  getEnv("RAW_CSV_PATH", ""),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// SearchEnabled reports whether Google Custom Search credentials are set.
func (c *Config) SearchEnabled() bool {
	return c.GoogleAPIKey != "" && c.GoogleCSEID != ""
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required for the supabase backend")
		}
		parsed, err := url.Parse(c.SupabaseURL)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("invalid SUPABASE_URL %q", c.SupabaseURL)
		}
		if c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_KEY is required for the supabase backend")
		}
	case BackendPostgres:
		if c.PostgresHost == "" || c.PostgresDB == "" {
			return fmt.Errorf("postgres host and database cannot be empty")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("store backend must be supabase, postgres, or sqlite (got %q)", c.StoreBackend)
	}

	if c.BrowserEngine != EngineChromedp && c.BrowserEngine != EngineRod {
		return fmt.Errorf("browser engine must be chromedp or rod (got %q)", c.BrowserEngine)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	if c.ScraperTimeout <= 0 {
		return fmt.Errorf("scraper timeout must be positive")
	}
	if c.InsertMaxAttempts <= 0 {
		return fmt.Errorf("insert max attempts must be positive")
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}
	if c.RetryMaxDelay > 0 && c.RetryBaseDelay > c.RetryMaxDelay {
		return fmt.Errorf("retry base delay (%s) cannot exceed retry max delay (%s)", c.RetryBaseDelay, c.RetryMaxDelay)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
