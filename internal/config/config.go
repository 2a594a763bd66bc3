package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Data backends for the transactions store.
const (
	BackendSupabase = "supabase"
	BackendHTTP     = "http"
	BackendSQLite   = "sqlite"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Transactions store
	DataBackend        string
	TransactionsAPIURL string
	SQLiteDBPath       string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// JWT / Auth
	AuthEnabled bool
	JWTSecret   string

	// Reports
	ReportTimezone   string
	ReportTopN       int
	ReportMaxBuckets int
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:        strings.ToLower(getEnv("DATA_BACKEND", BackendSupabase)),
		TransactionsAPIURL: getEnv("TRANSACTIONS_API_URL", "http://localhost:8082"),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/transactions.db"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		AuthEnabled: getEnvBool("AUTH_ENABLED", false),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		ReportTimezone:   getEnv("REPORT_TIMEZONE", "UTC"),
		ReportTopN:       getEnvInt("REPORT_TOP_N", 5),
		ReportMaxBuckets: getEnvInt("REPORT_MAX_BUCKETS", 1000),
	}
}

// Location resolves ReportTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}

	switch c.DataBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			problems = append(problems, "SUPABASE_URL is required when DATA_BACKEND=supabase")
		} else if err := validateHTTPURL(c.SupabaseURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid SUPABASE_URL: %v", err))
		}
		if c.SupabaseAnonKey == "" || c.SupabaseServiceKey == "" {
			problems = append(problems, "SUPABASE_ANON_KEY and SUPABASE_SERVICE_ROLE_KEY are required when DATA_BACKEND=supabase")
		}
	case BackendHTTP:
		if err := validateHTTPURL(c.TransactionsAPIURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid TRANSACTIONS_API_URL: %v", err))
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLITE_DB_PATH cannot be empty when DATA_BACKEND=sqlite")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, []string{BackendSupabase, BackendHTTP, BackendSQLite}))
	}

	if c.HTTPTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid HTTP_TIMEOUT %v: must be positive", c.HTTPTimeout))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("invalid MAX_RETRIES %d: must not be negative", c.MaxRetries))
	}
	if c.MaxConcurrency < 1 {
		problems = append(problems, fmt.Sprintf("invalid MAX_CONCURRENCY %d: must be at least 1", c.MaxConcurrency))
	}
	if c.CacheTTL < 0 {
		problems = append(problems, fmt.Sprintf("invalid CACHE_TTL %v: must not be negative", c.CacheTTL))
	}

	if c.AuthEnabled && len(c.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 characters when AUTH_ENABLED=true")
	}

	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.ReportTopN < 1 {
		problems = append(problems, fmt.Sprintf("invalid REPORT_TOP_N %d: must be at least 1", c.ReportTopN))
	}
	if c.ReportMaxBuckets < 1 {
		problems = append(problems, fmt.Sprintf("invalid REPORT_MAX_BUCKETS %d: must be at least 1", c.ReportMaxBuckets))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
