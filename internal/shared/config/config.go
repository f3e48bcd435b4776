package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var plaidBaseURLs = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

type Config struct {
	Env        string
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Plaid      PlaidConfig
	Refresh    RefreshConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AdminUserIDs []int64
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

type PlaidConfig struct {
	ClientID          string
	Secret            string
	Env               string
	BaseURL           string
	PageSize          int
	RequestsPerSecond float64
}

type RefreshConfig struct {
	Enabled           bool
	IntervalHours     int
	WorkerCount       int
	Attempts          int
	BackoffBase       time.Duration
	SettleDelay       time.Duration
	InitializeOnStart bool
	FanOutConcurrency int
	QueueRetain       int
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

// Load reads configuration from the environment, after merging an optional .env file.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	pageSize, err := strconv.Atoi(getEnv("PLAID_SYNC_PAGE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLAID_SYNC_PAGE_SIZE: %w", err)
	}
	rps, err := strconv.ParseFloat(getEnv("PLAID_REQUESTS_PER_SECOND", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PLAID_REQUESTS_PER_SECOND: %w", err)
	}

	intervalHours, err := strconv.Atoi(getEnv("REFRESH_INTERVAL_HOURS", "12"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL_HOURS: %w", err)
	}
	workers, err := strconv.Atoi(getEnv("REFRESH_WORKERS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_WORKERS: %w", err)
	}
	attempts, err := strconv.Atoi(getEnv("REFRESH_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_ATTEMPTS: %w", err)
	}
	backoffBase, err := time.ParseDuration(getEnv("REFRESH_BACKOFF_BASE", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_BACKOFF_BASE: %w", err)
	}
	settleDelay, err := time.ParseDuration(getEnv("REFRESH_SETTLE_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_SETTLE_DELAY: %w", err)
	}
	fanOut, err := strconv.Atoi(getEnv("REFRESH_FANOUT_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_FANOUT_CONCURRENCY: %w", err)
	}

	queueRetain, err := strconv.Atoi(getEnv("REFRESH_QUEUE_RETAIN", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_QUEUE_RETAIN: %w", err)
	}

	adminIDs, err := parseIDList(getEnv("ADMIN_USER_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_USER_IDS: %w", err)
	}

	plaidEnv := strings.ToLower(getEnv("PLAID_ENV", "sandbox"))
	plaidBaseURL := getEnv("PLAID_BASE_URL", plaidBaseURLs[plaidEnv])

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AdminUserIDs: adminIDs,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "spendsync"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "spendsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Plaid: PlaidConfig{
			ClientID:          getEnv("PLAID_CLIENT_ID", ""),
			Secret:            getEnv("PLAID_SECRET", ""),
			Env:               plaidEnv,
			BaseURL:           plaidBaseURL,
			PageSize:          pageSize,
			RequestsPerSecond: rps,
		},
		Refresh: RefreshConfig{
			Enabled:           getBoolEnv("REFRESH_ENABLED", true),
			IntervalHours:     intervalHours,
			WorkerCount:       workers,
			Attempts:          attempts,
			BackoffBase:       backoffBase,
			SettleDelay:       settleDelay,
			InitializeOnStart: getBoolEnv("REFRESH_INITIALIZE_ON_START", true),
			FanOutConcurrency: fanOut,
			QueueRetain:       queueRetain,
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "spendsync-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}
	if cfg.Plaid.BaseURL == "" {
		return nil, fmt.Errorf("unknown PLAID_ENV %q", plaidEnv)
	}
	if cfg.Plaid.PageSize < 1 || cfg.Plaid.PageSize > 500 {
		return nil, fmt.Errorf("PLAID_SYNC_PAGE_SIZE must be between 1 and 500")
	}
	if cfg.Refresh.IntervalHours <= 0 {
		return nil, fmt.Errorf("REFRESH_INTERVAL_HOURS must be positive")
	}
	if cfg.Refresh.Attempts < 1 {
		return nil, fmt.Errorf("REFRESH_ATTEMPTS must be at least 1")
	}
	if cfg.Refresh.WorkerCount < 1 {
		return nil, fmt.Errorf("REFRESH_WORKERS must be at least 1")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database address in URL form, as expected by the migration tool.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
