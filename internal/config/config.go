package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	AppEnv      string
	LogLevel    string
	LogFormat   string

	SyncPollInterval  time.Duration
	SchedulerInterval time.Duration
	SyncBatchSize     int
	MaxRetries        int
	RetryDelayBase    time.Duration
	RetryDelayMax     time.Duration
	ConnectorTimeout  time.Duration
	PullSyncInterval  time.Duration
	DefaultLookback   time.Duration
	FetchPageSize     int
	PushBatchSize     int
	ShutdownTimeout   time.Duration

	GenericConnectorCode string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		DatabaseURL:          dbURL,
		AppEnv:               getString("APP_ENV", "development"),
		LogLevel:             getString("LOG_LEVEL", "info"),
		LogFormat:            os.Getenv("LOG_FORMAT"),
		GenericConnectorCode: getString("GENERIC_CONNECTOR_CODE", "GENERIC_REST"),
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"SYNC_POLL_INTERVAL", 30 * time.Second, &cfg.SyncPollInterval},
		{"SCHEDULER_INTERVAL", 5 * time.Minute, &cfg.SchedulerInterval},
		{"RETRY_DELAY_BASE", time.Second, &cfg.RetryDelayBase},
		{"RETRY_DELAY_MAX", time.Hour, &cfg.RetryDelayMax},
		{"CONNECTOR_TIMEOUT", 2 * time.Minute, &cfg.ConnectorTimeout},
		{"PULL_SYNC_INTERVAL", 24 * time.Hour, &cfg.PullSyncInterval},
		{"DEFAULT_LOOKBACK", 30 * 24 * time.Hour, &cfg.DefaultLookback},
		{"SHUTDOWN_TIMEOUT", 30 * time.Second, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	// Counts must be at least 1.
	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"SYNC_BATCH_SIZE", 10, &cfg.SyncBatchSize},
		{"SYNC_MAX_RETRIES", 3, &cfg.MaxRetries},
		{"FETCH_PAGE_SIZE", 500, &cfg.FetchPageSize},
		{"PUSH_BATCH_SIZE", 100, &cfg.PushBatchSize},
	}
	for _, i := range ints {
		v, err := getPositiveInt(i.key, i.def)
		if err != nil {
			return nil, err
		}
		*i.dest = v
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getPositiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s: must be at least 1", key)
	}
	return n, nil
}
