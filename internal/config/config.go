package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	StoreBackendSQLite   = "sqlite"
	StoreBackendPostgres = "postgres"
)

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds everything the dashboard companion reads from the environment at startup
type Config struct {
	AppEnv     string
	ListenPort string

	// Remote activity service
	APIBaseURL      string
	APIToken        string
	RemoteTimeout   time.Duration
	RemoteRateRPS   float64
	RemoteRateBurst int

	// Local store
	StoreBackend string
	StorePath    string
	PGHost       string
	PGPort       string
	PGUser       string
	PGDB         string
	PGPassword   string

	// Detail cache
	CacheBackend  string
	CacheTTL      time.Duration
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Feed / sync tuning
	FeedPageLimit       int
	SyncPageSize        int
	PrefetchThresholdPx int
}

// Load reads the configuration from environment variables, falling back to defaults
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		ListenPort:    getEnv("LISTEN_PORT", "8080"),
		APIBaseURL:    strings.TrimRight(getEnv("ACTIVITY_API_BASE_URL", "http://localhost:8000"), "/"),
		APIToken:      os.Getenv("ACTIVITY_API_TOKEN"),
		StoreBackend:  getEnv("STORE_BACKEND", StoreBackendSQLite),
		StorePath:     getEnv("STORE_PATH", "fit_analyse.db"),
		PGHost:        os.Getenv("PG_HOST"),
		PGPort:        getEnv("PG_PORT", "5432"),
		PGUser:        os.Getenv("PG_USER"),
		PGDB:          os.Getenv("PG_DB"),
		PGPassword:    os.Getenv("PG_PASSWORD"),
		CacheBackend:  getEnv("CACHE_BACKEND", CacheBackendMemory),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	var err error
	if cfg.FeedPageLimit, err = getInt("FEED_PAGE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.SyncPageSize, err = getInt("SYNC_PAGE_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.PrefetchThresholdPx, err = getInt("FEED_PREFETCH_THRESHOLD_PX", 100); err != nil {
		return nil, err
	}
	if cfg.RemoteRateBurst, err = getInt("REMOTE_RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	rps, err := strconv.ParseFloat(getEnv("REMOTE_RATE_LIMIT_RPS", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid REMOTE_RATE_LIMIT_RPS: %w", err)
	}
	cfg.RemoteRateRPS = rps

	if cfg.RemoteTimeout, err = time.ParseDuration(getEnv("REMOTE_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("invalid REMOTE_TIMEOUT: %w", err)
	}
	if cfg.CacheTTL, err = time.ParseDuration(getEnv("CACHE_TTL", "10m")); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum values and page sizes
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendSQLite, StoreBackendPostgres:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.FeedPageLimit <= 0 {
		return fmt.Errorf("FEED_PAGE_LIMIT must be positive, got %d", c.FeedPageLimit)
	}
	// The drain should use fewer round trips than the UI feed
	if c.SyncPageSize < c.FeedPageLimit {
		return fmt.Errorf("SYNC_PAGE_SIZE (%d) must not be smaller than FEED_PAGE_LIMIT (%d)", c.SyncPageSize, c.FeedPageLimit)
	}
	return nil
}

// PostgresDSN builds the DSN the same way for GORM and sqlx
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDB)
}

// RedisAddr returns host:port for the Redis cache backend
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
