package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port   string
	Env    string
	NodeID string

	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Quota enforcement. The window length and reset cadence are deployment
	// policy, not something the core infers.
	FreeMessageLimit int
	QuotaWindow      time.Duration
	FreeMaxFileBytes int64

	// Attachment presigning
	S3Bucket   string
	AWSRegion  string
	PresignTTL time.Duration

	// Session provisioning endpoints are gated by this key.
	InternalAPIKey string

	MaxConnections     int
	ShutdownGrace      time.Duration
	BusPublishAttempts int

	RateLimitWhitelist []string // IPs or CIDRs exempt from HTTP rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		NodeID:             getEnv("NODE_ID", defaultNodeID()),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		RedisURL:           os.Getenv("REDIS_URL"),
		FreeMessageLimit:   getEnvInt("FREE_MESSAGE_LIMIT", 50),
		QuotaWindow:        getEnvDuration("QUOTA_WINDOW", 24*time.Hour),
		FreeMaxFileBytes:   int64(getEnvInt("FREE_MAX_FILE_BYTES", 2*1024*1024)),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		PresignTTL:         getEnvDuration("PRESIGN_TTL", time.Hour),
		InternalAPIKey:     os.Getenv("INTERNAL_API_KEY"),
		MaxConnections:     getEnvInt("MAX_CONNECTIONS", 10000),
		ShutdownGrace:      getEnvDuration("SHUTDOWN_GRACE", 30*time.Second),
		BusPublishAttempts: getEnvInt("BUS_PUBLISH_ATTEMPTS", 3),
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// A zero or negative window would break the quota bucket arithmetic.
	if cfg.QuotaWindow <= 0 {
		cfg.QuotaWindow = 24 * time.Hour
	}

	// In production, require the external collaborators
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.InternalAPIKey == "" {
			panic("INTERNAL_API_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// defaultNodeID falls back to the hostname, which is unique enough inside a
// container scheduler.
func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "node-1"
	}
	return host
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
