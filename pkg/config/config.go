package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	Environment string

	// Anonymization salt for similarity tokens. Operators must set this;
	// an empty salt downgrades org tokens to unkeyed hashes.
	AnonTokenSalt string

	// Legislation register feed
	FeedBaseURL   string
	FeedRateLimit float64
	FeedTimeout   time.Duration

	// Screening pipeline
	PipelineInterval      time.Duration
	PipelineBatchSize     int
	PipelineMaxConcurrent int
	SnapshotTTL           time.Duration
	StaleAfter            time.Duration

	// Matching
	SimilarityThreshold float64
	SimilarityLimit     int

	// Security configuration
	AllowedOrigins  string
	TrustedProxies  string
	EnableRateLimit bool
	MaxRequestSize  int64
}

// New creates a new configuration instance from environment variables
func New() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		AnonTokenSalt: getEnv("ANON_TOKEN_SALT", ""),

		FeedBaseURL:   getEnv("FEED_BASE_URL", "https://www.legislation.gov.uk"),
		FeedRateLimit: getEnvAsFloat("FEED_RATE_LIMIT", 2.0),
		FeedTimeout:   getEnvAsDuration("FEED_TIMEOUT", 30*time.Second),

		PipelineInterval:      getEnvAsDuration("PIPELINE_INTERVAL", 6*time.Hour),
		PipelineBatchSize:     getEnvAsInt("PIPELINE_BATCH_SIZE", 50),
		PipelineMaxConcurrent: getEnvAsInt("PIPELINE_MAX_CONCURRENT", 4),
		SnapshotTTL:           getEnvAsDuration("SNAPSHOT_TTL", 15*time.Minute),
		StaleAfter:            getEnvAsDuration("STALE_AFTER", 24*time.Hour),

		SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.8),
		SimilarityLimit:     getEnvAsInt("SIMILARITY_LIMIT", 3),

		// Security configuration
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", ""),
		TrustedProxies:  getEnv("TRUSTED_PROXIES", ""),
		EnableRateLimit: getEnv("ENABLE_RATE_LIMIT", "true") == "true",
		MaxRequestSize:  getEnvAsInt64("MAX_REQUEST_SIZE", 10*1024*1024), // 10MB default
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasTokenSalt returns true if an anonymization salt is configured
func (c *Config) HasTokenSalt() bool {
	return c.AnonTokenSalt != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetAllowedOrigins returns a slice of allowed CORS origins
func (c *Config) GetAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	return strings.Split(c.AllowedOrigins, ",")
}

// GetTrustedProxies returns a slice of trusted proxy IPs
func (c *Config) GetTrustedProxies() []string {
	if c.TrustedProxies == "" {
		return []string{} // No trusted proxies by default
	}
	return strings.Split(c.TrustedProxies, ",")
}

// IsSecurityEnabled returns true if security features should be enabled
func (c *Config) IsSecurityEnabled() bool {
	return c.IsProduction() || getEnv("ENABLE_SECURITY", "false") == "true"
}
