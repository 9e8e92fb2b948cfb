// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrInvalidConfig is returned for malformed configuration. It is fatal at
// startup: a run never begins with an invalid config.
var ErrInvalidConfig = errors.New("invalid configuration")

// MaxBatchPerRequest is the largest batch the batch receiver accepts in one
// request; BatchSize may be configured lower but never higher.
const MaxBatchPerRequest = 100

// Config holds the full service configuration. It is assembled once at
// startup and passed explicitly to collaborators; nothing reads the
// environment after Load.
type Config struct {
	Port int

	// UpstreamBaseURL hosts the animal listing and record endpoints.
	UpstreamBaseURL string

	// SinkBaseURL hosts the batch receiver. Defaults to UpstreamBaseURL.
	SinkBaseURL string

	// BatchSize is the maximum records per submitted batch (B).
	BatchSize int

	// FetchConcurrency caps simultaneous record fetches (C).
	FetchConcurrency int

	// MaxRetries is the number of additional attempts after a failed request.
	MaxRetries int

	// BackoffCap bounds the exponential backoff between attempts.
	BackoffCap time.Duration

	// RequestTimeout bounds a single request attempt.
	RequestTimeout time.Duration

	// RedisURL enables the proxy read cache when non-empty.
	RedisURL string

	// CacheTTL is how long proxy responses stay cached.
	CacheTTL time.Duration

	LogLevel  string
	LogPretty bool
}

// Load reads the configuration from the environment, applying defaults.
func Load() Config {
	upstream := envStr("ANIMALS_UPSTREAM_URL", "http://localhost:3123")
	return Config{
		Port:             envInt("PORT", 8080),
		UpstreamBaseURL:  upstream,
		SinkBaseURL:      envStr("ANIMALS_SINK_URL", upstream),
		BatchSize:        envInt("BATCH_SIZE", 100),
		FetchConcurrency: envInt("FETCH_CONCURRENCY", 10),
		MaxRetries:       envInt("MAX_RETRIES", 5),
		BackoffCap:       time.Duration(envInt("BACKOFF_CAP_SECONDS", 16)) * time.Second,
		RequestTimeout:   time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", 20)) * time.Second,
		RedisURL:         envStr("REDIS_URL", ""),
		CacheTTL:         time.Duration(envInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		LogLevel:         envStr("LOG_LEVEL", "info"),
		LogPretty:        envBool("LOG_PRETTY", false),
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be >= 1 (got %d)", ErrInvalidConfig, c.BatchSize)
	}
	if c.BatchSize > MaxBatchPerRequest {
		return fmt.Errorf("%w: batch size must be <= %d (got %d)", ErrInvalidConfig, MaxBatchPerRequest, c.BatchSize)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("%w: fetch concurrency must be >= 1 (got %d)", ErrInvalidConfig, c.FetchConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0 (got %d)", ErrInvalidConfig, c.MaxRetries)
	}
	if c.UpstreamBaseURL == "" {
		return fmt.Errorf("%w: upstream base URL is required", ErrInvalidConfig)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
