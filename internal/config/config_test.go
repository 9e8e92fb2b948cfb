package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.UpstreamBaseURL != "http://localhost:3123" {
		t.Errorf("UpstreamBaseURL = %q", cfg.UpstreamBaseURL)
	}
	if cfg.SinkBaseURL != cfg.UpstreamBaseURL {
		t.Errorf("SinkBaseURL = %q, want upstream default", cfg.SinkBaseURL)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.FetchConcurrency != 10 {
		t.Errorf("FetchConcurrency = %d, want 10", cfg.FetchConcurrency)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.BackoffCap != 16*time.Second {
		t.Errorf("BackoffCap = %v, want 16s", cfg.BackoffCap)
	}
	if cfg.RequestTimeout != 20*time.Second {
		t.Errorf("RequestTimeout = %v, want 20s", cfg.RequestTimeout)
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ANIMALS_UPSTREAM_URL", "http://animals.internal:3123")
	t.Setenv("ANIMALS_SINK_URL", "http://sink.internal:3123")
	t.Setenv("PORT", "9090")
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("FETCH_CONCURRENCY", "4")
	t.Setenv("MAX_RETRIES", "2")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_PRETTY", "true")

	cfg := Load()

	if cfg.UpstreamBaseURL != "http://animals.internal:3123" {
		t.Errorf("UpstreamBaseURL = %q", cfg.UpstreamBaseURL)
	}
	if cfg.SinkBaseURL != "http://sink.internal:3123" {
		t.Errorf("SinkBaseURL = %q", cfg.SinkBaseURL)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.FetchConcurrency != 4 {
		t.Errorf("FetchConcurrency = %d, want 4", cfg.FetchConcurrency)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty should be true")
	}
}

func TestLoad_SinkDefaultsToUpstream(t *testing.T) {
	t.Setenv("ANIMALS_UPSTREAM_URL", "http://animals.internal:3123")

	cfg := Load()
	if cfg.SinkBaseURL != "http://animals.internal:3123" {
		t.Errorf("SinkBaseURL = %q, want upstream", cfg.SinkBaseURL)
	}
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")

	cfg := Load()
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want default 100", cfg.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	valid := Load()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: true},
		{name: "batch size over receiver limit", mutate: func(c *Config) { c.BatchSize = MaxBatchPerRequest + 1 }, wantErr: true},
		{name: "batch size at receiver limit", mutate: func(c *Config) { c.BatchSize = MaxBatchPerRequest }, wantErr: false},
		{name: "zero concurrency", mutate: func(c *Config) { c.FetchConcurrency = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }, wantErr: true},
		{name: "zero retries allowed", mutate: func(c *Config) { c.MaxRetries = 0 }, wantErr: false},
		{name: "missing upstream", mutate: func(c *Config) { c.UpstreamBaseURL = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Expected ErrInvalidConfig, got %v", err)
				}
			} else if err != nil {
				t.Errorf("Validate returned unexpected error: %v", err)
			}
		})
	}
}
