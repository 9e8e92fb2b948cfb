package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/animal-etl/internal/config"
	"github.com/Sternrassler/animal-etl/pkg/cache"
	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/etl"
	"github.com/Sternrassler/animal-etl/pkg/logging"
	"github.com/Sternrassler/animal-etl/pkg/server"
)

func main() {
	cfg := config.Load()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	httpClient, err := client.New(client.Config{
		UserAgent: "animal-etl/" + server.Version,
		Retry: client.RetryConfig{
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: 1 * time.Second,
			BackoffCap:  cfg.BackoffCap,
		},
		RequestTimeout:  cfg.RequestTimeout,
		MaxConnsPerHost: cfg.FetchConcurrency * 5,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create HTTP client")
	}

	runner, err := etl.NewRunner(httpClient, etl.Config{
		UpstreamBaseURL:  cfg.UpstreamBaseURL,
		SinkBaseURL:      cfg.SinkBaseURL,
		BatchSize:        cfg.BatchSize,
		FetchConcurrency: cfg.FetchConcurrency,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create ETL runner")
	}

	var store *cache.Store
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			logger.Fatal().Err(err).Str("redis", cfg.RedisURL).Msg("Failed to connect to Redis")
		}
		cancel()

		store = cache.New(redisClient, cfg.CacheTTL)
		logger.Info().Str("redis", cfg.RedisURL).Msg("Proxy cache enabled")
	}

	srv := server.New(httpClient, runner, store, server.Options{
		Port:            cfg.Port,
		UpstreamBaseURL: cfg.UpstreamBaseURL,
		BatchLimit:      config.MaxBatchPerRequest,
	})

	logger.Info().
		Int("port", cfg.Port).
		Str("upstream", cfg.UpstreamBaseURL).
		Str("sink", cfg.SinkBaseURL).
		Msg("animal-etl starting")

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}
