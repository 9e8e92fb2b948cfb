package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animal_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the initial one.
	MaxRetries int

	// BackoffBase is the wait before the first retry; it doubles per attempt.
	BackoffBase time.Duration

	// BackoffCap is the maximum wait between attempts.
	BackoffCap time.Duration
}

// DefaultRetryConfig returns the default retry configuration: five retries
// with waits of 1s, 2s, 4s, 8s, 16s. The cap lets the loop sit out upstream
// pauses in the 5-15s range without exhausting the budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  5,
		BackoffBase: 1 * time.Second,
		BackoffCap:  16 * time.Second,
	}
}

// backoffFor returns the wait before retry number attempt (0-based):
// min(base * 2^attempt, cap).
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	backoff := c.BackoffBase << uint(attempt)
	if backoff > c.BackoffCap || backoff <= 0 {
		backoff = c.BackoffCap
	}
	return backoff
}

// retryWithBackoff executes fn until it succeeds, fails with a non-retryable
// error, or the retry budget is exhausted. Each attempt's outcome is an
// explicit error value: nil ends the loop, a retryable UpstreamError triggers
// a capped exponential backoff, anything else is returned as-is. Exhaustion
// is reported as ErrUpstreamUnavailable wrapping the last attempt error.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		if !isRetryable(err) {
			return err
		}
		lastErr = err

		if attempt >= config.MaxRetries {
			break
		}

		class := errorClassOf(err)
		backoff := config.backoffFor(attempt)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Int("max_retries", config.MaxRetries).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(backoff):
		}
	}

	class := errorClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Error().
		Err(lastErr).
		Int("max_retries", config.MaxRetries).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrUpstreamUnavailable, config.MaxRetries+1, lastErr)
}

// errorClassOf extracts the classification from an attempt error.
func errorClassOf(err error) ErrorClass {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.ErrorClass
	}
	return ErrorClassNetwork
}
