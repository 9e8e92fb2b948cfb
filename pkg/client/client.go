// Package client provides the retrying HTTP primitives for the animal ETL:
// a fetcher for upstream reads and a poster for downstream batch submission.
//
// All network access of the pipeline goes through this package. Transient
// server errors (500, 502, 503, 504) and connection/timeout failures are
// retried with capped exponential backoff; 404 and other client errors fail
// fast. Calls never mutate shared state beyond the connection pool.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/animal-etl/pkg/logging"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_requests_total",
		Help: "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animal_request_duration_seconds",
		Help:    "HTTP request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_errors_total",
		Help: "Total request errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent on every request.
	UserAgent string

	// Retry policy shared by fetches and batch posts.
	Retry RetryConfig

	// RequestTimeout bounds a single attempt, not the whole retried call.
	RequestTimeout time.Duration

	// MaxConnsPerHost sizes the connection pool. Must comfortably exceed
	// the fetch concurrency cap so the pool never queues beneath it.
	MaxConnsPerHost int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:       "animal-etl/1.0.0",
		Retry:           DefaultRetryConfig(),
		RequestTimeout:  20 * time.Second,
		MaxConnsPerHost: 50,
	}
}

// Client issues retrying HTTP requests against the upstream and downstream hosts.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BackoffBase <= 0 {
		cfg.Retry.BackoffBase = DefaultRetryConfig().BackoffBase
	}
	if cfg.Retry.BackoffCap <= 0 {
		cfg.Retry.BackoffCap = DefaultRetryConfig().BackoffCap
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = DefaultConfig().MaxConnsPerHost
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		config: cfg,
		logger: logging.NewLogger("client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Get fetches url and decodes the JSON body into v.
//
// A 404 returns ErrNotFound without retrying. Transient server errors and
// network failures are retried per the configured policy; exhaustion returns
// ErrUpstreamUnavailable wrapping the last attempt error.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return retryWithBackoff(ctx, c.logger, c.config.Retry, func() error {
		return c.attemptGet(ctx, url, v)
	})
}

func (c *Client) attemptGet(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(http.MethodGet).Observe(time.Since(start).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(http.MethodGet, "network_error").Inc()
		return &UpstreamError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(http.MethodGet, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound

	case retryableStatus(resp.StatusCode):
		errorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    resp.Status,
		}

	default:
		errorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
		return &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    resp.Status,
		}
	}
}

// PostBatch submits batch as one JSON request to url.
//
// Any 2xx is success. 4xx responses are a fatal ErrRejected and are not
// retried; transient server errors and network failures follow the same
// backoff policy as Get. The batch is never split across requests.
func (c *Client) PostBatch(ctx context.Context, url string, batch any) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	return retryWithBackoff(ctx, c.logger, c.config.Retry, func() error {
		return c.attemptPost(ctx, url, body)
	})
}

func (c *Client) attemptPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(http.MethodPost).Observe(time.Since(start).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(http.MethodPost, "network_error").Inc()
		return &UpstreamError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(http.MethodPost, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case retryableStatus(resp.StatusCode):
		errorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    resp.Status,
		}

	default:
		errorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
}
