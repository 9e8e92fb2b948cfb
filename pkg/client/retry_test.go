package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:  maxRetries,
		BackoffBase: 1 * time.Millisecond,
		BackoffCap:  16 * time.Millisecond,
	}
}

func serverErr() error {
	return &UpstreamError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "503 Service Unavailable"}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.BackoffBase != 1*time.Second {
		t.Errorf("BackoffBase = %v, want 1s", config.BackoffBase)
	}
	if config.BackoffCap != 16*time.Second {
		t.Errorf("BackoffCap = %v, want 16s", config.BackoffCap)
	}
}

func TestBackoffFor_DoublesAndCaps(t *testing.T) {
	config := DefaultRetryConfig()

	wants := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		16 * time.Second, // capped
		16 * time.Second,
	}

	for attempt, want := range wants {
		if got := config.backoffFor(attempt); got != want {
			t.Errorf("backoffFor(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestBackoffFor_OverflowHitsCap(t *testing.T) {
	config := DefaultRetryConfig()

	// Shifts large enough to overflow must still return the cap.
	if got := config.backoffFor(63); got != config.BackoffCap {
		t.Errorf("backoffFor(63) = %v, want %v", got, config.BackoffCap)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), testRetryConfig(5), func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), testRetryConfig(5), func() error {
		callCount++
		if callCount < 3 {
			return serverErr()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), testRetryConfig(5), func() error {
		callCount++
		return serverErr()
	})

	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
	}
	// Initial attempt plus MaxRetries additional attempts.
	if callCount != 6 {
		t.Errorf("Expected 6 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_NonRetryableReturnsImmediately(t *testing.T) {
	testErr := errors.New("decode failed")
	callCount := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), testRetryConfig(5), func() error {
		callCount++
		return testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", callCount)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		t.Error("Non-retryable errors must not be reported as exhaustion")
	}
}

func TestRetryWithBackoff_ClientErrorNotRetried(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), testRetryConfig(5), func() error {
		callCount++
		return &UpstreamError{StatusCode: 400, ErrorClass: ErrorClassClient, Message: "400 Bad Request"}
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != 400 {
		t.Errorf("Expected the client UpstreamError back, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	config := RetryConfig{MaxRetries: 5, BackoffBase: 100 * time.Millisecond, BackoffCap: time.Second}

	callCount := 0
	err := retryWithBackoff(ctx, zerolog.Nop(), config, func() error {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return serverErr()
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_WaitsBetweenAttempts(t *testing.T) {
	config := RetryConfig{MaxRetries: 2, BackoffBase: 20 * time.Millisecond, BackoffCap: 160 * time.Millisecond}

	start := time.Now()
	_ = retryWithBackoff(context.Background(), zerolog.Nop(), config, func() error {
		return serverErr()
	})
	elapsed := time.Since(start)

	// Two waits: 20ms then 40ms.
	if elapsed < 60*time.Millisecond {
		t.Errorf("Expected at least 60ms of backoff, got %v", elapsed)
	}
}

func TestRetryWithBackoff_ZeroRetries(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), testRetryConfig(0), func() error {
		callCount++
		return serverErr()
	})

	if callCount != 1 {
		t.Errorf("Expected exactly 1 call with MaxRetries=0, got %d", callCount)
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
	}
}
