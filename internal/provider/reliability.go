package provider

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrCircuitOpen surfaces when the breaker has tripped and is refusing
	// calls to the upstream model.
	ErrCircuitOpen = errors.New("image provider circuit breaker is open")
	// ErrMaxRetries surfaces when every retry attempt failed.
	ErrMaxRetries = errors.New("image provider max retries exceeded")
)

// retryConfig configures exponential backoff for upstream calls.
type retryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		MaxRetries:   2,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0,
	}
}

// retryWithResult executes fn with exponential backoff, retrying only
// errors classifyProviderError marks retryable.
func retryWithResult[T any](ctx context.Context, cfg retryConfig, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !classifyProviderError(lastErr.Error()).Retryable {
			return result, lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		jitter := 1.0 + (rand.Float64()*2-1)*cfg.Jitter
		actualDelay := time.Duration(float64(delay) * jitter)
		if actualDelay > cfg.MaxDelay {
			actualDelay = cfg.MaxDelay
		}

		timer := time.NewTimer(actualDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	return result, ErrMaxRetries
}

// newBreaker builds the single named circuit breaker guarding the
// upstream image-generation model.
func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "image-provider",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})
}
