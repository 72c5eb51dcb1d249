package client

import (
	"context"
	"fmt"
	"time"

	"github.com/RajVeer36399/tmdb-proxy/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	tmdbRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	tmdbRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryPolicy is a bounded, fixed-delay retry policy.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int

	// Delay is the wait between two attempts. There is no wait after the
	// last attempt.
	Delay time.Duration
}

// DefaultRetryPolicy returns 3 attempts 250ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delay:    250 * time.Millisecond,
	}
}

// Retry calls fn until it succeeds or policy.Attempts calls failed, and
// returns the number of calls made. Every failure is treated as transient.
// The logger carried by ctx (zerolog.Ctx) receives one line per failed
// attempt.
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) (int, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := zerolog.Ctx(ctx)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctxErr)
		}

		errClass := ClassOf(err)
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Str("error_class", string(errClass)).
			Msg("Attempt failed")

		// If this was the last attempt, don't wait
		if attempt >= attempts {
			break
		}

		tmdbRetriesTotal.WithLabelValues(string(errClass)).Inc()
		logger.Debug().
			Int("attempt", attempt).
			Dur("delay", policy.Delay).
			Msg("Retrying after delay")

		if err := ratelimit.Sleep(ctx, policy.Delay); err != nil {
			logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry delay")
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	tmdbRetryExhaustedTotal.WithLabelValues(string(ClassOf(lastErr))).Inc()
	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
