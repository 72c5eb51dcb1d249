// Package ratelimit paces requests to the TMDb API.
//
// Two mechanisms exist. The Pacer applies a fixed delay after every fetched
// key and is always on; it is the safe baseline the fetchers rely on. The
// Limiter is an optional token bucket consulted before every HTTP request.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	pacerPausesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_pacer_pauses_total",
		Help: "Total number of fixed inter-request pauses by job",
	}, []string{"job"})

	pacerPauseSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_pacer_pause_seconds_total",
		Help: "Total time spent in fixed inter-request pauses by job",
	}, []string{"job"})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tmdb_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a token bucket slot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer applies a fixed delay between requests of one job.
type Pacer struct {
	job   string
	delay time.Duration
	sleep SleepFunc
}

// NewPacer creates a pacer for job that waits delay on every Pause.
func NewPacer(job string, delay time.Duration) *Pacer {
	return &Pacer{job: job, delay: delay, sleep: Sleep}
}

// WithSleepFunc replaces the wait implementation (tests count pauses with it).
func (p *Pacer) WithSleepFunc(fn SleepFunc) *Pacer {
	p.sleep = fn
	return p
}

// Delay returns the configured pause length.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Pause waits for the configured delay.
func (p *Pacer) Pause(ctx context.Context) error {
	pacerPausesTotal.WithLabelValues(p.job).Inc()
	pacerPauseSeconds.WithLabelValues(p.job).Add(p.delay.Seconds())
	return p.sleep(ctx, p.delay)
}

// Limiter is an optional token bucket shared by all requests of a client.
// A nil *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter returns a limiter allowing rps requests per second with a burst
// of one, or nil when rps is not positive.
func NewLimiter(rps float64) *Limiter {
	if rps <= 0 {
		return nil
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until a request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	start := time.Now()
	err := l.limiter.Wait(ctx)
	limiterWaitSeconds.Observe(time.Since(start).Seconds())
	return err
}
