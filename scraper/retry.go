package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// retryPolicy re-runs transient operations with exponential backoff.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics
	logger     *slog.Logger

	mu           sync.Mutex
	totalRetries int
}

func newRetryPolicy(maxRetries int, base, max time.Duration, metrics *Metrics, logger *slog.Logger) *retryPolicy {
	return &retryPolicy{
		maxRetries: maxRetries,
		base:       base,
		max:        max,
		metrics:    metrics,
		logger:     logger,
	}
}

// Do runs fn until it succeeds, ctx ends or retries are exhausted, and
// returns the last error.
func (rp *retryPolicy) Do(ctx context.Context, what string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt >= rp.maxRetries {
			return err
		}

		delay := rp.backoff(attempt + 1)
		rp.mu.Lock()
		rp.totalRetries++
		rp.mu.Unlock()
		rp.metrics.IncRetries()
		rp.logger.Warn("retrying",
			slog.String("operation", what),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (rp *retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if rp.max > 0 && delay > rp.max {
		delay = rp.max
	}
	return delay
}

// TotalRetries reports how many retries were scheduled.
func (rp *retryPolicy) TotalRetries() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.totalRetries
}
