package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sitecrawler/internal/fetcher"
	"sitecrawler/pkg/types"
)

// RetryController wraps a fetcher with bounded retries of transient
// failures. Delay doubles on each attempt starting from initialDelay.
type RetryController struct {
	fetcher      fetcher.Fetcher
	maxRetries   int
	initialDelay time.Duration
	logger       *slog.Logger

	// sleep is swappable so tests can observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryController builds a retry wrapper. maxRetries counts attempts
// after the first one, so the total attempt budget is maxRetries+1.
func NewRetryController(f fetcher.Fetcher, maxRetries int, initialDelay time.Duration, logger *slog.Logger) *RetryController {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryController{
		fetcher:      f,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		logger:       logger,
		sleep:        sleepContext,
	}
}

// Fetch attempts the underlying fetch, retrying timeouts, network errors,
// unknown errors, and 5xx responses. Client errors and policy errors return
// immediately.
func (r *RetryController) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*types.FetchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries+1; attempt++ {
		result, err := r.fetcher.Fetch(ctx, rawURL, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var fe *types.FetchError
		if !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}
		if attempt > r.maxRetries {
			break
		}

		delay := r.initialDelay * time.Duration(1<<(attempt-1))
		r.logger.Debug("retrying fetch",
			"url", rawURL,
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"delay", delay.String(),
			"error", err,
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
