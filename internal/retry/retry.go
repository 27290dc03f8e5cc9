// Package retry provides exponential-backoff retry helpers for the
// transports' idempotent read path: retryable failures are retried with
// exponential backoff up to a maximum elapsed time, permanent failures
// return immediately, and every retryable attempt is logged.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Default backoff parameters: 1s initial interval, 30s max interval, 10
// minutes max elapsed time, multiplier 2.
const (
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 30 * time.Second
	DefaultMaxElapsed      = 10 * time.Minute
)

// ErrMaxElapsedExceeded is wrapped into the last error returned by Do when
// the retry budget is exhausted before a non-retryable outcome is reached.
var ErrMaxElapsedExceeded = errors.New("retry: max elapsed time exceeded")

// IsRetryable reports whether an error returned by the retried function
// should trigger another attempt.
type IsRetryable func(error) bool

// Do invokes f, retrying with exponential backoff while isRetryable(err) is
// true, until f succeeds, isRetryable returns false, or the max elapsed
// time budget is exhausted. It blocks the calling goroutine; ctx cancellation
// stops the retry loop early.
func Do(ctx context.Context, logger *zap.Logger, f func() error, isRetryable IsRetryable) error {
	return doWithParams(ctx, logger, DefaultInitialInterval, DefaultMaxInterval, DefaultMaxElapsed, f, isRetryable)
}

func doWithParams(
	ctx context.Context,
	logger *zap.Logger,
	initialInterval, maxInterval, maxElapsed time.Duration,
	f func() error,
	isRetryable IsRetryable,
) error {
	start := time.Now()
	interval := initialInterval
	var lastErr error

	for {
		lastErr = f()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			if logger != nil {
				logger.Debug("encountered non-retryable error", zap.Error(lastErr))
			}
			return lastErr
		}
		if time.Since(start) >= maxElapsed {
			if logger != nil {
				logger.Info("retry budget exhausted", zap.Error(lastErr))
			}
			return errors.Join(lastErr, ErrMaxElapsedExceeded)
		}
		if logger != nil {
			logger.Info("encountered retryable error", zap.Error(lastErr), zap.Duration("next_interval", interval))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// NewHTTPClient returns an *http.Client whose transport retries idempotent
// requests with exponential backoff on connection errors and the retryable
// HTTP statuses (408, 429, 5xx). Used to configure both cloud transports'
// underlying SDK clients so every object read benefits from the same retry
// policy without each transport reimplementing it.
func NewHTTPClient(logger *zap.Logger) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryWaitMin = DefaultInitialInterval
	client.RetryWaitMax = DefaultMaxInterval
	client.RetryMax = 10
	client.Logger = nil
	if logger != nil {
		client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt > 0 {
				logger.Info("retrying http request",
					zap.String("method", req.Method),
					zap.String("url", req.URL.String()),
					zap.Int("attempt", attempt),
				)
			}
		}
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() == nil && err == nil && resp != nil && resp.StatusCode == http.StatusRequestTimeout {
			return true, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return client.StandardClient()
}
