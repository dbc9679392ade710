// Package retry implements the backoff/retry pattern the teacher's gcpclient
// package used ad hoc, generalized so the premium embedders and the answer
// generator's LLM clients share one retry policy instead of each
// reimplementing it. The web search providers do not use it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrExhausted is returned when all retries are spent on a retryable error.
var ErrExhausted = errors.New("retries exhausted: the upstream provider is still failing")

var schedule = struct {
	delays  []time.Duration
	ceiling time.Duration
}{
	delays:  []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
	ceiling: 4 * time.Second,
}

// Retryable reports whether an error looks like a transient rate-limit or
// availability failure worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "UNAVAILABLE")
}

// RetryableStatus reports whether an HTTP status code warrants a retry.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// Do executes fn, retrying on Retryable errors with the 500ms/1000ms/2000ms
// backoff schedule (4s ceiling), logging each attempt under operation.
func Do[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !Retryable(err) {
		return result, err
	}

	for i, delay := range schedule.delays {
		if delay > schedule.ceiling {
			delay = schedule.ceiling
		}
		slog.Warn("retrying after transient failure",
			"operation", operation, "attempt", i+2, "delay_ms", delay.Milliseconds(), "error", err.Error())

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !Retryable(err) {
			return result, err
		}
	}

	var zero T
	slog.Error("retries exhausted", "operation", operation, "attempts", len(schedule.delays)+1)
	return zero, ErrExhausted
}
