// Package retry wraps fallible outbound calls with classified retries,
// exponential backoff with jitter, and explicit escalation to a terminal
// rate-limit error when the server demands a wait longer than the cap.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultJitter      = 250 * time.Millisecond
)

// Options configures Do. The zero value uses the package defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration

	// Test hooks. Nil means real clock, real sleep, real jitter.
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.jitter == nil {
		o.jitter = randomJitter
	}
	return o
}

// HTTPError carries an upstream HTTP failure with its response headers so the
// engine can classify it and honor server-provided wait hints.
type HTTPError struct {
	StatusCode int
	Header     http.Header
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// RateLimitError is the terminal error raised when a rate-limited call cannot
// be retried within the delay cap. RetryAfter is the wait the server asked for.
type RateLimitError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Cause)
}

func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRateLimited reports whether err carries a rate-limit signal: HTTP 429, or
// HTTP 403 with an exhausted rate-limit quota header.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if httpErr.StatusCode == http.StatusForbidden {
		remaining := strings.TrimSpace(httpErr.Header.Get("X-RateLimit-Remaining"))
		return remaining == "0"
	}
	return false
}

// IsRetryable reports whether err is worth another attempt: a rate-limit
// signal, a retryable HTTP status, or a transient network failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsRateLimited(err) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return retryableStatuses[httpErr.StatusCode]
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsNotFound
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// Do runs op, retrying classified transient failures with exponential backoff
// plus jitter. Server wait hints override the computed backoff. A rate-limited
// failure whose required wait exceeds MaxDelay, or that lands on the final
// attempt, terminates immediately with *RateLimitError.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	opts = opts.withDefaults()

	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}

		rateLimited := IsRateLimited(err)
		hint, hasHint := serverWait(err, opts.now())

		if rateLimited && hasHint && hint > opts.MaxDelay {
			return zero, &RateLimitError{RetryAfter: hint, Cause: err}
		}
		if attempt >= opts.MaxAttempts {
			if rateLimited {
				wait := hint
				if !hasHint {
					wait = opts.MaxDelay
				}
				return zero, &RateLimitError{RetryAfter: wait, Cause: err}
			}
			return zero, err
		}

		delay := opts.BaseDelay << (attempt - 1)
		if hasHint {
			delay = hint
		}
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		if opts.Jitter > 0 {
			delay += opts.jitter(opts.Jitter)
		}
		if err := opts.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// serverWait extracts the wait the server asked for. Retry-After takes
// precedence (integer seconds or an HTTP date); X-RateLimit-Reset is epoch
// seconds. Unparsable or absent headers yield (0, false).
func serverWait(err error, now time.Time) (time.Duration, bool) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Header == nil {
		return 0, false
	}

	if raw := strings.TrimSpace(httpErr.Header.Get("Retry-After")); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
		if t, err := http.ParseTime(raw); err == nil {
			if d := t.Sub(now); d > 0 {
				return d, true
			}
			return 0, true
		}
	}

	if raw := strings.TrimSpace(httpErr.Header.Get("X-RateLimit-Reset")); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d, true
			}
			return 0, true
		}
	}

	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1)) //nolint:gosec // jitter needs no crypto rand
}
