package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func deterministicOptions(slept *[]time.Duration) Options {
	return Options{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0,
		now:         func() time.Time { return time.Unix(1_700_000_000, 0) },
		sleep: func(ctx context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	calls := 0
	v, err := Do(context.Background(), deterministicOptions(&slept), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &HTTPError{StatusCode: http.StatusServiceUnavailable, Message: "unavailable"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if v != "ok" {
		t.Fatalf("unexpected value %q", v)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	calls := 0
	_, err := Do(context.Background(), deterministicOptions(&slept), func(ctx context.Context) (int, error) {
		calls++
		return 0, &HTTPError{StatusCode: http.StatusBadRequest, Message: "bad input"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
	if len(slept) != 0 {
		t.Fatalf("expected no sleeps, got %v", slept)
	}
}

func TestDoRateLimitEscalatesOnLongRetryAfter(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	calls := 0
	header := http.Header{}
	header.Set("Retry-After", "30")

	_, err := Do(context.Background(), deterministicOptions(&slept), func(ctx context.Context) (string, error) {
		calls++
		return "", &HTTPError{StatusCode: http.StatusTooManyRequests, Header: header, Message: "slow down"}
	})

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.RetryAfter != 30*time.Second {
		t.Fatalf("RetryAfter = %v, want 30s", rle.RetryAfter)
	}
	if calls != 1 {
		t.Fatalf("expected escalation on first attempt, got %d attempts", calls)
	}
	if len(slept) != 0 {
		t.Fatalf("expected no sleeps, got %v", slept)
	}
}

func TestDoRateLimitHonorsShortServerHint(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	calls := 0
	header := http.Header{}
	header.Set("Retry-After", "2")

	v, err := Do(context.Background(), deterministicOptions(&slept), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &HTTPError{StatusCode: http.StatusTooManyRequests, Header: header, Message: "slow down"}
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if v != "done" {
		t.Fatalf("unexpected value %q", v)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected one 2s sleep from the server hint, got %v", slept)
	}
}

func TestDoRateLimitExhaustionReturnsRateLimitError(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	_, err := Do(context.Background(), deterministicOptions(&slept), func(ctx context.Context) (string, error) {
		return "", &HTTPError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	})

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError after exhaustion, got %v", err)
	}
	if rle.RetryAfter != 5*time.Second {
		t.Fatalf("RetryAfter = %v, want the delay cap", rle.RetryAfter)
	}
}

func TestDoJitterNeverExceedsCapPlusJitter(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	opts := deterministicOptions(&slept)
	opts.Jitter = 250 * time.Millisecond
	opts.jitter = func(max time.Duration) time.Duration { return max }
	opts.BaseDelay = 4 * time.Second

	calls := 0
	_, err := Do(context.Background(), opts, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &HTTPError{StatusCode: http.StatusInternalServerError, Message: "boom"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	limit := opts.MaxDelay + opts.Jitter
	for _, d := range slept {
		if d > limit {
			t.Fatalf("delay %v exceeds cap+jitter %v", d, limit)
		}
	}
}

func TestIsRateLimitedForbiddenWithZeroRemaining(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("X-RateLimit-Remaining", "0")
	err := &HTTPError{StatusCode: http.StatusForbidden, Header: header, Message: "quota"}
	if !IsRateLimited(err) {
		t.Fatal("403 with zero remaining should classify as rate limited")
	}

	header2 := http.Header{}
	header2.Set("X-RateLimit-Remaining", "10")
	err2 := &HTTPError{StatusCode: http.StatusForbidden, Header: header2, Message: "denied"}
	if IsRateLimited(err2) {
		t.Fatal("403 with remaining quota should not classify as rate limited")
	}
}

func TestIsRetryableTransientNetworkErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"dns temporary", &net.DNSError{Err: "try again", IsTemporary: true}, true},
		{"dns not found", &net.DNSError{Err: "no such host", IsNotFound: true}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestServerWaitParsesHTTPDateAndReset(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	header := http.Header{}
	header.Set("Retry-After", now.Add(42*time.Second).Format(http.TimeFormat))
	d, ok := serverWait(&HTTPError{StatusCode: 429, Header: header}, now)
	if !ok || d != 42*time.Second {
		t.Fatalf("http-date Retry-After = (%v, %v), want (42s, true)", d, ok)
	}

	header = http.Header{}
	header.Set("X-RateLimit-Reset", fmt.Sprint(now.Add(90*time.Second).Unix()))
	d, ok = serverWait(&HTTPError{StatusCode: 429, Header: header}, now)
	if !ok || d != 90*time.Second {
		t.Fatalf("reset epoch = (%v, %v), want (90s, true)", d, ok)
	}

	header = http.Header{}
	header.Set("Retry-After", "not-a-number")
	if _, ok := serverWait(&HTTPError{StatusCode: 429, Header: header}, now); ok {
		t.Fatal("unparsable Retry-After should be treated as absent")
	}
}
