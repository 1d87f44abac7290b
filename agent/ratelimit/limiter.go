// Package ratelimit implements the rate limiter collaborator for tool calls,
// keyed by (user, tool). The in-process limiter uses token buckets; the
// Redis-backed variant uses fixed windows for multi-process deployments.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

type Config struct {
	PerMinute float64 `envconfig:"PER_MINUTE" split_words:"true" default:"30"`
	Burst     int     `envconfig:"BURST" split_words:"true" default:"10"`
}

// Limiter holds one token bucket per (user, tool) pair.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

var _ contractx.RateLimiter = (*Limiter)(nil)

func New(cfg Config) *Limiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// Check peeks at the bucket without consuming. Denials carry the wait until
// the next token.
func (l *Limiter) Check(ctx context.Context, tool, userID string) (contractx.RateDecision, error) {
	bucket := l.bucket(tool, userID)
	now := l.clock()()

	if bucket.TokensAt(now) >= 1 {
		return contractx.RateDecision{Allowed: true}, nil
	}

	perSecond := l.cfg.PerMinute / 60
	deficit := 1 - bucket.TokensAt(now)
	retryAfter := time.Duration(math.Ceil(deficit/perSecond)) * time.Second

	return contractx.RateDecision{
		Allowed:    false,
		Reason:     fmt.Sprintf("rate limit for tool %q: %.0f calls/minute", tool, l.cfg.PerMinute),
		RetryAfter: retryAfter,
	}, nil
}

// Record consumes one token after the tool actually ran. The bucket may go
// briefly negative when Check and Record race across requests; that deficit
// self-corrects as tokens refill.
func (l *Limiter) Record(ctx context.Context, tool, userID string) error {
	bucket := l.bucket(tool, userID)
	r := bucket.ReserveN(l.clock()(), 1)
	if !r.OK() {
		return fmt.Errorf("rate bucket for tool %q cannot admit a call", tool)
	}
	return nil
}

func (l *Limiter) bucket(tool, userID string) *rate.Limiter {
	key := userID + "|" + tool

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b := rate.NewLimiter(rate.Limit(l.cfg.PerMinute/60), l.cfg.Burst)
	l.buckets[key] = b
	return b
}

func (l *Limiter) clock() func() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}
