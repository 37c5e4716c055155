// Package ratelimit throttles tool calls with per-key token buckets so a
// client cannot queue unbounded simulation work.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned by ToolLimiters.Check when a bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter is a per-key token bucket. Each key starts with burst tokens and
// refills at rate tokens per second up to burst. It is safe for concurrent
// use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter creates a limiter refilling rate tokens/sec with the given burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// refill returns the bucket for key brought up to date. Caller holds mu.
func (l *Limiter) refill(key string) *bucket {
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), seen: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.seen).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.seen = now
	}
	return b
}

// Allow takes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Remaining returns the whole tokens currently available for key.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.refill(key).tokens)
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default limits for the tool server. Simulation
// runs are the expensive calls and get the tightest budget.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"cellnet_simulate": NewLimiter(20.0/60.0, 5), // 20/minute, burst 5
		"cellnet_sweep":    NewLimiter(6.0/60.0, 2),  // 6/minute, burst 2
		"cellnet_topology": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"cellnet_runs":     NewLimiter(1.0, 10),      // 60/minute, burst 10
	}
}

// Check takes a token for tool. Tools without a limiter are never limited.
func (tl ToolLimiters) Check(tool string) error {
	l, ok := tl[tool]
	if !ok {
		return nil
	}
	if !l.Allow(tool) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, tool)
	}
	return nil
}
