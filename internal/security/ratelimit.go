package security

import (
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/benbjohnson/clock"
)

// RateLimitResult is the outcome of one RateLimiter.Check call
type RateLimitResult struct {
	Allowed     bool
	Count       int
	Limit       int
	Window      time.Duration
	WindowStart time.Time
	RetryAfter  time.Duration
}

// Finding renders a violation as a RATE_LIMIT_EXCEEDED finding
func (r RateLimitResult) Finding(key string) models.ThreatFinding {
	return models.ThreatFinding{
		Type:           models.ThreatRateLimitExceeded,
		Severity:       models.SeverityHigh,
		Confidence:     100,
		Message:        fmt.Sprintf("rate limit exceeded: %d requests in %s (limit %d)", r.Count, r.Window, r.Limit),
		MatchedPattern: "rate_limit",
		PayloadExcerpt: key,
	}
}

// Err renders a violation as a RateLimitExceeded error
func (r RateLimitResult) Err() error {
	if r.Allowed {
		return nil
	}
	return models.NewRateLimitError(r.Limit, r.Window, r.RetryAfter)
}

// RateLimiter is a fixed-window counter keyed by client identifier. Bursts
// straddling a window boundary are accepted; use a smaller window for
// stricter enforcement.
type RateLimiter struct {
	buckets     *repositories.RateLimitBucketRepository
	clock       clock.Clock
	maxRequests int
	window      time.Duration
}

// NewRateLimiter creates a limiter over the given bucket store
func NewRateLimiter(buckets *repositories.RateLimitBucketRepository, clk clock.Clock, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:     buckets,
		clock:       clk,
		maxRequests: maxRequests,
		window:      window,
	}
}

// Check counts one request for key. Every call past the limit within the
// same window is reported as a violation.
func (l *RateLimiter) Check(key string) RateLimitResult {
	now := l.clock.Now()
	result := RateLimitResult{Limit: l.maxRequests, Window: l.window}

	l.buckets.Update(key, func(b *models.RateLimitBucket) {
		if b.Count == 0 || now.After(b.WindowStart.Add(l.window)) {
			b.WindowStart = now
			b.Count = 1
		} else {
			b.Count++
		}
		result.Count = b.Count
		result.WindowStart = b.WindowStart
	})

	result.Allowed = result.Count <= l.maxRequests
	if !result.Allowed {
		result.RetryAfter = result.WindowStart.Add(l.window).Sub(now)
	}
	return result
}

// RetryAfter reports how long key must wait for its window to reset without
// counting a request. Zero means the window has already rolled over.
func (l *RateLimiter) RetryAfter(key string) time.Duration {
	b, ok := l.buckets.Get(key)
	if !ok || b.Count == 0 {
		return 0
	}
	remaining := b.WindowStart.Add(l.window).Sub(l.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Window returns the configured window length
func (l *RateLimiter) Window() time.Duration {
	return l.window
}
