// Package ratelimit retries rate-limited upstream requests with exponential backoff.
package ratelimit

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"simpletasks/internal/utils"
)

// Config holds configuration for the retrying transport.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after receiving 429.
	// Default: 3
	MaxRetries int

	// BaseDelay is the initial delay before the first retry.
	// Default: 500 milliseconds
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries, including Retry-After.
	// Default: 8 seconds
	MaxDelay time.Duration

	// EnableJitter adds random jitter (±20%) to prevent thundering herd.
	EnableJitter bool

	// Stats is an optional stats tracker for recording rate limit events.
	Stats *Stats

	// Upstream names the origin in errors and logs.
	Upstream string
}

// Transport is an http.RoundTripper that retries 429 responses from Base.
type Transport struct {
	Base http.RoundTripper

	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	enableJitter bool
	stats        *Stats
	upstream     string
}

// NewTransport wraps base, http.DefaultTransport when nil.
func NewTransport(base http.RoundTripper, cfg Config) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}

	return &Transport{
		Base:         base,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		enableJitter: cfg.EnableJitter,
		stats:        cfg.Stats,
		upstream:     cfg.Upstream,
	}
}

// RoundTrip sends req, retrying while the upstream answers 429. A request
// whose body cannot be replayed is sent once.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	for attempt := 0; ; attempt++ {
		out := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to replay request body: %w", err)
			}
			out = req.Clone(ctx)
			out.Body = body
		}

		resp, err := t.Base.RoundTrip(out)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || !replayable {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if t.stats != nil {
			t.stats.RecordRateLimit()
		}
		if attempt >= t.maxRetries {
			return nil, &RateLimitError{
				Upstream:    t.upstream,
				Attempt:     attempt,
				MaxAttempts: t.maxRetries,
			}
		}

		delay := t.calculateBackoff(attempt, ParseRetryAfter(resp.Header.Get("Retry-After")))
		utils.GetLogger().Debug("Rate limited by %s, retrying %s in %s", t.name(), req.URL, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Transport) name() string {
	if t.upstream == "" {
		return "upstream"
	}
	return t.upstream
}

// calculateBackoff computes the delay before retry attempt+1. Retry-After
// wins over the exponential schedule but is still capped.
func (t *Transport) calculateBackoff(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return min(*retryAfter, t.maxDelay)
	}

	// Exponential backoff: base * 2^attempt
	delay := t.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > t.maxDelay {
		delay = t.maxDelay
	}

	if t.enableJitter {
		jitterFactor := 0.8 + rand.Float64()*0.4 // 0.8 to 1.2
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	return delay
}

// RateLimitError is returned when the upstream is still rate limiting after
// every retry.
type RateLimitError struct {
	Upstream    string
	Attempt     int
	MaxAttempts int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	upstream := e.Upstream
	if upstream == "" {
		upstream = "upstream"
	}
	return fmt.Sprintf("%s rate limit exceeded after %d retries (max %d)", upstream, e.Attempt, e.MaxAttempts)
}

// ParseRetryAfter parses the Retry-After header value.
// It supports both seconds format (integer) and HTTP-date format.
// Returns nil if the value is invalid or empty.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := max(time.Until(t), 0)
		return &d
	}

	return nil
}

// Stats counts rate limit events seen by a transport.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
