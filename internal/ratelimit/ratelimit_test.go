package ratelimit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Rate Limit Tests
// =============================================================================

// limitedServer answers 429 to the first n requests, then 200 with the
// request body echoed back.
func limitedServer(t *testing.T, n int32, retryAfter string) (*httptest.Server, *int32) {
	t.Helper()
	var count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&count, 1) <= n {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte("ok:"), body...))
	}))
	t.Cleanup(server.Close)
	return server, &count
}

func fastTransport(stats *Stats) *Transport {
	return NewTransport(nil, Config{
		MaxRetries: 3,
		BaseDelay:  5 * time.Millisecond,
		Stats:      stats,
		Upstream:   "example.com",
	})
}

func TestRetryAfterTooManyRequests(t *testing.T) {
	server, count := limitedServer(t, 2, "")
	stats := NewStats()

	resp, err := (&http.Client{Transport: fastTransport(stats)}).Get(server.URL)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(count); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if stats.RateLimitCount() != 2 {
		t.Errorf("RateLimitCount() = %d, want 2", stats.RateLimitCount())
	}
	if stats.LastRateLimitTime().IsZero() {
		t.Error("LastRateLimitTime() should be set")
	}
}

func TestRetriesExhausted(t *testing.T) {
	server, count := limitedServer(t, 100, "")

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := fastTransport(nil).RoundTrip(req)

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rle.Attempt != 3 || rle.MaxAttempts != 3 {
		t.Errorf("RateLimitError = %+v", rle)
	}
	if !strings.Contains(err.Error(), "example.com rate limit exceeded") {
		t.Errorf("Error() = %q", err.Error())
	}
	if got := atomic.LoadInt32(count); got != 4 {
		t.Errorf("requests = %d, want 4 (1 + 3 retries)", got)
	}
}

func TestNon429Passthrough(t *testing.T) {
	var count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := fastTransport(nil).RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip error: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable || count != 1 {
		t.Errorf("status = %d after %d requests, want 503 after 1", resp.StatusCode, count)
	}
}

func TestRetryReplaysBody(t *testing.T) {
	server, _ := limitedServer(t, 1, "")

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
	resp, err := fastTransport(nil).RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok:payload" {
		t.Errorf("body = %q, want ok:payload", body)
	}
}

func TestUnreplayableBodySentOnce(t *testing.T) {
	server, count := limitedServer(t, 1, "")

	req, _ := http.NewRequest(http.MethodPost, server.URL, io.NopCloser(strings.NewReader("payload")))
	req.GetBody = nil
	resp, err := fastTransport(nil).RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip error: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests || atomic.LoadInt32(count) != 1 {
		t.Errorf("status = %d after %d requests, want 429 after 1", resp.StatusCode, *count)
	}
}

func TestRetryAfterHeaderRespected(t *testing.T) {
	server, _ := limitedServer(t, 1, "1")
	tr := NewTransport(nil, Config{BaseDelay: time.Millisecond, MaxDelay: 50 * time.Millisecond})

	start := time.Now()
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip error: %v", err)
	}
	_ = resp.Body.Close()

	// Retry-After of 1s is capped by MaxDelay
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 900*time.Millisecond {
		t.Errorf("elapsed = %v, want about 50ms", elapsed)
	}
}

func TestContextCancellation(t *testing.T) {
	server, _ := limitedServer(t, 100, "30")
	tr := NewTransport(nil, Config{MaxDelay: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	_, err := tr.RoundTrip(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tr := NewTransport(nil, Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := tr.calculateBackoff(tt.attempt, nil); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	retryAfter := 300 * time.Millisecond
	if got := tr.calculateBackoff(0, &retryAfter); got != retryAfter {
		t.Errorf("calculateBackoff with Retry-After = %v, want %v", got, retryAfter)
	}
}

func TestCalculateBackoffJitter(t *testing.T) {
	tr := NewTransport(nil, Config{BaseDelay: 100 * time.Millisecond, EnableJitter: true})

	for i := 0; i < 50; i++ {
		got := tr.calculateBackoff(0, nil)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%%", got)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := ParseRetryAfter("5"); d == nil || *d != 5*time.Second {
		t.Errorf("ParseRetryAfter(5) = %v", d)
	}
	if d := ParseRetryAfter(""); d != nil {
		t.Errorf("ParseRetryAfter(\"\") = %v, want nil", *d)
	}
	if d := ParseRetryAfter("-1"); d != nil {
		t.Errorf("ParseRetryAfter(-1) = %v, want nil", *d)
	}
	if d := ParseRetryAfter("soon"); d != nil {
		t.Errorf("ParseRetryAfter(soon) = %v, want nil", *d)
	}

	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	if d := ParseRetryAfter(future); d == nil || *d <= 0 || *d > 10*time.Second {
		t.Errorf("ParseRetryAfter(%s) = %v", future, d)
	}
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if d := ParseRetryAfter(past); d == nil || *d != 0 {
		t.Errorf("ParseRetryAfter(past) = %v, want 0", d)
	}
}

func TestNewTransportDefaults(t *testing.T) {
	tr := NewTransport(nil, Config{})

	if tr.Base != http.DefaultTransport {
		t.Error("Base should default to http.DefaultTransport")
	}
	if tr.maxRetries != 3 || tr.baseDelay != 500*time.Millisecond || tr.maxDelay != 8*time.Second {
		t.Errorf("defaults = %d, %v, %v", tr.maxRetries, tr.baseDelay, tr.maxDelay)
	}
}

func TestStatsThreadSafety(t *testing.T) {
	stats := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.RecordRateLimit()
			_ = stats.RateLimitCount()
		}()
	}
	wg.Wait()

	if stats.RateLimitCount() != 100 {
		t.Errorf("RateLimitCount() = %d, want 100", stats.RateLimitCount())
	}
}
