package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := newTokenBucket(2, 0)
	if !tb.allow() || !tb.allow() {
		t.Fatal("expected burst of 2")
	}
	if tb.allow() {
		t.Error("expected empty bucket to refuse")
	}
	if tb.retryAfter() != 0 {
		t.Error("zero refill rate reports no retry time")
	}

	refilling := newTokenBucket(1, 1)
	refilling.allow()
	if d := refilling.retryAfter(); d <= 0 || d > time.Second {
		t.Errorf("retryAfter() = %v, want (0, 1s]", d)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, RateLimiterConfig{
		RequestsPerMinute: 1,
		BurstSize:         2,
		Methods:           []string{http.MethodPost},
	})
	handler := rl.Middleware(okHandler())

	post := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := post("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i+1, code)
		}
	}
	if code := post("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
	if code := post("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("GET must not be limited, got %d", w.Code)
		}
	}
}

func TestRateLimiterRetryAfterHeader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, RateLimiterConfig{RequestsPerMinute: 6, BurstSize: 1})
	handler := rl.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*tokenBucket), cleanupTTL: time.Minute, config: RateLimiterConfig{BurstSize: 1}}
	rl.Allow("10.0.0.1")
	rl.prune(time.Now().Add(2 * time.Minute))
	if len(rl.buckets) != 0 {
		t.Errorf("expected stale bucket to be pruned, have %d", len(rl.buckets))
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		trust      bool
		want       string
	}{
		{"remote addr", "192.168.1.20:8080", "", "", false, "192.168.1.20"},
		{"ignores untrusted forwarded", "192.168.1.20:8080", "1.2.3.4", "", false, "192.168.1.20"},
		{"trusted forwarded", "127.0.0.1:8080", "1.2.3.4, 10.0.0.1", "", true, "1.2.3.4"},
		{"trusted real ip", "127.0.0.1:8080", "", "5.6.7.8", true, "5.6.7.8"},
		{"invalid forwarded falls back", "127.0.0.1:8080", "not-an-ip", "", true, "127.0.0.1"},
		{"garbage remote", "garbage", "", "", false, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := clientIP(req, tt.trust); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
