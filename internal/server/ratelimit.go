package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sflip/radiopi/internal/logging"
)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
	// Methods limits which request methods consume tokens; empty means all.
	Methods []string
	// TrustProxyHeaders keys buckets on X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens         float64
	capacity       float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	mu             sync.Mutex
}

func newTokenBucket(capacity, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:         capacity,
		capacity:       capacity,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
	}
}

// allow takes a token if one is available.
func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefillTime = now

	if tb.tokens >= 1.0 {
		tb.tokens--
		return true
	}
	return false
}

// retryAfter returns how long until the next token is available.
func (tb *tokenBucket) retryAfter() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.tokens >= 1.0 || tb.refillRate <= 0 {
		return 0
	}
	return time.Duration((1.0 - tb.tokens) / tb.refillRate * float64(time.Second))
}

func (tb *tokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefillTime
}

// RateLimiter manages per-client rate limiting of control actions.
type RateLimiter struct {
	buckets    map[string]*tokenBucket
	config     RateLimiterConfig
	mu         sync.RWMutex
	cleanupTTL time.Duration
}

// NewRateLimiter creates a rate limiter. Stale buckets are pruned until ctx
// is done.
func NewRateLimiter(ctx context.Context, config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	rl := &RateLimiter{
		buckets:    make(map[string]*tokenBucket),
		config:     config,
		cleanupTTL: 5 * time.Minute,
	}
	go rl.cleanup(ctx)
	return rl
}

// getBucket returns the token bucket for a client, creating it if necessary.
func (rl *RateLimiter) getBucket(client string) *tokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[client]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if bucket, exists := rl.buckets[client]; exists {
		return bucket
	}

	refillRate := float64(rl.config.RequestsPerMinute) / 60.0
	bucket = newTokenBucket(float64(rl.config.BurstSize), refillRate)
	rl.buckets[client] = bucket
	return bucket
}

func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.prune(now)
		}
	}
}

func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, bucket := range rl.buckets {
		if now.Sub(bucket.idleSince()) > rl.cleanupTTL {
			delete(rl.buckets, client)
		}
	}
}

// Allow checks whether a request from client may proceed.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.getBucket(client).allow()
}

func (rl *RateLimiter) limits(r *http.Request) bool {
	if len(rl.config.Methods) == 0 {
		return true
	}
	return slices.Contains(rl.config.Methods, r.Method)
}

// Middleware answers 429 Too Many Requests once a client exhausts its bucket.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limits(r) {
			next.ServeHTTP(w, r)
			return
		}

		client := clientIP(r, rl.config.TrustProxyHeaders)
		bucket := rl.getBucket(client)
		if !bucket.allow() {
			retryAfter := int(bucket.retryAfter().Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			logging.SecurityEvent("rate_limited", "web", "client", client, "path", r.URL.Path)
			http.Error(w, fmt.Sprintf("Too many actions. Try again in %d seconds.", retryAfter), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, consulting proxy headers only when
// they are trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); isValidIP(ip) {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(realIP) {
			return realIP
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if isValidIP(ip) {
		return ip
	}
	return "unknown"
}

func isValidIP(ipStr string) bool {
	return net.ParseIP(ipStr) != nil
}
