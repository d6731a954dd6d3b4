package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/wolfman30/messaging-gateway/internal/ratelimit"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// Limiter is the gate consulted per request.
type Limiter interface {
	CheckLimit(ctx context.Context, scopeKey string) (ratelimit.Result, error)
}

// TokenBucket is an in-process Limiter: rate tokens per second per key, up to burst.
type TokenBucket struct {
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

func NewTokenBucket(rate float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{buckets: make(map[string]*bucket), rate: rate, burst: burst, now: time.Now}
}

func (tb *TokenBucket) CheckLimit(_ context.Context, key string) (ratelimit.Result, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.burst), seen: now}
		tb.buckets[key] = b
	}
	b.tokens = math.Min(float64(tb.burst), b.tokens+now.Sub(b.seen).Seconds()*tb.rate)
	b.seen = now

	if b.tokens < 1 {
		var wait time.Duration
		if tb.rate > 0 {
			wait = time.Duration((1 - b.tokens) / tb.rate * float64(time.Second))
		}
		return ratelimit.Result{Allowed: false, RetryAfter: wait, Limit: tb.burst}, nil
	}
	b.tokens--
	return ratelimit.Result{Allowed: true, Count: tb.burst - int(b.tokens), Limit: tb.burst}, nil
}

// Sweep drops buckets idle for longer than maxIdle.
func (tb *TokenBucket) Sweep(maxIdle time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	cutoff := tb.now().Add(-maxIdle)
	for key, b := range tb.buckets {
		if b.seen.Before(cutoff) {
			delete(tb.buckets, key)
		}
	}
}

// RunSweeper sweeps every interval until ctx is done.
func (tb *TokenBucket) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tb.Sweep(maxIdle)
		}
	}
}

// RateLimit rejects requests over the limit with 429 and a Retry-After header.
// Requests are keyed by prefix and client IP; limiter errors let the request through.
func RateLimit(limiter Limiter, prefix string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.CheckLimit(r.Context(), prefix+":"+clientIP(r))
			if err != nil {
				logger.Warn("request rate limiter unavailable", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if secs := int(math.Ceil(res.RetryAfter.Seconds())); secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers X-Real-Ip (set by chi's RealIP) over the socket address.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
