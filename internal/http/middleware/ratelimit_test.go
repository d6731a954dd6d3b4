package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/messaging-gateway/internal/ratelimit"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

func TestTokenBucketRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(1, 2)
	tb.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, _ := tb.CheckLimit(ctx, "ip"); !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	res, _ := tb.CheckLimit(ctx, "ip")
	if res.Allowed {
		t.Fatalf("third request should be limited")
	}
	if res.RetryAfter != time.Second {
		t.Fatalf("expected retry after 1s, got %s", res.RetryAfter)
	}
	if res, _ := tb.CheckLimit(ctx, "other"); !res.Allowed {
		t.Fatalf("keys must be independent")
	}

	now = now.Add(time.Second)
	if res, _ := tb.CheckLimit(ctx, "ip"); !res.Allowed {
		t.Fatalf("bucket should refill after a second")
	}
}

func TestTokenBucketSweep(t *testing.T) {
	now := time.Now()
	tb := NewTokenBucket(1, 1)
	tb.now = func() time.Time { return now }
	_, _ = tb.CheckLimit(context.Background(), "a")
	now = now.Add(time.Hour)
	tb.Sweep(10 * time.Minute)
	if len(tb.buckets) != 0 {
		t.Fatalf("expected idle bucket to be swept, have %d", len(tb.buckets))
	}
}

type errLimiter struct{}

func (errLimiter) CheckLimit(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}

type keyRecorder struct {
	keys   []string
	result ratelimit.Result
}

func (k *keyRecorder) CheckLimit(_ context.Context, key string) (ratelimit.Result, error) {
	k.keys = append(k.keys, key)
	return k.result, nil
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	limited := &keyRecorder{result: ratelimit.Result{Allowed: false, RetryAfter: 1500 * time.Millisecond}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/waha/t1", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	rec := httptest.NewRecorder()
	RateLimit(limited, "webhook", logging.New("error"))(ok).ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if limited.keys[0] != "webhook:10.0.0.9" {
		t.Fatalf("unexpected key %q", limited.keys[0])
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/waha/t1", nil)
	req.Header.Set("X-Real-Ip", "203.0.113.7")
	allowed := &keyRecorder{result: ratelimit.Result{Allowed: true}}
	rec = httptest.NewRecorder()
	RateLimit(allowed, "webhook", nil)(ok).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || allowed.keys[0] != "webhook:203.0.113.7" {
		t.Fatalf("expected pass-through keyed by real ip, got %d %v", rec.Code, allowed.keys)
	}

	rec = httptest.NewRecorder()
	RateLimit(errLimiter{}, "webhook", logging.New("error"))(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("limiter errors must fail open, got %d", rec.Code)
	}
}
