package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/messaging-gateway/internal/ratelimit"
	"github.com/wolfman30/messaging-gateway/internal/tenant"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

type recordingTransport struct {
	mu   sync.Mutex
	name string
	sent []OutboundMessage
	id   string
	err  error
}

func (r *recordingTransport) Name() string { return r.name }

func (r *recordingTransport) Send(_ context.Context, msg OutboundMessage) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.id, r.err
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type stubLimiter struct {
	result ratelimit.Result
	err    error
	scopes []string
}

func (s *stubLimiter) CheckLimit(_ context.Context, scope string) (ratelimit.Result, error) {
	s.scopes = append(s.scopes, scope)
	return s.result, s.err
}

type failingSource struct{}

func (failingSource) Get(context.Context, string) (*tenant.MessagingConfig, error) {
	return nil, errors.New("redis down")
}

func newTestRouter(configs tenant.Source, limiter Limiter) (*Router, *recordingTransport, *recordingTransport) {
	waha := &recordingTransport{name: "waha", id: "waha-1"}
	twilio := &recordingTransport{name: "twilio", id: "SM1"}
	r := NewRouter(RouterConfig{
		Configs: configs,
		Transports: map[tenant.Provider]Transport{
			tenant.ProviderWaha:   waha,
			tenant.ProviderTwilio: twilio,
		},
		Limiter: limiter,
		Logger:  logging.New("error"),
	})
	return r, waha, twilio
}

func TestRouterDecisionTable(t *testing.T) {
	tests := []struct {
		name      string
		cfg       tenant.MessagingConfig
		wantWaha  int
		wantTwil  int
		wantKind  ErrorKind
		wantID    string
		checkFrom string
	}{
		{
			name:     "basic uses waha",
			cfg:      tenant.MessagingConfig{TenantID: "t", Tier: tenant.TierBasic},
			wantWaha: 1,
			wantID:   "waha-1",
		},
		{
			name:     "basic ignores twilio provider",
			cfg:      tenant.MessagingConfig{TenantID: "t", Tier: tenant.TierBasic, Provider: tenant.ProviderTwilio, OutboundNumber: "+14155238886"},
			wantWaha: 1,
			wantID:   "waha-1",
		},
		{
			name:      "premium twilio with number",
			cfg:       tenant.MessagingConfig{TenantID: "t", Tier: tenant.TierPremium, Provider: tenant.ProviderTwilio, OutboundNumber: "+14155238886"},
			wantTwil:  1,
			wantID:    "SM1",
			checkFrom: "+14155238886",
		},
		{
			name:     "premium twilio without number",
			cfg:      tenant.MessagingConfig{TenantID: "t", Tier: tenant.TierPremium, Provider: tenant.ProviderTwilio},
			wantKind: KindConfiguration,
		},
		{
			name:     "premium waha is unroutable",
			cfg:      tenant.MessagingConfig{TenantID: "t", Tier: tenant.TierPremium, Provider: tenant.ProviderWaha},
			wantKind: KindConfiguration,
		},
		{
			name:     "unknown tier",
			cfg:      tenant.MessagingConfig{TenantID: "t", Tier: "gold"},
			wantKind: KindConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs := tenant.NewMemoryStore()
			configs.Put(tt.cfg)
			router, waha, twilio := newTestRouter(configs, nil)

			res := router.Send(context.Background(), "t", "+1 (555) 123-4567", "hello")
			assert.Equal(t, tt.wantWaha, waha.count())
			assert.Equal(t, tt.wantTwil, twilio.count())
			if tt.wantKind != "" {
				require.False(t, res.Success)
				require.NotNil(t, res.Err)
				assert.Equal(t, tt.wantKind, res.Err.Kind)
				assert.ErrorIs(t, res.Error(), ErrConfiguration)
				return
			}
			require.True(t, res.Success, "unexpected error: %v", res.Error())
			assert.Equal(t, tt.wantID, res.MessageID)
			if tt.checkFrom != "" {
				assert.Equal(t, tt.checkFrom, twilio.sent[0].From)
				assert.Equal(t, "+15551234567", twilio.sent[0].To)
			}
		})
	}
}

func TestRouterDefaultsToWahaWithTenantSession(t *testing.T) {
	router, waha, _ := newTestRouter(tenant.NewMemoryStore(), nil)
	res := router.Send(context.Background(), "clinic-7", "15551234567", "hi")
	require.True(t, res.Success)
	require.Equal(t, 1, waha.count())
	assert.Equal(t, "clinic-7", waha.sent[0].Session)
}

func TestRouterNeverFallsBack(t *testing.T) {
	configs := tenant.NewMemoryStore()
	configs.Put(tenant.MessagingConfig{TenantID: "t", Tier: tenant.TierPremium, Provider: tenant.ProviderTwilio, OutboundNumber: "+1415"})
	router, waha, twilio := newTestRouter(configs, nil)
	twilio.err = errors.New("twilio down")

	res := router.Send(context.Background(), "t", "15551234567", "hi")
	require.False(t, res.Success)
	assert.Equal(t, KindProviderSend, res.Err.Kind)
	assert.ErrorIs(t, res.Error(), ErrProviderSend)
	assert.Equal(t, 1, twilio.count())
	assert.Equal(t, 0, waha.count())
}

func TestRouterMissingTransportIsConfigurationError(t *testing.T) {
	configs := tenant.NewMemoryStore()
	router := NewRouter(RouterConfig{Configs: configs, Logger: logging.New("error")})
	res := router.Send(context.Background(), "t", "15551234567", "hi")
	require.False(t, res.Success)
	assert.Equal(t, KindConfiguration, res.Err.Kind)
}

func TestRouterConfigLoadFailure(t *testing.T) {
	router, waha, _ := newTestRouter(failingSource{}, nil)
	res := router.Send(context.Background(), "t", "15551234567", "hi")
	require.False(t, res.Success)
	assert.Equal(t, KindConfiguration, res.Err.Kind)
	assert.Equal(t, 0, waha.count())
}

func TestRouterInvalidInput(t *testing.T) {
	router, waha, _ := newTestRouter(tenant.NewMemoryStore(), nil)

	res := router.Send(context.Background(), "t", "not a number", "hi")
	require.False(t, res.Success)
	assert.Equal(t, KindProviderSend, res.Err.Kind)

	res = router.Send(context.Background(), "t", "15551234567", "   ")
	require.False(t, res.Success)
	assert.Equal(t, KindProviderSend, res.Err.Kind)
	assert.Equal(t, 0, waha.count())
}

func TestRouterRateLimited(t *testing.T) {
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: false, RetryAfter: 42 * time.Second}}
	router, waha, _ := newTestRouter(tenant.NewMemoryStore(), limiter)

	res := router.Send(context.Background(), "t1", "15551234567", "hi")
	require.False(t, res.Success)
	assert.Equal(t, KindRateLimited, res.Err.Kind)
	assert.Equal(t, 42*time.Second, res.Err.RetryAfter)
	assert.ErrorIs(t, res.Error(), ErrRateLimited)
	assert.Equal(t, []string{"outbound:waha:t1"}, limiter.scopes)
	assert.Equal(t, 0, waha.count())
}

func TestRouterLimiterErrorFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis timeout")}
	router, waha, _ := newTestRouter(tenant.NewMemoryStore(), limiter)
	res := router.Send(context.Background(), "t1", "15551234567", "hi")
	require.True(t, res.Success)
	assert.Equal(t, 1, waha.count())
}

func TestRouterWithRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := ratelimit.NewRedisLimiter(client, ratelimit.Config{MaxPerWindow: 1, Window: time.Minute}, logging.New("error"))
	router, waha, _ := newTestRouter(tenant.NewMemoryStore(), limiter)

	first := router.Send(context.Background(), "t1", "15551234567", "one")
	second := router.Send(context.Background(), "t1", "15551234567", "two")
	other := router.Send(context.Background(), "t2", "15551234567", "three")

	assert.True(t, first.Success)
	require.False(t, second.Success)
	assert.Equal(t, KindRateLimited, second.Err.Kind)
	assert.True(t, other.Success)
	assert.Equal(t, 2, waha.count())
}
