package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MessagingConfig
		want    Provider
		wantErr error
	}{
		{
			name: "basic tier uses waha",
			cfg:  MessagingConfig{TenantID: "t1", Tier: TierBasic, Provider: ProviderWaha},
			want: ProviderWaha,
		},
		{
			name: "basic tier ignores twilio provider",
			cfg:  MessagingConfig{TenantID: "t1", Tier: TierBasic, Provider: ProviderTwilio},
			want: ProviderWaha,
		},
		{
			name: "premium twilio with number",
			cfg:  MessagingConfig{TenantID: "t1", Tier: TierPremium, Provider: ProviderTwilio, OutboundNumber: "+15550001111"},
			want: ProviderTwilio,
		},
		{
			name:    "premium twilio without number",
			cfg:     MessagingConfig{TenantID: "t1", Tier: TierPremium, Provider: ProviderTwilio},
			wantErr: ErrMissingOutboundNumber,
		},
		{
			name:    "premium waha is not routable",
			cfg:     MessagingConfig{TenantID: "t1", Tier: TierPremium, Provider: ProviderWaha},
			wantErr: ErrNoTransport,
		},
		{
			name:    "unknown tier",
			cfg:     MessagingConfig{TenantID: "t1"},
			wantErr: ErrNoTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ActiveTransport()
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				assert.Equal(t, ProviderNone, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionDefaultsToTenantID(t *testing.T) {
	cfg := DefaultConfig("tenant-9")
	assert.Equal(t, "tenant-9", cfg.Session())
	cfg.WahaSession = "default"
	assert.Equal(t, "default", cfg.Session())
}

func TestEmailNotificationsEnabled(t *testing.T) {
	cfg := DefaultConfig("t1")
	assert.False(t, cfg.EmailNotificationsEnabled())
	cfg.Email.Enabled = true
	assert.False(t, cfg.EmailNotificationsEnabled())
	cfg.NotifyEmails = []string{"owner@example.com"}
	assert.True(t, cfg.EmailNotificationsEnabled())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, TierBasic, got.Tier)
	assert.Equal(t, "missing", got.TenantID)

	cfg := &MessagingConfig{
		TenantID:       "tenant-1",
		Tier:           TierPremium,
		Provider:       ProviderTwilio,
		OutboundNumber: "+15550001111",
		WhatsApp:       ChannelStatus{Enabled: true, Verified: true, Connected: true},
	}
	require.NoError(t, store.Set(ctx, cfg))

	loaded, err := store.Get(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, *cfg, *loaded)
	assert.True(t, loaded.WhatsApp.Ready())
}

func TestRedisStoreRejectsInvalidConfig(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	err = store.Set(context.Background(), &MessagingConfig{TenantID: "t1", Tier: TierPremium, Provider: ProviderTwilio})
	assert.ErrorIs(t, err, ErrMissingOutboundNumber)
	assert.False(t, mr.Exists("tenant:messaging:t1"))
}

func TestRedisStoreCorruptDocument(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set("tenant:messaging:t1", "{not json"))
	_, err = NewRedisStore(client).Get(context.Background(), "t1")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, ProviderWaha, got.Provider)

	assert.ErrorIs(t, store.Set(ctx, &MessagingConfig{Tier: TierBasic}), ErrMissingTenantID)

	store.Put(MessagingConfig{TenantID: "t2", Tier: TierPremium, Provider: ProviderTwilio})
	got, err = store.Get(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, TierPremium, got.Tier)
}
