package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Source loads tenant messaging configuration.
type Source interface {
	Get(ctx context.Context, tenantID string) (*MessagingConfig, error)
}

// RedisStore persists messaging configs as JSON documents in Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a config store backed by Redis.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("tenant: redis client required")
	}
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) key(tenantID string) string {
	return fmt.Sprintf("tenant:messaging:%s", tenantID)
}

// Get retrieves the tenant config, returning the default config if none was saved.
func (s *RedisStore) Get(ctx context.Context, tenantID string) (*MessagingConfig, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultConfig(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get config: %w", err)
	}

	var cfg MessagingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tenant: unmarshal config: %w", err)
	}
	if cfg.TenantID == "" {
		cfg.TenantID = tenantID
	}
	return &cfg, nil
}

// Set validates and saves a tenant config.
func (s *RedisStore) Set(ctx context.Context, cfg *MessagingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("tenant: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("tenant: set config: %w", err)
	}
	return nil
}

// MemoryStore keeps configs in process memory. Used when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]MessagingConfig
}

// NewMemoryStore creates an empty in-memory config store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]MessagingConfig)}
}

// Get returns a copy of the stored config or the default config.
func (s *MemoryStore) Get(ctx context.Context, tenantID string) (*MessagingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[tenantID]
	if !ok {
		return DefaultConfig(tenantID), nil
	}
	return &cfg, nil
}

// Set validates and stores a config.
func (s *MemoryStore) Set(ctx context.Context, cfg *MessagingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.configs[cfg.TenantID] = *cfg
	s.mu.Unlock()
	return nil
}

// Put stores a config without validation, for seeding invalid configs in tests.
func (s *MemoryStore) Put(cfg MessagingConfig) {
	s.mu.Lock()
	s.configs[cfg.TenantID] = cfg
	s.mu.Unlock()
}
