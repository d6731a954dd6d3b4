package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/messaging-gateway/cmd/mainconfig"
	appconfig "github.com/wolfman30/messaging-gateway/internal/config"
	"github.com/wolfman30/messaging-gateway/internal/conversation"
	"github.com/wolfman30/messaging-gateway/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/messaging-gateway/internal/http/middleware"
	"github.com/wolfman30/messaging-gateway/internal/leads"
	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/notify"
	"github.com/wolfman30/messaging-gateway/internal/observability/metrics"
	"github.com/wolfman30/messaging-gateway/internal/ratelimit"
	"github.com/wolfman30/messaging-gateway/internal/tenant"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// devReply answers inbound messages when no AI provider is configured.
const devReply = "Thanks for your message! A team member will get back to you shortly."

func setupMetrics() (http.Handler, *metrics.GatewayMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewGatewayMetrics(reg)
}

// connectPostgresPool returns a nil pool when dsn is empty. A configured but
// unreachable database is an error: falling back to memory would drop data.
func connectPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// connectRedis returns a nil client when REDIS_ADDR is empty and an error when
// the configured server cannot be reached. Tenant routing depends on the
// stored configs, so there is no in-memory fallback for a configured Redis.
func connectRedis(ctx context.Context, cfg *appconfig.Config) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// checkWebhookAuth refuses to expose unsigned WAHA webhooks outside
// development, since anyone could then trigger replies for any tenant.
func checkWebhookAuth(cfg *appconfig.Config, logger *logging.Logger) error {
	if !cfg.TwilioValidateSignature || strings.TrimSpace(cfg.TwilioAuthToken) == "" {
		logger.Warn("twilio webhook signatures are not validated")
	}
	if strings.TrimSpace(cfg.WahaWebhookHMACKey) != "" {
		return nil
	}
	if cfg.Env == "development" {
		logger.Warn("WAHA_WEBHOOK_HMAC_KEY not set, waha webhooks are unauthenticated")
		return nil
	}
	return errors.New("WAHA_WEBHOOK_HMAC_KEY is required when ENV is not development")
}

// stores groups the persistence backends chosen at startup.
type stores struct {
	conversations conversation.Repository
	customers     conversation.CustomerRepository
	leads         leads.Repository
	messages      messaging.MessageStore
	history       conversation.HistorySource
}

func setupStores(pool *pgxpool.Pool, logger *logging.Logger) stores {
	if pool != nil {
		msgStore := messaging.NewPostgresStore(pool, logger)
		return stores{
			conversations: conversation.NewPostgresRepository(pool),
			customers:     conversation.NewPostgresCustomers(pool),
			leads:         leads.NewPostgresRepository(pool),
			messages:      msgStore,
			history:       msgStore,
		}
	}
	convRepo := conversation.NewInMemoryRepository()
	msgStore := messaging.NewMemoryStore(convRepo)
	return stores{
		conversations: convRepo,
		customers:     conversation.NewInMemoryCustomers(),
		leads:         leads.NewInMemoryRepository(),
		messages:      msgStore,
		history:       msgStore,
	}
}

// tenantStore is the tenant configuration backend, readable by the router and
// writable through the admin API.
type tenantStore interface {
	tenant.Source
	handlers.ConfigStore
}

func setupTenantStore(rdb *redis.Client) tenantStore {
	if rdb != nil {
		return tenant.NewRedisStore(rdb)
	}
	return tenant.NewMemoryStore()
}

func setupOutboundLimiter(rdb *redis.Client, cfg *appconfig.Config, logger *logging.Logger) messaging.Limiter {
	if rdb == nil || cfg.OutboundRateLimit <= 0 {
		return ratelimit.Unlimited{}
	}
	return ratelimit.NewRedisLimiter(rdb, ratelimit.Config{
		MaxPerWindow: cfg.OutboundRateLimit,
		Window:       cfg.OutboundRateWindow,
	}, logger)
}

// setupWebhookLimiter returns nil when webhook throttling is disabled. The
// in-process bucket is swept until ctx ends.
func setupWebhookLimiter(ctx context.Context, rdb *redis.Client, perMinute int, logger *logging.Logger) httpmiddleware.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if rdb != nil {
		return ratelimit.NewRedisLimiter(rdb, ratelimit.Config{MaxPerWindow: perMinute, Window: time.Minute}, logger)
	}
	bucket := httpmiddleware.NewTokenBucket(float64(perMinute)/60, perMinute)
	go bucket.RunSweeper(ctx, time.Minute, 10*time.Minute)
	return bucket
}

func setupTransports(cfg *appconfig.Config, logger *logging.Logger) map[tenant.Provider]messaging.Transport {
	return map[tenant.Provider]messaging.Transport{
		tenant.ProviderWaha:   messaging.NewWahaSender(cfg.WahaBaseURL, cfg.WahaAPIKey, cfg.ProviderTimeout, logger),
		tenant.ProviderTwilio: messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioBaseURL, cfg.ProviderTimeout, logger),
	}
}

// buildResponder picks the AI backend. Unknown or unconfigured providers fall
// back to a fixed reply so the pipeline stays usable in development.
func buildResponder(ctx context.Context, cfg *appconfig.Config, history conversation.HistorySource, logger *logging.Logger) (conversation.Responder, func(), error) {
	noop := func() {}
	respCfg := conversation.LLMResponderConfig{
		SystemPrompt: cfg.AISystemPrompt,
		HistoryLimit: cfg.AIHistoryLimit,
		MaxTokens:    int32(cfg.AIMaxTokens),
		Temperature:  0.3,
	}

	switch strings.ToLower(strings.TrimSpace(cfg.AIProvider)) {
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			break
		}
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("load aws config: %w", err)
		}
		client := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		respCfg.Model = cfg.BedrockModelID
		logger.Info("ai responder configured", "provider", "bedrock", "model", cfg.BedrockModelID)
		return conversation.NewLLMResponder(client, history, respCfg, logger), noop, nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			break
		}
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, fmt.Errorf("create gemini client: %w", err)
		}
		respCfg.Model = cfg.GeminiModelID
		logger.Info("ai responder configured", "provider", "gemini", "model", cfg.GeminiModelID)
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close gemini client", "error", err)
			}
		}
		return conversation.NewLLMResponder(client, history, respCfg, logger), closeFn, nil
	}

	logger.Warn("no ai provider configured, using static replies", "provider", cfg.AIProvider)
	return conversation.StaticResponder{Reply: devReply}, noop, nil
}

// buildEmailSender returns the lead notification transport. A stub is used
// when the selected provider has no credentials.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil {
			return sender
		}
	case "ses":
		if strings.TrimSpace(cfg.EmailFromAddress) == "" {
			break
		}
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load aws config for ses", "error", err)
			break
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("email provider not configured, lead notifications are logged only", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}

func healthChecks(pool *pgxpool.Pool, rdb *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
