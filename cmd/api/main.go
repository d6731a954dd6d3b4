package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/messaging-gateway/internal/api/router"
	appconfig "github.com/wolfman30/messaging-gateway/internal/config"
	"github.com/wolfman30/messaging-gateway/internal/conversation"
	"github.com/wolfman30/messaging-gateway/internal/gateway"
	"github.com/wolfman30/messaging-gateway/internal/http/handlers"
	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/notify"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting messaging gateway",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkWebhookAuth(cfg, logger); err != nil {
		logger.Error("refusing to start", "error", err)
		os.Exit(1)
	}

	pool, err := connectPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		logger.Info("using postgres storage")
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}
	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory tenant config and no outbound limit")
	}

	metricsHandler, gatewayMetrics := setupMetrics()
	st := setupStores(pool, logger)
	tenants := setupTenantStore(rdb)

	responder, closeResponder, err := buildResponder(ctx, cfg, st.history, logger)
	if err != nil {
		logger.Error("failed to configure ai responder", "error", err)
		os.Exit(1)
	}
	defer closeResponder()

	msgRouter := messaging.NewRouter(messaging.RouterConfig{
		Configs:    tenants,
		Transports: setupTransports(cfg, logger),
		Limiter:    setupOutboundLimiter(rdb, cfg, logger),
		Metrics:    gatewayMetrics,
		Logger:     logger,
	})

	orchestrator := gateway.NewOrchestrator(gateway.Config{
		Normalizer: messaging.NewNormalizer(),
		Resolver:   conversation.NewResolver(st.conversations, st.customers, st.leads, logger),
		Messages:   st.messages,
		Responder:  responder,
		Sender:     msgRouter,
		Notifier:   notify.NewLeadNotifier(buildEmailSender(ctx, cfg, logger), tenants, logger),
		Metrics:    gatewayMetrics,
		Logger:     logger,
	})

	r := router.New(&router.Config{
		Logger: logger,
		Webhooks: handlers.NewWebhookHandler(handlers.WebhookConfig{
			Processor:       orchestrator,
			TwilioAuthToken: cfg.TwilioAuthToken,
			ValidateTwilio:  cfg.TwilioValidateSignature,
			PublicBaseURL:   cfg.PublicBaseURL,
			WahaHMACKey:     cfg.WahaWebhookHMACKey,
			Metrics:         gatewayMetrics,
			Logger:          logger,
		}),
		Send:            handlers.NewSendHandler(msgRouter, logger),
		Conversations:   handlers.NewConversationsHandler(st.conversations, st.messages, logger),
		MessagingConfig: handlers.NewMessagingConfigHandler(tenants, logger),
		Health:          handlers.NewHealthHandler(healthChecks(pool, rdb)),
		MetricsHandler:  metricsHandler,
		WebhookLimiter:  setupWebhookLimiter(ctx, rdb, cfg.WebhookRateLimit, logger),
		APIJWTSecret:    cfg.APIJWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}
	logger.Info("server stopped")
}
