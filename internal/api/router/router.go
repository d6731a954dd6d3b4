package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/messaging-gateway/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/messaging-gateway/internal/http/middleware"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger          *logging.Logger
	Webhooks        *handlers.WebhookHandler
	Send            *handlers.SendHandler
	Conversations   *handlers.ConversationsHandler
	MessagingConfig *handlers.MessagingConfigHandler
	Health          http.Handler
	MetricsHandler  http.Handler

	// WebhookLimiter throttles webhook deliveries per client IP.
	WebhookLimiter httpmiddleware.Limiter
	// APIJWTSecret protects /api/v1; empty disables the API.
	APIJWTSecret string
}

// New creates the chi router with every route configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}
	r.Method(http.MethodGet, "/health", health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhooks != nil {
		r.Route("/webhooks", func(hooks chi.Router) {
			if cfg.WebhookLimiter != nil {
				hooks.Use(httpmiddleware.RateLimit(cfg.WebhookLimiter, "webhook", cfg.Logger))
			}
			hooks.Post("/waha/{tenantID}", cfg.Webhooks.Waha)
			hooks.Post("/twilio/{tenantID}", cfg.Webhooks.Twilio)
		})
	}

	if cfg.APIJWTSecret != "" {
		r.Route("/api/v1", func(api chi.Router) {
			api.Use(httpmiddleware.TenantJWT(cfg.APIJWTSecret))
			api.Use(middleware.AllowContentType("application/json"))
			if cfg.Send != nil {
				api.Post("/messages", cfg.Send.Send)
			}
			if cfg.Conversations != nil {
				api.Get("/conversations/{conversationID}", cfg.Conversations.Get)
				api.Put("/conversations/{conversationID}/bot", cfg.Conversations.SetBot)
			}
			if cfg.MessagingConfig != nil {
				api.Get("/messaging-config", cfg.MessagingConfig.Get)
				api.Put("/messaging-config", cfg.MessagingConfig.Put)
			}
		})
	}

	return r
}
