package messaging

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/messaging-gateway/internal/observability/metrics"
	"github.com/wolfman30/messaging-gateway/internal/ratelimit"
	"github.com/wolfman30/messaging-gateway/internal/tenant"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var routerTracer = otel.Tracer("gateway.internal.messaging.router")

// Limiter is the outbound send gate.
type Limiter interface {
	CheckLimit(ctx context.Context, scopeKey string) (ratelimit.Result, error)
}

// RouterConfig wires a Router.
type RouterConfig struct {
	Configs    tenant.Source
	Transports map[tenant.Provider]Transport
	Limiter    Limiter
	Metrics    *metrics.GatewayMetrics
	Logger     *logging.Logger
}

// Router picks exactly one transport per tenant and sends through it.
type Router struct {
	configs    tenant.Source
	transports map[tenant.Provider]Transport
	limiter    Limiter
	metrics    *metrics.GatewayMetrics
	logger     *logging.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Configs == nil {
		panic("messaging: tenant config source required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.Unlimited{}
	}
	transports := make(map[tenant.Provider]Transport, len(cfg.Transports))
	for provider, t := range cfg.Transports {
		if t != nil {
			transports[provider] = t
		}
	}
	return &Router{
		configs:    cfg.Configs,
		transports: transports,
		limiter:    cfg.Limiter,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// RateLimitScope is the limiter key for a tenant's sends through transport.
func RateLimitScope(transport tenant.Provider, tenantID string) string {
	return fmt.Sprintf("outbound:%s:%s", transport, tenantID)
}

// Send delivers body to the destination using the tenant's single active transport.
// It never falls back to another transport.
func (r *Router) Send(ctx context.Context, tenantID, to, body string) SendResult {
	ctx, span := routerTracer.Start(ctx, "messaging.router.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("gateway.tenant_id", tenantID))

	fail := func(transport tenant.Provider, serr *SendError) SendResult {
		span.RecordError(serr)
		span.SetStatus(codes.Error, string(serr.Kind))
		label := string(transport)
		if label == "" {
			label = "none"
		}
		r.metrics.ObserveOutbound(label, string(serr.Kind))
		r.logger.Warn("outbound send failed", "tenant_id", tenantID, "transport", label, "kind", serr.Kind, "error", serr.Message)
		return SendResult{Err: serr}
	}

	dest := NormalizeDestination(to)
	if destinationDigits(dest) == "" {
		return fail(tenant.ProviderNone, providerSendError(nil, "invalid destination %q", to))
	}
	if strings.TrimSpace(body) == "" {
		return fail(tenant.ProviderNone, providerSendError(errBodyRequired, "empty message body"))
	}

	cfg, err := r.configs.Get(ctx, tenantID)
	if err != nil {
		return fail(tenant.ProviderNone, configurationError(err, "load tenant config: %v", err))
	}
	provider, err := cfg.ActiveTransport()
	if err != nil {
		return fail(tenant.ProviderNone, configurationError(err, "%v", err))
	}
	transport, ok := r.transports[provider]
	if !ok {
		return fail(provider, configurationError(nil, "transport %s is not available", provider))
	}
	span.SetAttributes(attribute.String("gateway.transport", string(provider)))

	gate, err := r.limiter.CheckLimit(ctx, RateLimitScope(provider, tenantID))
	if err != nil {
		r.logger.Warn("rate limiter unavailable, allowing send", "tenant_id", tenantID, "error", err)
	} else if !gate.Allowed {
		return fail(provider, rateLimitedError(gate.RetryAfter))
	}

	messageID, err := transport.Send(ctx, OutboundMessage{
		TenantID: tenantID,
		To:       dest,
		Body:     body,
		From:     cfg.OutboundNumber,
		Session:  cfg.Session(),
	})
	if err != nil {
		return fail(provider, providerSendError(err, "%v", err))
	}

	r.metrics.ObserveOutbound(string(provider), "sent")
	r.logger.Info("outbound message sent", "tenant_id", tenantID, "transport", provider, "message_id", messageID)
	return SendResult{Success: true, MessageID: messageID}
}
