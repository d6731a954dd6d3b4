package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/messaging-gateway/internal/gateway"
	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/observability/metrics"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var webhookTracer = otel.Tracer("gateway.internal.http.webhooks")

const (
	defaultMaxWebhookBytes = 1 << 20
	emptyTwiML             = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// Processor runs one delivery through the pipeline.
type Processor interface {
	Process(ctx context.Context, payload messaging.Payload, tenantID string) gateway.Outcome
}

// WebhookConfig wires a WebhookHandler.
type WebhookConfig struct {
	Processor Processor
	// TwilioAuthToken enables X-Twilio-Signature checks when ValidateTwilio is set.
	TwilioAuthToken string
	ValidateTwilio  bool
	// PublicBaseURL is the externally visible origin used to rebuild the signed URL.
	PublicBaseURL string
	// WahaHMACKey enables X-Webhook-Hmac checks.
	WahaHMACKey  string
	MaxBodyBytes int64
	Metrics      *metrics.GatewayMetrics
	Logger       *logging.Logger
}

// WebhookHandler accepts inbound WAHA and Twilio deliveries.
type WebhookHandler struct {
	processor      Processor
	twilioToken    string
	validateTwilio bool
	publicBaseURL  string
	wahaHMACKey    string
	maxBodyBytes   int64
	metrics        *metrics.GatewayMetrics
	logger         *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Processor == nil {
		panic("handlers: webhook processor required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxWebhookBytes
	}
	return &WebhookHandler{
		processor:      cfg.Processor,
		twilioToken:    cfg.TwilioAuthToken,
		validateTwilio: cfg.ValidateTwilio && cfg.TwilioAuthToken != "",
		publicBaseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		wahaHMACKey:    cfg.WahaHMACKey,
		maxBodyBytes:   cfg.MaxBodyBytes,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
}

// wahaMessageEvents are the WAHA events that carry an inbound message.
var wahaMessageEvents = map[string]bool{"message": true, "message.any": true}

// Waha handles POST /webhooks/waha/{tenantID}.
func (h *WebhookHandler) Waha(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhooks.waha")
	defer span.End()
	tenantID := chi.URLParam(r, "tenantID")
	span.SetAttributes(attribute.String("gateway.tenant_id", tenantID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.reject(w, messaging.SourceWaha, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if h.wahaHMACKey != "" && !messaging.ValidateWahaSignature(body, r.Header.Get(messaging.WahaHMACHeader), h.wahaHMACKey) {
		h.logger.Warn("invalid waha webhook signature", "tenant_id", tenantID)
		span.RecordError(errors.New("invalid waha signature"))
		h.reject(w, messaging.SourceWaha, http.StatusUnauthorized, "invalid signature")
		return
	}

	if event := wahaEvent(body); event != "" && !wahaMessageEvents[event] {
		h.logger.Debug("ignoring waha event", "tenant_id", tenantID, "event", event)
		h.metrics.ObserveInbound(string(messaging.SourceWaha), "ignored_event")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	out := h.processor.Process(ctx, messaging.WahaPayload{Raw: body}, tenantID)
	if gateway.Retryable(out.Err) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Twilio handles POST /webhooks/twilio/{tenantID}. Replies are sent through the
// REST API, so the TwiML response is always empty.
func (h *WebhookHandler) Twilio(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhooks.twilio")
	defer span.End()
	tenantID := chi.URLParam(r, "tenantID")
	span.SetAttributes(attribute.String("gateway.tenant_id", tenantID))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, messaging.SourceTwilio, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.logger.Warn("failed to parse twilio webhook", "tenant_id", tenantID, "error", err)
		h.reject(w, messaging.SourceTwilio, http.StatusBadRequest, "invalid form")
		return
	}
	if h.validateTwilio && !messaging.ValidateTwilioSignature(r, h.twilioToken, h.signedURL(r)) {
		h.logger.Warn("invalid twilio signature", "tenant_id", tenantID)
		span.RecordError(errors.New("invalid twilio signature"))
		h.reject(w, messaging.SourceTwilio, http.StatusForbidden, "invalid signature")
		return
	}
	span.SetAttributes(attribute.String("gateway.twilio.message_sid", r.PostForm.Get("MessageSid")))

	out := h.processor.Process(ctx, messaging.TwilioPayload{Fields: messaging.FormToMap(r.PostForm)}, tenantID)
	if gateway.Retryable(out.Err) {
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, emptyTwiML)
}

func (h *WebhookHandler) reject(w http.ResponseWriter, source messaging.Source, status int, msg string) {
	h.metrics.ObserveInbound(string(source), fmt.Sprintf("rejected_%d", status))
	http.Error(w, msg, status)
}

// signedURL is the URL Twilio signed: the configured public origin when set,
// otherwise the one reconstructed from forwarding headers.
func (h *WebhookHandler) signedURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + r.URL.RequestURI()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}

func wahaEvent(body []byte) string {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Event)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
