package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var wahaSendTracer = otel.Tracer("gateway.internal.messaging.waha_send")

// WahaSender sends text messages through a WAHA server.
type WahaSender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewWahaSender(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *WahaSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &WahaSender{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: newHTTPClient(timeout),
		logger:     logger,
	}
}

var _ Transport = (*WahaSender)(nil)

func (s *WahaSender) Name() string { return "waha" }

type wahaSendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

// Send posts to /api/sendText and returns the WAHA message id.
func (s *WahaSender) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	if s.baseURL == "" {
		return "", errors.New("messaging: waha base url missing")
	}
	digits := destinationDigits(msg.To)
	if digits == "" {
		return "", errors.New("messaging: to required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", errBodyRequired
	}
	session := strings.TrimSpace(msg.Session)
	if session == "" {
		session = "default"
	}

	ctx, span := wahaSendTracer.Start(ctx, "messaging.waha.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.tenant_id", msg.TenantID),
		attribute.String("gateway.waha_session", session),
	)

	payload, err := json.Marshal(wahaSendTextRequest{
		Session: session,
		ChatID:  digits + "@c.us",
		Text:    msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("messaging: encode waha request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/sendText", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("messaging: build waha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "waha request failed")
		return "", fmt.Errorf("messaging: waha request: %w", err)
	}
	defer resp.Body.Close()
	body := readLimited(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if len(body) > 0 {
			detail = fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
		}
		perr := &ProviderError{Provider: "waha", StatusCode: resp.StatusCode, Detail: detail}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "waha rejected message")
		return "", perr
	}

	id := parseWahaMessageID(body)
	s.logger.Info("waha whatsapp sent", "tenant_id", msg.TenantID, "session", session, "message_id", id)
	return id, nil
}

// parseWahaMessageID reads "id" as either a string or an object with _serialized/id.
func parseWahaMessageID(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	obj := decodeObject(body)
	if id := obj.str("id"); id != "" {
		return id
	}
	if id := obj.str("id", "_serialized"); id != "" {
		return id
	}
	if id := obj.str("id", "id"); id != "" {
		return id
	}
	return obj.str("key", "id")
}
