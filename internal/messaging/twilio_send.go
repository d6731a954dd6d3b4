package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var twilioSendTracer = otel.Tracer("gateway.internal.messaging.twilio_send")

// DefaultTwilioBaseURL is the Twilio REST API root.
const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender posts WhatsApp messages using Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioSender builds a sender. An empty baseURL uses the public API.
func NewTwilioSender(accountSID, authToken, baseURL string, timeout time.Duration, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultTwilioBaseURL
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
		logger:     logger,
	}
}

var _ Transport = (*TwilioSender)(nil)

func (s *TwilioSender) Name() string { return "twilio" }

// Send dispatches one WhatsApp message. Failures are returned without retrying.
func (s *TwilioSender) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	if s.accountSID == "" || s.authToken == "" {
		return "", errors.New("messaging: twilio credentials missing")
	}
	to := destinationDigits(msg.To)
	if to == "" {
		return "", errors.New("messaging: to required")
	}
	from := sanitizePhone(stripWhatsAppPrefix(msg.From))
	if from == "" {
		return "", errors.New("messaging: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", errBodyRequired
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.tenant_id", msg.TenantID),
		attribute.String("gateway.to", to),
	)

	payload := url.Values{}
	payload.Set("To", "whatsapp:+"+to)
	payload.Set("From", "whatsapp:+"+from)
	payload.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", fmt.Errorf("messaging: build twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "twilio request failed")
		return "", fmt.Errorf("messaging: twilio request: %w", err)
	}
	defer resp.Body.Close()
	body := readLimited(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := &ProviderError{Provider: "twilio", StatusCode: resp.StatusCode, Detail: formatTwilioError(resp.StatusCode, body)}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "twilio rejected message")
		return "", perr
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &parsed)
	}
	span.SetAttributes(attribute.String("gateway.provider_message_id", parsed.SID))
	s.logger.Info("twilio whatsapp sent", "tenant_id", msg.TenantID, "sid", parsed.SID, "status", parsed.Status)
	return parsed.SID, nil
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}
