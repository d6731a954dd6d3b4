package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/ratelimit"
	"github.com/wolfman30/messaging-gateway/internal/tenancy"
	"github.com/wolfman30/messaging-gateway/internal/tenant"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

type captureTransport struct {
	sent []messaging.OutboundMessage
}

func (c *captureTransport) Name() string { return "waha" }

func (c *captureTransport) Send(_ context.Context, msg messaging.OutboundMessage) (string, error) {
	c.sent = append(c.sent, msg)
	return "wamid-1", nil
}

type closedGate struct{}

func (closedGate) CheckLimit(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{Allowed: false, RetryAfter: 12 * time.Second}, nil
}

func newSendRouter(configs *tenant.MemoryStore, limiter messaging.Limiter) (*messaging.Router, *captureTransport) {
	transport := &captureTransport{}
	return messaging.NewRouter(messaging.RouterConfig{
		Configs:    configs,
		Transports: map[tenant.Provider]messaging.Transport{tenant.ProviderWaha: transport},
		Limiter:    limiter,
		Logger:     logging.New("error"),
	}), transport
}

func postSend(h *SendHandler, tenantID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	if tenantID != "" {
		req = req.WithContext(tenancy.WithTenantID(req.Context(), tenantID))
	}
	rec := httptest.NewRecorder()
	h.Send(rec, req)
	return rec
}

func TestSendHandlerSuccess(t *testing.T) {
	router, transport := newSendRouter(tenant.NewMemoryStore(), nil)
	h := NewSendHandler(router, logging.New("error"))

	rec := postSend(h, "t1", `{"to":"+1 (555) 123-4567","body":"Your order shipped"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp sendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.MessageID != "wamid-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(transport.sent) != 1 || transport.sent[0].To != "+15551234567" || transport.sent[0].Session != "t1" {
		t.Fatalf("unexpected outbound %+v", transport.sent)
	}
}

func TestSendHandlerErrors(t *testing.T) {
	misconfigured := tenant.NewMemoryStore()
	misconfigured.Put(tenant.MessagingConfig{TenantID: "t1", Tier: tenant.TierPremium, Provider: tenant.ProviderTwilio})

	cases := []struct {
		name     string
		configs  *tenant.MemoryStore
		limiter  messaging.Limiter
		tenantID string
		body     string
		status   int
		kind     string
	}{
		{"no tenant", tenant.NewMemoryStore(), nil, "", `{"to":"1555","body":"x"}`, http.StatusUnauthorized, ""},
		{"bad json", tenant.NewMemoryStore(), nil, "t1", `{"to":`, http.StatusBadRequest, ""},
		{"unknown field", tenant.NewMemoryStore(), nil, "t1", `{"to":"1555","body":"x","from":"y"}`, http.StatusBadRequest, ""},
		{"missing body", tenant.NewMemoryStore(), nil, "t1", `{"to":"1555"}`, http.StatusBadRequest, ""},
		{"not a phone", tenant.NewMemoryStore(), nil, "t1", `{"to":"abc","body":"x"}`, http.StatusBadRequest, ""},
		{"configuration", misconfigured, nil, "t1", `{"to":"1555","body":"x"}`, http.StatusUnprocessableEntity, string(messaging.KindConfiguration)},
		{"rate limited", tenant.NewMemoryStore(), closedGate{}, "t1", `{"to":"1555","body":"x"}`, http.StatusTooManyRequests, string(messaging.KindRateLimited)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, transport := newSendRouter(tc.configs, tc.limiter)
			rec := postSend(NewSendHandler(router, logging.New("error")), tc.tenantID, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if len(transport.sent) != 0 {
				t.Fatalf("nothing should be sent")
			}
			if tc.kind == "" {
				return
			}
			var resp sendMessageResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.ErrorKind != tc.kind {
				t.Fatalf("expected kind %s, got %+v", tc.kind, resp)
			}
			if tc.kind == string(messaging.KindRateLimited) && (resp.RetryAfter != 12 || rec.Header().Get("Retry-After") != "12") {
				t.Fatalf("expected retry after 12s, got %+v", resp)
			}
		})
	}
}
