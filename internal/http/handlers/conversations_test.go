package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/messaging-gateway/internal/conversation"
	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/tenancy"
	"github.com/wolfman30/messaging-gateway/internal/tenant"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

func withTenant(tenantID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(tenancy.WithTenantID(r.Context(), tenantID)))
	})
}

func seedConversation(t *testing.T) (*conversation.InMemoryRepository, *messaging.MemoryStore, uuid.UUID) {
	t.Helper()
	convs := conversation.NewInMemoryRepository()
	conv := &conversation.Conversation{TenantID: "t1", Phone: "15551234567", IsBotActive: true, IsLead: true}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	store := messaging.NewMemoryStore(convs)
	if _, err := store.RecordInbound(context.Background(), conv.ID, messaging.NormalizedMessage{From: "15551234567", Text: "hi", MessageID: "w1", Source: messaging.SourceWaha}); err != nil {
		t.Fatalf("record inbound: %v", err)
	}
	if _, err := store.RecordOutbound(context.Background(), conv.ID, "hello!", "w2"); err != nil {
		t.Fatalf("record outbound: %v", err)
	}
	return convs, store, conv.ID
}

func conversationRouter(tenantID string, h *ConversationsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/conversations/{conversationID}", h.Get)
	r.Put("/api/v1/conversations/{conversationID}/bot", h.SetBot)
	return withTenant(tenantID, r)
}

func TestConversationsGet(t *testing.T) {
	convs, store, id := seedConversation(t)
	h := NewConversationsHandler(convs, store, logging.New("error"))

	rec := httptest.NewRecorder()
	conversationRouter("t1", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/"+id.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp conversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MessagesCount != 2 || len(resp.Messages) != 2 {
		t.Fatalf("expected two messages, got %+v", resp)
	}
	if resp.Messages[0].Direction != "inbound" || resp.Messages[1].Body != "hello!" {
		t.Fatalf("unexpected messages %+v", resp.Messages)
	}

	rec = httptest.NewRecorder()
	conversationRouter("other-tenant", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/"+id.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("other tenants must not see the conversation, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	conversationRouter("t1", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestConversationsSetBot(t *testing.T) {
	convs, store, id := seedConversation(t)
	h := NewConversationsHandler(convs, store, logging.New("error"))

	rec := httptest.NewRecorder()
	conversationRouter("t1", h).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/conversations/"+id.String()+"/bot", strings.NewReader(`{"active":false}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	conv, err := convs.GetByID(context.Background(), "t1", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.IsBotActive {
		t.Fatalf("expected bot to be disabled")
	}

	rec = httptest.NewRecorder()
	conversationRouter("t1", h).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/conversations/"+id.String()+"/bot", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without active flag, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	conversationRouter("t1", h).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/conversations/"+uuid.NewString()+"/bot", strings.NewReader(`{"active":true}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conversation, got %d", rec.Code)
	}
}

func TestMessagingConfigHandler(t *testing.T) {
	store := tenant.NewMemoryStore()
	h := NewMessagingConfigHandler(store, logging.New("error"))
	r := chi.NewRouter()
	r.Get("/api/v1/messaging-config", h.Get)
	r.Put("/api/v1/messaging-config", h.Put)
	srv := withTenant("t1", r)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/messaging-config", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"active_transport":"waha"`) {
		t.Fatalf("expected default waha config, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/messaging-config", strings.NewReader(`{"tier":"premium","provider":"twilio"}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for twilio without number, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/messaging-config",
		strings.NewReader(`{"tenant_id":"spoofed","tier":"premium","provider":"twilio","outbound_number":"+14155238886"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cfg, _ := store.Get(context.Background(), "t1")
	if cfg.Provider != tenant.ProviderTwilio || cfg.OutboundNumber != "+14155238886" {
		t.Fatalf("config not stored for caller: %+v", cfg)
	}
	if spoofed, _ := store.Get(context.Background(), "spoofed"); spoofed.Provider != tenant.ProviderWaha {
		t.Fatalf("tenant id in body must be ignored")
	}
}
