package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/messaging-gateway/internal/conversation"
	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/tenancy"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// ConversationStore is the conversation access the API needs.
type ConversationStore interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*conversation.Conversation, error)
	SetBotActive(ctx context.Context, tenantID string, id uuid.UUID, active bool) error
}

// MessageHistory lists the stored messages of a conversation.
type MessageHistory interface {
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]messaging.MessageRecord, error)
}

// ConversationsHandler lets a tenant inspect a conversation and hand it over
// to a human by turning the bot off.
type ConversationsHandler struct {
	conversations ConversationStore
	messages      MessageHistory
	logger        *logging.Logger
}

func NewConversationsHandler(conversations ConversationStore, messages MessageHistory, logger *logging.Logger) *ConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationsHandler{conversations: conversations, messages: messages, logger: logger}
}

type conversationMessage struct {
	ID                string    `json:"id"`
	Direction         string    `json:"direction"`
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	MediaURL          string    `json:"media_url,omitempty"`
	MediaType         string    `json:"media_type,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type conversationResponse struct {
	ID            string                `json:"id"`
	Phone         string                `json:"phone"`
	IsBotActive   bool                  `json:"is_bot_active"`
	IsLead        bool                  `json:"is_lead"`
	MessagesCount int                   `json:"messages_count"`
	LastMessage   string                `json:"last_message,omitempty"`
	LastMessageAt *time.Time            `json:"last_message_at,omitempty"`
	Messages      []conversationMessage `json:"messages"`
}

// Get serves GET /api/v1/conversations/{conversationID}?limit=N.
func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	conv, err := h.conversations.GetByID(r.Context(), tenantID, id)
	if !h.handleLookupError(w, tenantID, id, err) {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	records, err := h.messages.RecentMessages(r.Context(), conv.ID, limit)
	if err != nil {
		h.logger.Error("failed to list conversation messages", "tenant_id", tenantID, "conversation_id", id, "error", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}

	resp := conversationResponse{
		ID:            conv.ID.String(),
		Phone:         conv.Phone,
		IsBotActive:   conv.IsBotActive,
		IsLead:        conv.IsLead,
		MessagesCount: conv.MessagesCount,
		LastMessage:   conv.LastMessage,
		LastMessageAt: conv.LastMessageAt,
		Messages:      make([]conversationMessage, 0, len(records)),
	}
	for _, rec := range records {
		resp.Messages = append(resp.Messages, conversationMessage{
			ID:                rec.ID.String(),
			Direction:         string(rec.Direction),
			Body:              rec.Body,
			ProviderMessageID: rec.ProviderMessageID,
			MediaURL:          rec.MediaURL,
			MediaType:         string(rec.MediaType),
			CreatedAt:         rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetBot serves PUT /api/v1/conversations/{conversationID}/bot with {"active": bool}.
func (h *ConversationsHandler) SetBot(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil || req.Active == nil {
		http.Error(w, `body must be {"active": true|false}`, http.StatusBadRequest)
		return
	}
	err := h.conversations.SetBotActive(r.Context(), tenantID, id, *req.Active)
	if !h.handleLookupError(w, tenantID, id, err) {
		return
	}
	h.logger.Info("conversation bot toggled", "tenant_id", tenantID, "conversation_id", id, "active", *req.Active)
	writeJSON(w, http.StatusOK, map[string]any{"id": id.String(), "is_bot_active": *req.Active})
}

func (h *ConversationsHandler) target(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "tenant required", http.StatusUnauthorized)
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return "", uuid.Nil, false
	}
	return tenantID, id, true
}

func (h *ConversationsHandler) handleLookupError(w http.ResponseWriter, tenantID string, id uuid.UUID, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, conversation.ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
	default:
		h.logger.Error("conversation lookup failed", "tenant_id", tenantID, "conversation_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return false
}
