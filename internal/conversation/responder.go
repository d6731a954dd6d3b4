package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var responderTracer = otel.Tracer("gateway.internal.conversation.responder")

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = `You are a friendly assistant answering WhatsApp messages on behalf of a business.
Reply in the customer's language. Keep answers short, plain text, no markdown.
If you cannot help, say a team member will follow up.`

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("conversation: model returned an empty reply")

// ReplyRequest is the input of a Responder.
type ReplyRequest struct {
	TenantID         string
	ConversationID   uuid.UUID
	CustomerPhone    string
	CustomerMessage  string
	// InboundMessageID is the stored record of CustomerMessage; uuid.Nil when
	// the inbound insert failed.
	InboundMessageID uuid.UUID
}

// Responder produces the reply text for an inbound message.
type Responder interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// HistorySource returns prior messages of a conversation, oldest first.
type HistorySource interface {
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]messaging.MessageRecord, error)
}

// Chat roles understood by every LLMClient.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of the history sent to a model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest is a provider-neutral completion request. A negative Temperature
// leaves the provider default in place.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

type TokenUsage struct {
	InputTokens, OutputTokens, TotalTokens int32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient completes a chat history. Implemented by BedrockLLMClient and
// GeminiLLMClient.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// LLMResponderConfig configures an LLMResponder.
type LLMResponderConfig struct {
	Model        string
	SystemPrompt string
	HistoryLimit int
	MaxTokens    int32
	Temperature  float32
}

// LLMResponder answers with an LLMClient, replaying recent conversation history.
type LLMResponder struct {
	client  LLMClient
	history HistorySource
	cfg     LLMResponderConfig
	logger  *logging.Logger
}

// NewLLMResponder builds a responder; history may be nil.
func NewLLMResponder(client LLMClient, history HistorySource, cfg LLMResponderConfig, logger *logging.Logger) *LLMResponder {
	if client == nil {
		panic("conversation: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 12
	}
	return &LLMResponder{client: client, history: history, cfg: cfg, logger: logger}
}

var _ Responder = (*LLMResponder)(nil)

func (r *LLMResponder) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	ctx, span := responderTracer.Start(ctx, "conversation.generate_reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.tenant_id", req.TenantID),
		attribute.String("gateway.conversation_id", req.ConversationID.String()),
	)

	var records []messaging.MessageRecord
	if r.history != nil && req.ConversationID != uuid.Nil {
		var err error
		records, err = r.history.RecentMessages(ctx, req.ConversationID, r.cfg.HistoryLimit)
		if err != nil {
			r.logger.Warn("failed to load conversation history", "conversation_id", req.ConversationID, "error", err)
			records = nil
		}
	}

	resp, err := r.client.Complete(ctx, LLMRequest{
		Model:       r.cfg.Model,
		System:      []string{r.cfg.SystemPrompt},
		Messages:    buildChat(records, req.CustomerMessage, req.InboundMessageID),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: generate reply: %w", err)
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return "", ErrEmptyReply
	}
	span.SetAttributes(attribute.Int("gateway.llm.output_tokens", int(resp.Usage.OutputTokens)))
	return reply, nil
}

// buildChat maps stored messages to chat turns. Consecutive turns of the same
// role are merged and the history starts with a user turn. The stored record
// with inboundID stands for the current message and carries its text; when no
// record matches (the inbound insert failed) the current message is appended.
func buildChat(records []messaging.MessageRecord, current string, inboundID uuid.UUID) []ChatMessage {
	chat := make([]ChatMessage, 0, len(records)+1)
	appendTurn := func(role, content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		if n := len(chat); n > 0 && chat[n-1].Role == role {
			chat[n-1].Content += "\n" + content
			return
		}
		if len(chat) == 0 && role != ChatRoleUser {
			return
		}
		chat = append(chat, ChatMessage{Role: role, Content: content})
	}

	included := false
	for _, rec := range records {
		if inboundID != uuid.Nil && rec.ID == inboundID {
			appendTurn(ChatRoleUser, current)
			included = true
			continue
		}
		role := ChatRoleUser
		if rec.Direction == messaging.DirectionOutbound {
			role = ChatRoleAssistant
		}
		appendTurn(role, rec.Body)
	}
	if !included {
		appendTurn(ChatRoleUser, current)
	}
	return chat
}

// StaticResponder always answers with the same text. Used in development.
type StaticResponder struct {
	Reply string
}

func (s StaticResponder) GenerateReply(context.Context, ReplyRequest) (string, error) {
	if strings.TrimSpace(s.Reply) == "" {
		return "", ErrEmptyReply
	}
	return s.Reply, nil
}
