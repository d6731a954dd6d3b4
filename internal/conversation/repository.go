package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists conversations. Phones are compared by digits.
type Repository interface {
	FindByPhone(ctx context.Context, tenantID, phone string) (*Conversation, error)
	// Create returns ErrConversationExists when (tenant, phone) is taken.
	Create(ctx context.Context, conv *Conversation) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Conversation, error)
	SetBotActive(ctx context.Context, tenantID string, id uuid.UUID, active bool) error
}

// CustomerRepository looks up existing customers.
type CustomerRepository interface {
	FindByPhone(ctx context.Context, tenantID, phone string) (*Customer, error)
}

// ActivityRecorder bumps conversation counters when a message is stored.
// A nil lastMessage leaves the last message text unchanged.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, conversationID uuid.UUID, lastMessage *string, at time.Time) error
}
