package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Conversation is the thread between a tenant and one phone number.
// It links to a customer, a lead, or neither for legacy rows.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Phone         string     `json:"phone"`
	CustomerID    *uuid.UUID `json:"customer_id,omitempty"`
	LeadID        *uuid.UUID `json:"lead_id,omitempty"`
	IsBotActive   bool       `json:"is_bot_active"`
	IsLead        bool       `json:"is_lead"`
	MessagesCount int        `json:"messages_count"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Customer is an existing customer record. Read-only here.
type Customer struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
}

var (
	ErrConversationNotFound = errors.New("conversation: not found")
	ErrConversationExists   = errors.New("conversation: already exists for phone")
	ErrCustomerNotFound     = errors.New("conversation: customer not found")
	ErrInvalidPhone         = errors.New("conversation: phone has no digits")
	ErrMissingTenantID      = errors.New("conversation: tenant id is required")
)

func phoneDigits(phone string) string {
	out := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if c := phone[i]; c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}
