package leads

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// SourceWhatsAppInbound marks leads created from an inbound WhatsApp message.
	SourceWhatsAppInbound = "whatsapp_inbound"
	// StatusNew is the status of a lead nobody has worked yet.
	StatusNew = "new"
)

// Lead is a prospective customer first seen through a messaging channel.
type Lead struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       string     `json:"tenant_id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateLeadRequest holds the fields of a new lead.
type CreateLeadRequest struct {
	TenantID string
	Name     string
	Phone    string
	Source   string
	Status   string
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return ErrMissingTenantID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if PhoneDigits(r.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

func (r *CreateLeadRequest) applyDefaults() {
	if r.Source == "" {
		r.Source = SourceWhatsAppInbound
	}
	if r.Status == "" {
		r.Status = StatusNew
	}
}

// DisplayName builds the placeholder name of a lead known only by phone.
func DisplayName(channel, phone string) string {
	digits := PhoneDigits(phone)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return strings.TrimSpace(channel + " " + digits)
}

// PhoneDigits strips everything but digits; phones are compared this way.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
