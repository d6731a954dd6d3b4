package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/messaging-gateway/internal/leads"
	"github.com/wolfman30/messaging-gateway/internal/tenant"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// LeadNotifier emails a tenant's recipients when an inbound message creates a lead.
type LeadNotifier struct {
	email   EmailSender
	configs tenant.Source
	logger  *logging.Logger
}

func NewLeadNotifier(email EmailSender, configs tenant.Source, logger *logging.Logger) *LeadNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadNotifier{email: email, configs: configs, logger: logger}
}

// NotifyNewLead sends one email per configured recipient. It is a no-op when
// the tenant has email notifications disabled or no sender is configured.
// Every recipient is attempted; failures are joined.
func (n *LeadNotifier) NotifyNewLead(ctx context.Context, tenantID string, lead *leads.Lead) error {
	if n == nil || n.email == nil || n.configs == nil || lead == nil {
		return nil
	}

	cfg, err := n.configs.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("notify: load tenant config: %w", err)
	}
	if !cfg.EmailNotificationsEnabled() {
		return nil
	}

	msg := newLeadEmail(lead)
	var errs []error
	for _, to := range cfg.NotifyEmails {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		msg.To = to
		if err := n.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	if len(errs) > 0 {
		n.logger.Warn("lead notification partially failed", "tenant_id", tenantID, "lead_id", lead.ID, "failed", len(errs))
		return fmt.Errorf("notify: %d of %d lead emails failed: %w", len(errs), len(cfg.NotifyEmails), errors.Join(errs...))
	}
	return nil
}

func newLeadEmail(lead *leads.Lead) EmailMessage {
	var b strings.Builder
	b.WriteString("A new WhatsApp contact wrote in.\n\n")
	fmt.Fprintf(&b, "Name: %s\n", lead.Name)
	fmt.Fprintf(&b, "Phone: +%s\n", leads.PhoneDigits(lead.Phone))
	fmt.Fprintf(&b, "Source: %s\n", lead.Source)
	if lead.ConversationID != nil {
		fmt.Fprintf(&b, "Conversation: %s\n", lead.ConversationID.String())
	}
	return EmailMessage{
		Subject: fmt.Sprintf("New lead: %s", lead.Name),
		Body:    b.String(),
	}
}
