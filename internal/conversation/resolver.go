package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/messaging-gateway/internal/leads"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var resolverTracer = otel.Tracer("gateway.internal.conversation.resolver")

// leadChannel prefixes the placeholder name of leads created from inbound messages.
const leadChannel = "WhatsApp"

// Resolution is the conversation an inbound message belongs to.
type Resolution struct {
	ConversationID      uuid.UUID
	IsBotActive         bool
	CustomerID          *uuid.UUID
	LeadID              *uuid.UUID
	LeadCreated         bool
	ConversationCreated bool
	// Lead is set whenever the conversation was resolved through a lead in this call.
	Lead *leads.Lead
}

// Resolver maps (tenant, phone) to a conversation, creating the lead and
// conversation when the phone is unknown.
type Resolver struct {
	conversations Repository
	customers     CustomerRepository
	leads         leads.Repository
	logger        *logging.Logger
}

func NewResolver(conversations Repository, customers CustomerRepository, leadRepo leads.Repository, logger *logging.Logger) *Resolver {
	if conversations == nil || customers == nil || leadRepo == nil {
		panic("conversation: resolver requires conversation, customer and lead repositories")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{conversations: conversations, customers: customers, leads: leadRepo, logger: logger}
}

// Resolve finds or creates the conversation for phone.
//
// Precedence: existing conversation, then existing customer, then existing
// lead, then a new lead. Every creation is preceded by a re-read and a
// uniqueness conflict turns into reuse of the row that won.
func (r *Resolver) Resolve(ctx context.Context, tenantID, phone string) (Resolution, error) {
	ctx, span := resolverTracer.Start(ctx, "conversation.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.tenant_id", tenantID))

	if strings.TrimSpace(tenantID) == "" {
		return Resolution{}, ErrMissingTenantID
	}
	digits := phoneDigits(phone)
	if digits == "" {
		return Resolution{}, ErrInvalidPhone
	}

	conv, err := r.conversations.FindByPhone(ctx, tenantID, digits)
	switch {
	case err == nil:
		return resolutionFrom(conv, false), nil
	case !errors.Is(err, ErrConversationNotFound):
		return Resolution{}, fmt.Errorf("conversation: lookup conversation: %w", err)
	}

	customer, err := r.customers.FindByPhone(ctx, tenantID, digits)
	switch {
	case err == nil:
		customerID := customer.ID
		return r.createConversation(ctx, &Conversation{
			TenantID:    tenantID,
			Phone:       digits,
			CustomerID:  &customerID,
			IsBotActive: true,
			IsLead:      false,
		})
	case !errors.Is(err, ErrCustomerNotFound):
		return Resolution{}, fmt.Errorf("conversation: lookup customer: %w", err)
	}

	lead, leadCreated, err := r.findOrCreateLead(ctx, tenantID, digits)
	if err != nil {
		return Resolution{}, err
	}

	leadID := lead.ID
	res, err := r.createConversation(ctx, &Conversation{
		TenantID:    tenantID,
		Phone:       digits,
		LeadID:      &leadID,
		IsBotActive: true,
		IsLead:      true,
	})
	if err != nil {
		return Resolution{}, err
	}
	res.Lead = lead
	res.LeadCreated = leadCreated

	if lead.ConversationID == nil || *lead.ConversationID != res.ConversationID {
		if err := r.leads.LinkConversation(ctx, tenantID, lead.ID, res.ConversationID); err != nil {
			r.logger.Warn("failed to link lead to conversation",
				"tenant_id", tenantID, "lead_id", lead.ID, "conversation_id", res.ConversationID, "error", err)
		} else {
			convID := res.ConversationID
			lead.ConversationID = &convID
		}
	}

	span.SetAttributes(
		attribute.Bool("gateway.lead_created", res.LeadCreated),
		attribute.Bool("gateway.conversation_created", res.ConversationCreated),
	)
	return res, nil
}

func (r *Resolver) findOrCreateLead(ctx context.Context, tenantID, digits string) (*leads.Lead, bool, error) {
	lead, err := r.leads.FindByPhone(ctx, tenantID, digits)
	if err == nil {
		return lead, false, nil
	}
	if !errors.Is(err, leads.ErrLeadNotFound) {
		return nil, false, fmt.Errorf("conversation: lookup lead: %w", err)
	}

	lead, err = r.leads.Create(ctx, &leads.CreateLeadRequest{
		TenantID: tenantID,
		Name:     leads.DisplayName(leadChannel, digits),
		Phone:    digits,
		Source:   leads.SourceWhatsAppInbound,
		Status:   leads.StatusNew,
	})
	if err == nil {
		r.logger.Info("lead created from inbound message", "tenant_id", tenantID, "lead_id", lead.ID)
		return lead, true, nil
	}
	if !errors.Is(err, leads.ErrLeadExists) {
		return nil, false, fmt.Errorf("conversation: create lead: %w", err)
	}

	lead, err = r.leads.FindByPhone(ctx, tenantID, digits)
	if err != nil {
		return nil, false, fmt.Errorf("conversation: reread lead after conflict: %w", err)
	}
	return lead, false, nil
}

func (r *Resolver) createConversation(ctx context.Context, conv *Conversation) (Resolution, error) {
	existing, err := r.conversations.FindByPhone(ctx, conv.TenantID, conv.Phone)
	switch {
	case err == nil:
		return resolutionFrom(existing, false), nil
	case !errors.Is(err, ErrConversationNotFound):
		return Resolution{}, fmt.Errorf("conversation: recheck conversation: %w", err)
	}

	err = r.conversations.Create(ctx, conv)
	if err == nil {
		r.logger.Info("conversation created", "tenant_id", conv.TenantID, "conversation_id", conv.ID, "is_lead", conv.IsLead)
		return resolutionFrom(conv, true), nil
	}
	if !errors.Is(err, ErrConversationExists) {
		return Resolution{}, fmt.Errorf("conversation: create conversation: %w", err)
	}

	existing, err = r.conversations.FindByPhone(ctx, conv.TenantID, conv.Phone)
	if err != nil {
		return Resolution{}, fmt.Errorf("conversation: reread conversation after conflict: %w", err)
	}
	return resolutionFrom(existing, false), nil
}

func resolutionFrom(conv *Conversation, created bool) Resolution {
	return Resolution{
		ConversationID:      conv.ID,
		IsBotActive:         conv.IsBotActive,
		CustomerID:          conv.CustomerID,
		LeadID:              conv.LeadID,
		ConversationCreated: created,
	}
}
