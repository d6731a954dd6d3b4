package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Lead, error)
	// FindByPhone returns ErrLeadNotFound when the tenant has no lead for phone.
	FindByPhone(ctx context.Context, tenantID, phone string) (*Lead, error)
	LinkConversation(ctx context.Context, tenantID string, leadID, conversationID uuid.UUID) error
}

// InMemoryRepository stores leads in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[uuid.UUID]*Lead
	// byPhone indexes tenant|digits to a lead id, mirroring the unique index.
	byPhone map[string]uuid.UUID
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[uuid.UUID]*Lead),
		byPhone: make(map[string]uuid.UUID),
	}
}

var _ Repository = (*InMemoryRepository)(nil)

func phoneKey(tenantID, phone string) string {
	return tenantID + "|" + PhoneDigits(phone)
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.applyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()
	key := phoneKey(req.TenantID, req.Phone)
	if _, exists := r.byPhone[key]; exists {
		return nil, ErrLeadExists
	}
	lead := &Lead{
		ID:        uuid.New(),
		TenantID:  req.TenantID,
		Name:      req.Name,
		Phone:     PhoneDigits(req.Phone),
		Source:    req.Source,
		Status:    req.Status,
		CreatedAt: time.Now().UTC(),
	}
	r.leads[lead.ID] = lead
	r.byPhone[key] = lead.ID
	return clone(lead), nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok || lead.TenantID != tenantID {
		return nil, ErrLeadNotFound
	}
	return clone(lead), nil
}

func (r *InMemoryRepository) FindByPhone(ctx context.Context, tenantID, phone string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phoneKey(tenantID, phone)]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return clone(r.leads[id]), nil
}

func (r *InMemoryRepository) LinkConversation(ctx context.Context, tenantID string, leadID, conversationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadID]
	if !ok || lead.TenantID != tenantID {
		return ErrLeadNotFound
	}
	convID := conversationID
	lead.ConversationID = &convID
	return nil
}

func clone(l *Lead) *Lead {
	cp := *l
	if l.ConversationID != nil {
		id := *l.ConversationID
		cp.ConversationID = &id
	}
	return &cp
}
