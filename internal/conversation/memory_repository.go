package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository stores conversations in process memory.
type InMemoryRepository struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*Conversation
	byPhone       map[string]uuid.UUID
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		conversations: make(map[uuid.UUID]*Conversation),
		byPhone:       make(map[string]uuid.UUID),
	}
}

var (
	_ Repository         = (*InMemoryRepository)(nil)
	_ ActivityRecorder   = (*InMemoryRepository)(nil)
	_ CustomerRepository = (*InMemoryCustomers)(nil)
)

func key(tenantID, phone string) string {
	return tenantID + "|" + phoneDigits(phone)
}

func (r *InMemoryRepository) FindByPhone(_ context.Context, tenantID, phone string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[key(tenantID, phone)]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(r.conversations[id]), nil
}

func (r *InMemoryRepository) Create(_ context.Context, conv *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(conv.TenantID, conv.Phone)
	if _, exists := r.byPhone[k]; exists {
		return ErrConversationExists
	}
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now().UTC()
	conv.Phone = phoneDigits(conv.Phone)
	conv.CreatedAt = now
	conv.UpdatedAt = now
	r.conversations[conv.ID] = cloneConversation(conv)
	r.byPhone[k] = conv.ID
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[id]
	if !ok || conv.TenantID != tenantID {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *InMemoryRepository) SetBotActive(_ context.Context, tenantID string, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok || conv.TenantID != tenantID {
		return ErrConversationNotFound
	}
	conv.IsBotActive = active
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordActivity increments the message counter of a conversation.
func (r *InMemoryRepository) RecordActivity(_ context.Context, id uuid.UUID, lastMessage *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.MessagesCount++
	if lastMessage != nil {
		conv.LastMessage = *lastMessage
	}
	ts := at.UTC()
	conv.LastMessageAt = &ts
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// InMemoryCustomers is a seeded customer directory.
type InMemoryCustomers struct {
	mu        sync.RWMutex
	customers map[string]*Customer
}

func NewInMemoryCustomers() *InMemoryCustomers {
	return &InMemoryCustomers{customers: make(map[string]*Customer)}
}

// Add registers a customer, assigning an id when missing.
func (c *InMemoryCustomers) Add(customer Customer) Customer {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	c.mu.Lock()
	c.customers[key(customer.TenantID, customer.Phone)] = &customer
	c.mu.Unlock()
	return customer
}

func (c *InMemoryCustomers) FindByPhone(_ context.Context, tenantID, phone string) (*Customer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	customer, ok := c.customers[key(tenantID, phone)]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	cp := *customer
	return &cp, nil
}

func cloneConversation(c *Conversation) *Conversation {
	cp := *c
	if c.CustomerID != nil {
		id := *c.CustomerID
		cp.CustomerID = &id
	}
	if c.LeadID != nil {
		id := *c.LeadID
		cp.LeadID = &id
	}
	if c.LastMessageAt != nil {
		ts := *c.LastMessageAt
		cp.LastMessageAt = &ts
	}
	return &cp
}
