package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConversationActivity updates conversation counters for stores that do not share
// a database transaction with the conversation table.
type ConversationActivity interface {
	RecordActivity(ctx context.Context, conversationID uuid.UUID, lastMessage *string, at time.Time) error
}

// MemoryStore keeps messages in process memory. Used in development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	activity ConversationActivity
	messages map[uuid.UUID][]MessageRecord
	seen     map[string]uuid.UUID
	now      func() time.Time
}

// NewMemoryStore creates a store; activity may be nil.
func NewMemoryStore(activity ConversationActivity) *MemoryStore {
	return &MemoryStore{
		activity: activity,
		messages: make(map[uuid.UUID][]MessageRecord),
		seen:     make(map[string]uuid.UUID),
		now:      time.Now,
	}
}

var _ MessageStore = (*MemoryStore)(nil)

func seenKey(conversationID uuid.UUID, providerID string) string {
	return conversationID.String() + "|" + providerID
}

func (s *MemoryStore) RecordInbound(ctx context.Context, conversationID uuid.UUID, msg NormalizedMessage) (InboundResult, error) {
	s.mu.Lock()
	key := seenKey(conversationID, msg.MessageID)
	if _, ok := s.seen[key]; ok {
		s.mu.Unlock()
		return InboundResult{Duplicate: true}, nil
	}
	rec := MessageRecord{
		ID:                uuid.New(),
		ConversationID:    conversationID,
		Direction:         DirectionInbound,
		Body:              msg.Text,
		ProviderMessageID: msg.MessageID,
		Source:            msg.Source,
		MediaURL:          msg.MediaURL,
		MediaType:         msg.MediaType,
		CreatedAt:         msg.Timestamp,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.seen[key] = rec.ID
	s.messages[conversationID] = append(s.messages[conversationID], rec)
	s.mu.Unlock()

	if s.activity != nil {
		if err := s.activity.RecordActivity(ctx, conversationID, nil, rec.CreatedAt); err != nil {
			s.forget(conversationID, rec.ID, key)
			return InboundResult{}, fmt.Errorf("messaging: bump conversation: %w", err)
		}
	}
	return InboundResult{ID: rec.ID}, nil
}

func (s *MemoryStore) RecordOutbound(ctx context.Context, conversationID uuid.UUID, text, providerMessageID string) (uuid.UUID, error) {
	s.mu.Lock()
	rec := MessageRecord{
		ID:                uuid.New(),
		ConversationID:    conversationID,
		Direction:         DirectionOutbound,
		Body:              text,
		ProviderMessageID: providerMessageID,
		CreatedAt:         s.now().UTC(),
	}
	key := ""
	if providerMessageID != "" {
		key = seenKey(conversationID, providerMessageID)
		s.seen[key] = rec.ID
	}
	s.messages[conversationID] = append(s.messages[conversationID], rec)
	s.mu.Unlock()

	if s.activity != nil {
		if err := s.activity.RecordActivity(ctx, conversationID, &text, rec.CreatedAt); err != nil {
			s.forget(conversationID, rec.ID, key)
			return uuid.Nil, fmt.Errorf("messaging: update conversation: %w", err)
		}
	}
	return rec.ID, nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[conversationID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]MessageRecord, len(all))
	copy(out, all)
	return out, nil
}

// Count returns the number of stored messages for a conversation.
func (s *MemoryStore) Count(conversationID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[conversationID])
}

func (s *MemoryStore) forget(conversationID, id uuid.UUID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		delete(s.seen, key)
	}
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == id {
			s.messages[conversationID] = append(msgs[:i], msgs[i+1:]...)
			return
		}
	}
}
