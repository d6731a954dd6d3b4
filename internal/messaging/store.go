package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

// Direction of a stored message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageRecord is one stored message.
type MessageRecord struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Direction         Direction
	Body              string
	ProviderMessageID string
	Source            Source
	MediaURL          string
	MediaType         MediaType
	CreatedAt         time.Time
}

// InboundResult reports what RecordInbound did.
type InboundResult struct {
	ID uuid.UUID
	// Duplicate is true when the provider message id was already stored for the conversation.
	Duplicate bool
}

// MessageStore persists inbound and outbound messages.
type MessageStore interface {
	RecordInbound(ctx context.Context, conversationID uuid.UUID, msg NormalizedMessage) (InboundResult, error)
	RecordOutbound(ctx context.Context, conversationID uuid.UUID, text, providerMessageID string) (uuid.UUID, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]MessageRecord, error)
}

// PgxPool is the subset of pgxpool.Pool the store uses.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists messages and conversation counters in Postgres.
type PostgresStore struct {
	pool   PgxPool
	logger *logging.Logger
}

func NewPostgresStore(pool PgxPool, logger *logging.Logger) *PostgresStore {
	if pool == nil {
		panic("messaging: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

var _ MessageStore = (*PostgresStore)(nil)

// RecordInbound stores an inbound message and bumps the conversation counter in one transaction.
// A provider id already stored for the conversation is reported as a duplicate and nothing changes.
func (s *PostgresStore) RecordInbound(ctx context.Context, conversationID uuid.UUID, msg NormalizedMessage) (InboundResult, error) {
	if !msg.GeneratedID {
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM messages WHERE conversation_id = $1 AND provider_message_id = $2
			)
		`, conversationID, msg.MessageID).Scan(&exists)
		if err != nil {
			return InboundResult{}, fmt.Errorf("messaging: check duplicate: %w", err)
		}
		if exists {
			s.logger.Info("duplicate inbound message ignored", "conversation_id", conversationID, "provider_message_id", msg.MessageID)
			return InboundResult{Duplicate: true}, nil
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return InboundResult{}, fmt.Errorf("messaging: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	id := uuid.New()
	var stored uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (
			id, conversation_id, direction, body, provider_message_id,
			source, media_url, media_type, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		ON CONFLICT (conversation_id, provider_message_id) DO NOTHING
		RETURNING id
	`, id, conversationID, string(DirectionInbound), msg.Text, msg.MessageID,
		string(msg.Source), msg.MediaURL, string(msg.MediaType), msg.Timestamp).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a race with a concurrent delivery of the same message.
		return InboundResult{Duplicate: true}, nil
	}
	if err != nil {
		return InboundResult{}, fmt.Errorf("messaging: insert inbound: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversations
		SET messages_count = messages_count + 1,
			last_message_at = $2,
			updated_at = now()
		WHERE id = $1
	`, conversationID, msg.Timestamp)
	if err != nil {
		return InboundResult{}, fmt.Errorf("messaging: bump conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return InboundResult{}, fmt.Errorf("messaging: conversation %s not found", conversationID)
	}

	if err := tx.Commit(ctx); err != nil {
		return InboundResult{}, fmt.Errorf("messaging: commit inbound: %w", err)
	}
	return InboundResult{ID: stored}, nil
}

// RecordOutbound stores an outbound reply and updates the conversation's last message.
func (s *PostgresStore) RecordOutbound(ctx context.Context, conversationID uuid.UUID, text, providerMessageID string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("messaging: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	id := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, direction, body, provider_message_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, id, conversationID, string(DirectionOutbound), text, providerMessageID); err != nil {
		return uuid.Nil, fmt.Errorf("messaging: insert outbound: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations
		SET messages_count = messages_count + 1,
			last_message = $2,
			last_message_at = now(),
			updated_at = now()
		WHERE id = $1
	`, conversationID, text); err != nil {
		return uuid.Nil, fmt.Errorf("messaging: update conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("messaging: commit outbound: %w", err)
	}
	return id, nil
}

// RecentMessages returns up to limit messages of a conversation, oldest first.
func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, direction, body,
			COALESCE(provider_message_id, ''), COALESCE(source, ''),
			COALESCE(media_url, ''), COALESCE(media_type, ''), created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: query recent messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var (
			rec                           MessageRecord
			direction, source, mediaType string
		)
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &direction, &rec.Body,
			&rec.ProviderMessageID, &source, &rec.MediaURL, &mediaType, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		rec.Direction = Direction(direction)
		rec.Source = Source(source)
		rec.MediaType = MediaType(mediaType)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: iterate messages: %w", err)
	}
	reverse(out)
	return out, nil
}

func reverse(records []MessageRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
