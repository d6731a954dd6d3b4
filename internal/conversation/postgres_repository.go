package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/messaging-gateway/internal/storage"
)

// PostgresRepository stores conversations in Postgres.
type PostgresRepository struct {
	db storage.Querier
}

func NewPostgresRepository(db storage.Querier) *PostgresRepository {
	if db == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

var (
	_ Repository         = (*PostgresRepository)(nil)
	_ ActivityRecorder   = (*PostgresRepository)(nil)
	_ CustomerRepository = (*PostgresCustomers)(nil)
)

const conversationColumns = `id, tenant_id, phone, customer_id, lead_id, is_bot_active, is_lead,
	messages_count, COALESCE(last_message, ''), last_message_at, created_at, updated_at`

func (r *PostgresRepository) FindByPhone(ctx context.Context, tenantID, phone string) (*Conversation, error) {
	digits := phoneDigits(phone)
	if digits == "" {
		return nil, ErrConversationNotFound
	}
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1 AND regexp_replace(phone, '\D', '', 'g') = $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	return r.scanConversation(ctx, query, tenantID, digits)
}

func (r *PostgresRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND tenant_id = $2`
	return r.scanConversation(ctx, query, id, tenantID)
}

// Create inserts a conversation. The (tenant_id, phone) unique index turns races into ErrConversationExists.
func (r *PostgresRepository) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	conv.Phone = phoneDigits(conv.Phone)
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversations (id, tenant_id, phone, customer_id, lead_id, is_bot_active, is_lead)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, conv.ID, conv.TenantID, conv.Phone, conv.CustomerID, conv.LeadID, conv.IsBotActive, conv.IsLead).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrConversationExists
		}
		return fmt.Errorf("conversation: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetBotActive(ctx context.Context, tenantID string, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations SET is_bot_active = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, active)
	if err != nil {
		return fmt.Errorf("conversation: set bot active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// RecordActivity is used outside the message store transaction, e.g. by maintenance jobs.
func (r *PostgresRepository) RecordActivity(ctx context.Context, id uuid.UUID, lastMessage *string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET messages_count = messages_count + 1,
			last_message = COALESCE($2, last_message),
			last_message_at = $3,
			updated_at = now()
		WHERE id = $1
	`, id, lastMessage, at)
	if err != nil {
		return fmt.Errorf("conversation: record activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// PostgresCustomers reads the customers table.
type PostgresCustomers struct {
	db storage.Querier
}

func NewPostgresCustomers(db storage.Querier) *PostgresCustomers {
	if db == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresCustomers{db: db}
}

func (r *PostgresCustomers) FindByPhone(ctx context.Context, tenantID, phone string) (*Customer, error) {
	digits := phoneDigits(phone)
	if digits == "" {
		return nil, ErrCustomerNotFound
	}
	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, name, phone
		FROM customers
		WHERE tenant_id = $1 AND regexp_replace(phone, '\D', '', 'g') = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, tenantID, digits).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("conversation: select customer: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) scanConversation(ctx context.Context, query string, args ...any) (*Conversation, error) {
	var c Conversation
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.TenantID,
		&c.Phone,
		&c.CustomerID,
		&c.LeadID,
		&c.IsBotActive,
		&c.IsLead,
		&c.MessagesCount,
		&c.LastMessage,
		&c.LastMessageAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation: select failed: %w", err)
	}
	return &c, nil
}
