package leads

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/messaging-gateway/internal/storage"
)

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db storage.Querier
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db storage.Querier) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

const leadColumns = `id, tenant_id, name, phone, source, status, conversation_id, created_at`

// Create inserts a new row. A unique violation on (tenant_id, phone) maps to ErrLeadExists.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.applyDefaults()

	lead := &Lead{
		ID:       uuid.New(),
		TenantID: req.TenantID,
		Name:     req.Name,
		Phone:    PhoneDigits(req.Phone),
		Source:   req.Source,
		Status:   req.Status,
	}
	query := `
		INSERT INTO leads (id, tenant_id, name, phone, source, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query,
		lead.ID,
		lead.TenantID,
		lead.Name,
		lead.Phone,
		lead.Source,
		lead.Status,
	).Scan(&lead.CreatedAt); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrLeadExists
		}
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a lead scoped to the tenant.
func (r *PostgresRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND tenant_id = $2`
	return r.scanOne(ctx, query, id, tenantID)
}

// FindByPhone matches on digits so stored formatting differences do not matter.
func (r *PostgresRepository) FindByPhone(ctx context.Context, tenantID, phone string) (*Lead, error) {
	digits := PhoneDigits(phone)
	if digits == "" {
		return nil, ErrLeadNotFound
	}
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE tenant_id = $1 AND regexp_replace(phone, '\D', '', 'g') = $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	return r.scanOne(ctx, query, tenantID, digits)
}

func (r *PostgresRepository) LinkConversation(ctx context.Context, tenantID string, leadID, conversationID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET conversation_id = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, leadID, tenantID, conversationID)
	if err != nil {
		return fmt.Errorf("leads: link conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Lead, error) {
	var lead Lead
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&lead.ID,
		&lead.TenantID,
		&lead.Name,
		&lead.Phone,
		&lead.Source,
		&lead.Status,
		&lead.ConversationID,
		&lead.CreatedAt,
	); err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}
