package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/bot-server-go/internal/model"
)

type LeadRepository interface {
	Upsert(ctx context.Context, params model.LeadInteraction) (*model.Lead, error)
}

type leadRepo struct {
	db *sqlx.DB
}

func NewLeadRepository(db *sqlx.DB) LeadRepository {
	return &leadRepo{db: db}
}

func (r *leadRepo) Upsert(ctx context.Context, params model.LeadInteraction) (*model.Lead, error) {
	var lead model.Lead
	err := r.db.GetContext(ctx, &lead, `
		INSERT INTO leads (tenant_id, contact_id, display_name, last_message, message_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (tenant_id, contact_id) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), leads.display_name),
			last_message = EXCLUDED.last_message,
			message_count = leads.message_count + 1,
			last_seen_at = NOW()
		RETURNING *
	`, params.TenantID, params.ContactID, params.DisplayName, params.Text)
	if err != nil {
		return nil, err
	}
	return &lead, nil
}
