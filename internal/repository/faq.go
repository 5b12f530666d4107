package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/bot-server-go/internal/model"
)

type FAQRepository interface {
	FindByTenant(ctx context.Context, tenantID string) ([]model.FAQEntry, error)
}

type faqRepo struct {
	db *sqlx.DB
}

func NewFAQRepository(db *sqlx.DB) FAQRepository {
	return &faqRepo{db: db}
}

func (r *faqRepo) FindByTenant(ctx context.Context, tenantID string) ([]model.FAQEntry, error) {
	var entries []model.FAQEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM faq_entries
		WHERE tenant_id = $1
		ORDER BY seq ASC
	`, tenantID)
	return entries, err
}
