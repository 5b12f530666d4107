package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/zapflow/bot-server-go/internal/model"
)

type CatalogRepository interface {
	Search(ctx context.Context, tenantID, query string, limit int) ([]model.CatalogItem, error)
}

type catalogRepo struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) CatalogRepository {
	return &catalogRepo{db: db}
}

// Search matches the query against titles and attribute values. Results keep
// storage order; there is no relevance ranking.
func (r *catalogRepo) Search(ctx context.Context, tenantID, query string, limit int) ([]model.CatalogItem, error) {
	var items []model.CatalogItem
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM catalog_items
		WHERE tenant_id = $1
			AND (title ILIKE $2 OR attributes::text ILIKE $2)
		ORDER BY seq ASC
		LIMIT $3
	`, tenantID, pattern, limit)
	return items, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
