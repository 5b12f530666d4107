package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id                  UUID        PRIMARY KEY,
		tenant_id           TEXT        NOT NULL,
		contact_id          TEXT        NOT NULL,
		direction           TEXT        NOT NULL,
		body                TEXT        NOT NULL,
		sender_name         TEXT        NOT NULL DEFAULT '',
		external_message_id TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_contact
		ON chat_messages (tenant_id, contact_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_tenant_recent
		ON chat_messages (tenant_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS catalog_items (
		id         UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
		seq        BIGSERIAL   NOT NULL,
		tenant_id  TEXT        NOT NULL,
		title      TEXT        NOT NULL,
		price      NUMERIC(14, 2) NOT NULL DEFAULT 0,
		attributes JSONB       NOT NULL DEFAULT '{}',
		media_uris TEXT[]      NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_items_tenant ON catalog_items (tenant_id, seq)`,
	`CREATE TABLE IF NOT EXISTS faq_entries (
		id             UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
		seq            BIGSERIAL   NOT NULL,
		tenant_id      TEXT        NOT NULL,
		trigger_phrase TEXT        NOT NULL,
		answer         TEXT        NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_faq_entries_tenant ON faq_entries (tenant_id, seq)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id            UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id     TEXT        NOT NULL,
		contact_id    TEXT        NOT NULL,
		display_name  TEXT        NOT NULL DEFAULT '',
		last_message  TEXT        NOT NULL DEFAULT '',
		message_count INTEGER     NOT NULL DEFAULT 0,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant_id, contact_id)
	)`,
}

// EnsureSchema creates the tables used by the bot if they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
