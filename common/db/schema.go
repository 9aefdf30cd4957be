package db

import (
	"context"
	"fmt"
)

// schema is applied on startup; every statement must be idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS organization_integrations (
		organization_id UUID PRIMARY KEY,
		shop_domain     TEXT NOT NULL,
		access_token    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sku_aliases (
		organization_id UUID NOT NULL,
		sku             TEXT NOT NULL,
		sequence_number INT  NOT NULL CHECK (sequence_number >= 1),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (organization_id, sku)
	)`,
	`CREATE TABLE IF NOT EXISTS subscribers (
		id                       UUID PRIMARY KEY,
		organization_id          UUID NOT NULL,
		platform_customer_id     TEXT NOT NULL DEFAULT '',
		email                    TEXT NOT NULL DEFAULT '',
		current_product_sequence INT  NOT NULL DEFAULT 0,
		migration_status         TEXT NOT NULL DEFAULT 'unaudited',
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscribers_org ON subscribers (organization_id)`,
	`CREATE TABLE IF NOT EXISTS migration_runs (
		id              UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		status          TEXT NOT NULL,
		filter          TEXT NOT NULL DEFAULT '',
		total           INT  NOT NULL DEFAULT 0,
		clean           INT  NOT NULL DEFAULT 0,
		flagged         INT  NOT NULL DEFAULT 0,
		skipped         INT  NOT NULL DEFAULT 0,
		failed          INT  NOT NULL DEFAULT 0,
		started_by      TEXT NOT NULL DEFAULT '',
		started_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id                   UUID PRIMARY KEY,
		organization_id      UUID NOT NULL,
		migration_id         UUID REFERENCES migration_runs (id),
		subscriber_id        UUID REFERENCES subscribers (id),
		platform_customer_id TEXT NOT NULL DEFAULT '',
		email                TEXT NOT NULL DEFAULT '',
		status               TEXT NOT NULL,
		flag_reasons         TEXT[] NOT NULL DEFAULT '{}',
		detected_sequences   INT[]  NOT NULL DEFAULT '{}',
		sequence_events      JSONB  NOT NULL DEFAULT '[]',
		proposed_next_box    INT    NOT NULL,
		resolved_next_box    INT,
		resolved_by          TEXT,
		resolved_at          TIMESTAMPTZ,
		resolution_note      TEXT,
		raw_order_summary    JSONB  NOT NULL DEFAULT '[]',
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT resolved_iff_status CHECK ((resolved_next_box IS NOT NULL) = (status = 'resolved'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_org ON audit_logs (organization_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_migration ON audit_logs (migration_id)`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id                UUID PRIMARY KEY,
		organization_id   UUID NOT NULL,
		subscriber_id     UUID NOT NULL REFERENCES subscribers (id),
		platform_order_id TEXT NOT NULL,
		order_number      TEXT NOT NULL DEFAULT '',
		sequence_number   INT  NOT NULL,
		product_name      TEXT NOT NULL DEFAULT '',
		sku               TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		is_backfilled     BOOLEAN NOT NULL DEFAULT false,
		shipped_at        TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (organization_id, platform_order_id)
	)`,
}

// Migrate applies the schema. Intended for bootstrap.WithDBInitHook.
func Migrate(database *DB) error {
	ctx := context.Background()
	for i, stmt := range schema {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	database.log.Info("schema applied", "statements", len(schema))
	return nil
}
