package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boxops/portal/common/db"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const auditLogColumns = `id, organization_id, migration_id, subscriber_id, platform_customer_id, email,
	status, flag_reasons, detected_sequences, sequence_events, proposed_next_box,
	resolved_next_box, resolved_by, resolved_at, resolution_note, raw_order_summary, created_at`

// AuditLogRepository handles database operations for audit logs
type AuditLogRepository struct {
	db *db.DB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(database *db.DB) *AuditLogRepository {
	return &AuditLogRepository{db: database}
}

// Create appends a new audit log
func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) error {
	events, err := json.Marshal(log.SequenceEvents)
	if err != nil {
		return fmt.Errorf("failed to marshal sequence events: %w", err)
	}
	summary, err := json.Marshal(log.RawOrderSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal order summary: %w", err)
	}

	query := `
		INSERT INTO audit_logs (` + auditLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.Exec(ctx, query,
		log.ID,
		log.OrganizationID,
		log.MigrationID,
		log.SubscriberID,
		log.PlatformCustomerID,
		log.Email,
		log.Status,
		flagStrings(log.FlagReasons),
		log.DetectedSequences,
		events,
		log.ProposedNextBox,
		log.ResolvedNextBox,
		log.ResolvedBy,
		log.ResolvedAt,
		log.ResolutionNote,
		summary,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// GetByID retrieves an audit log by its ID
func (r *AuditLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	query := `SELECT ` + auditLogColumns + ` FROM audit_logs WHERE id = $1`

	log, err := scanAuditLog(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", notFound(err))
	}
	return log, nil
}

// ListByOrganization returns the newest audit logs of an organization
func (r *AuditLogRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditLogColumns + `
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, orgID, limit)
}

// ListByMigration returns audit logs written by one migration run
func (r *AuditLogRepository) ListByMigration(ctx context.Context, migrationID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditLogColumns + `
		FROM audit_logs
		WHERE migration_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, migrationID, limit)
}

func (r *AuditLogRepository) list(ctx context.Context, query string, args ...any) ([]*models.AuditLog, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, nil
}

// Resolve locks the row, checks it is still flagged and writes the resolution columns.
// No other column is ever updated.
func (r *AuditLogRepository) Resolve(ctx context.Context, id uuid.UUID, res models.Resolution) (*models.AuditLog, error) {
	var resolved *models.AuditLog

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + auditLogColumns + ` FROM audit_logs WHERE id = $1 FOR UPDATE`
		log, err := scanAuditLog(tx.QueryRow(ctx, query, id))
		if err != nil {
			return notFound(err)
		}

		if !log.IsResolvable() {
			return ErrNotResolvable
		}

		log.ApplyResolution(res)

		_, err = tx.Exec(ctx, `
			UPDATE audit_logs
			SET status = $2, resolved_next_box = $3, resolved_by = $4, resolved_at = $5, resolution_note = $6
			WHERE id = $1
		`, id, log.Status, log.ResolvedNextBox, log.ResolvedBy, log.ResolvedAt, log.ResolutionNote)
		if err != nil {
			return fmt.Errorf("failed to update audit log resolution: %w", err)
		}

		resolved = log
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

// CountByStatus counts audit logs per status for an organization, optionally within one migration run
func (r *AuditLogRepository) CountByStatus(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID) (map[models.AuditLogStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM audit_logs
		WHERE organization_id = $1
		  AND ($2::uuid IS NULL OR migration_id = $2)
		GROUP BY status
	`

	rows, err := r.db.Query(ctx, query, orgID, migrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}
	defer rows.Close()

	counts := map[models.AuditLogStatus]int{
		models.AuditLogClean:    0,
		models.AuditLogFlagged:  0,
		models.AuditLogResolved: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[models.AuditLogStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

func scanAuditLog(row pgx.Row) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var (
		status  string
		flags   []string
		events  []byte
		summary []byte
	)

	err := row.Scan(
		&log.ID,
		&log.OrganizationID,
		&log.MigrationID,
		&log.SubscriberID,
		&log.PlatformCustomerID,
		&log.Email,
		&status,
		&flags,
		&log.DetectedSequences,
		&events,
		&log.ProposedNextBox,
		&log.ResolvedNextBox,
		&log.ResolvedBy,
		&log.ResolvedAt,
		&log.ResolutionNote,
		&summary,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	log.Status = models.AuditLogStatus(status)
	log.FlagReasons = make([]models.FlagReason, len(flags))
	for i, f := range flags {
		log.FlagReasons[i] = models.FlagReason(f)
	}

	if err := json.Unmarshal(events, &log.SequenceEvents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sequence events: %w", err)
	}
	if err := json.Unmarshal(summary, &log.RawOrderSummary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order summary: %w", err)
	}

	return log, nil
}

func flagStrings(flags []models.FlagReason) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
