package repository

import (
	"context"
	"fmt"

	"github.com/boxops/portal/common/db"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// MigrationRepository handles database operations for batch audit runs
type MigrationRepository struct {
	db *db.DB
}

// NewMigrationRepository creates a new migration repository
func NewMigrationRepository(database *db.DB) *MigrationRepository {
	return &MigrationRepository{db: database}
}

// Create inserts a new migration run
func (r *MigrationRepository) Create(ctx context.Context, run *models.MigrationRun) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO migration_runs (id, organization_id, status, filter, started_by, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.OrganizationID, run.Status, run.Filter, run.StartedBy, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create migration run: %w", err)
	}
	return nil
}

// Complete records the final status and totals of a run
func (r *MigrationRepository) Complete(ctx context.Context, run *models.MigrationRun) error {
	_, err := r.db.Exec(ctx, `
		UPDATE migration_runs
		SET status = $2, total = $3, clean = $4, flagged = $5, skipped = $6, failed = $7, completed_at = $8
		WHERE id = $1
	`,
		run.ID,
		run.Status,
		run.Totals.Total,
		run.Totals.Clean,
		run.Totals.Flagged,
		run.Totals.Skipped,
		run.Totals.Failed,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete migration run: %w", err)
	}
	return nil
}

// GetByID retrieves a migration run by its ID
func (r *MigrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MigrationRun, error) {
	run := &models.MigrationRun{}
	var status string
	err := r.db.QueryRow(ctx, `
		SELECT id, organization_id, status, filter, total, clean, flagged, skipped, failed,
			started_by, started_at, completed_at
		FROM migration_runs
		WHERE id = $1
	`, id).Scan(
		&run.ID,
		&run.OrganizationID,
		&status,
		&run.Filter,
		&run.Totals.Total,
		&run.Totals.Clean,
		&run.Totals.Flagged,
		&run.Totals.Skipped,
		&run.Totals.Failed,
		&run.StartedBy,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration run: %w", notFound(err))
	}
	run.Status = models.MigrationRunStatus(status)
	return run, nil
}
