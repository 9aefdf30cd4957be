package repository

import (
	"context"
	"fmt"

	"github.com/boxops/portal/common/db"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const subscriberColumns = `id, organization_id, platform_customer_id, email, current_product_sequence, migration_status, updated_at`

// SubscriberRepository reads subscribers and updates their audit position.
// Only current_product_sequence and migration_status are ever written here.
type SubscriberRepository struct {
	db *db.DB
}

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(database *db.DB) *SubscriberRepository {
	return &SubscriberRepository{db: database}
}

// GetByID retrieves a subscriber by its ID
func (r *SubscriberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`

	sub, err := scanSubscriber(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", notFound(err))
	}
	return sub, nil
}

// ListByOrganization returns every subscriber of an organization
func (r *SubscriberRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Subscriber, error) {
	query := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE organization_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	subs := make([]*models.Subscriber, 0)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w", err)
	}

	return subs, nil
}

// UpdateSequence sets the last shipped sequence together with the migration status
func (r *SubscriberRepository) UpdateSequence(ctx context.Context, id uuid.UUID, currentSequence int, status models.MigrationStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscribers
		SET current_product_sequence = $2, migration_status = $3, updated_at = now()
		WHERE id = $1
	`, id, currentSequence, status)
	if err != nil {
		return fmt.Errorf("failed to update subscriber sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update subscriber sequence: %w", ErrNotFound)
	}
	return nil
}

// UpdateMigrationStatus changes only the migration status
func (r *SubscriberRepository) UpdateMigrationStatus(ctx context.Context, id uuid.UUID, status models.MigrationStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscribers
		SET migration_status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update subscriber migration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update subscriber migration status: %w", ErrNotFound)
	}
	return nil
}

func scanSubscriber(row pgx.Row) (*models.Subscriber, error) {
	sub := &models.Subscriber{}
	var status string
	err := row.Scan(
		&sub.ID,
		&sub.OrganizationID,
		&sub.PlatformCustomerID,
		&sub.Email,
		&sub.CurrentProductSequence,
		&status,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.MigrationStatus = models.MigrationStatus(status)
	return sub, nil
}
