package models

import (
	"time"

	"github.com/google/uuid"
)

// MigrationRunStatus represents the lifecycle of a batch audit
type MigrationRunStatus string

const (
	MigrationRunRunning   MigrationRunStatus = "running"
	MigrationRunCompleted MigrationRunStatus = "completed"
	MigrationRunFailed    MigrationRunStatus = "failed"
)

// MigrationRun is one batch audit across an organization's subscribers
// Maps to: migration_runs table
type MigrationRun struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	OrganizationID uuid.UUID          `db:"organization_id" json:"organization_id"`
	Status         MigrationRunStatus `db:"status" json:"status"`

	// Optional CEL expression selecting subscribers
	Filter string `db:"filter" json:"filter,omitempty"`

	Totals MigrationTotals `json:"totals"`

	StartedBy   string     `db:"started_by" json:"started_by"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// MigrationTotals counts per-subscriber outcomes of a run
type MigrationTotals struct {
	Total   int `json:"total"`
	Clean   int `json:"clean"`
	Flagged int `json:"flagged"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
