package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogStatus is the persisted state of an audit run
type AuditLogStatus string

const (
	AuditLogClean    AuditLogStatus = "clean"
	AuditLogFlagged  AuditLogStatus = "flagged"
	AuditLogResolved AuditLogStatus = "resolved"
)

// AuditLog is the durable record of one audit run
// Maps to: audit_logs table (append-only, resolution columns are the only mutable ones)
type AuditLog struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	MigrationID    *uuid.UUID `db:"migration_id" json:"migration_id,omitempty"`

	// Nil when the audited customer is not linked to a subscriber yet
	SubscriberID *uuid.UUID `db:"subscriber_id" json:"subscriber_id,omitempty"`

	PlatformCustomerID string `db:"platform_customer_id" json:"platform_customer_id,omitempty"`
	Email              string `db:"email" json:"email,omitempty"`

	Status            AuditLogStatus  `db:"status" json:"status"`
	FlagReasons       []FlagReason    `db:"flag_reasons" json:"flag_reasons"`
	DetectedSequences []int           `db:"detected_sequences" json:"detected_sequences"`
	SequenceEvents    []SequenceEvent `db:"sequence_events" json:"sequence_events"`
	ProposedNextBox   int             `db:"proposed_next_box" json:"proposed_next_box"`

	// Resolution fields, set together by a human reviewer
	ResolvedNextBox *int       `db:"resolved_next_box" json:"resolved_next_box,omitempty"`
	ResolvedBy      *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNote  *string    `db:"resolution_note" json:"resolution_note,omitempty"`

	RawOrderSummary []OrderSummary `db:"raw_order_summary" json:"raw_order_summary"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Resolution carries the reviewer's decision for a flagged audit log
type Resolution struct {
	ResolvedNextBox int
	ResolvedBy      string
	ResolvedAt      time.Time
	Note            *string
}

// NewAuditLog builds the log row for an analyzer result
func NewAuditLog(orgID uuid.UUID, result *AuditResult) *AuditLog {
	status := AuditLogClean
	if result.Status == AuditStatusFlagged {
		status = AuditLogFlagged
	}

	flags := result.FlagReasons
	if flags == nil {
		flags = []FlagReason{}
	}
	sequences := result.DetectedSequences
	if sequences == nil {
		sequences = []int{}
	}
	events := result.SequenceEvents
	if events == nil {
		events = []SequenceEvent{}
	}

	return &AuditLog{
		ID:                uuid.New(),
		OrganizationID:    orgID,
		Status:            status,
		FlagReasons:       flags,
		DetectedSequences: sequences,
		SequenceEvents:    events,
		ProposedNextBox:   result.ProposedNextBox,
		RawOrderSummary:   Summarize(result.RawOrders),
		CreatedAt:         time.Now().UTC(),
	}
}

// IsResolvable reports whether a reviewer may still resolve this log
func (l *AuditLog) IsResolvable() bool {
	return l.Status == AuditLogFlagged
}

// ApplyResolution stamps the resolution fields and moves the log to resolved
func (l *AuditLog) ApplyResolution(res Resolution) {
	next := res.ResolvedNextBox
	by := res.ResolvedBy
	at := res.ResolvedAt
	l.Status = AuditLogResolved
	l.ResolvedNextBox = &next
	l.ResolvedBy = &by
	l.ResolvedAt = &at
	l.ResolutionNote = res.Note
}
