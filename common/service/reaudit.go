package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// PaymentSucceededEvent is published by billing when a subscriber's renewal payment clears
type PaymentSucceededEvent struct {
	EventID        string    `json:"event_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	SubscriberID   uuid.UUID `json:"subscriber_id"`
}

// DecodePaymentSucceeded parses a queue payload
func DecodePaymentSucceeded(payload []byte) (*PaymentSucceededEvent, error) {
	var ev PaymentSucceededEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode payment event: %w", err)
	}
	if ev.OrganizationID == uuid.Nil || ev.SubscriberID == uuid.Nil {
		return nil, fmt.Errorf("payment event missing organization or subscriber id")
	}
	return &ev, nil
}

// Reauditor re-runs audits for already-audited subscribers when a payment succeeds
type Reauditor struct {
	subscribers SubscriberStore
	audits      *AuditService
	log         *logger.Logger
}

// NewReauditor creates a new reauditor
func NewReauditor(subscribers SubscriberStore, audits *AuditService, log *logger.Logger) *Reauditor {
	return &Reauditor{
		subscribers: subscribers,
		audits:      audits,
		log:         log,
	}
}

// HandlePaymentSucceeded re-audits the subscriber when its migration status is audited.
// Flagged, resolved and unaudited subscribers are left for a human. Returns nil outcome when skipped.
func (r *Reauditor) HandlePaymentSucceeded(ctx context.Context, ev *PaymentSucceededEvent) (*AuditOutcome, error) {
	sub, err := r.subscribers.GetByID(ctx, ev.SubscriberID)
	if err != nil {
		err = storeErr(err)
		if errors.Is(err, ErrNotFound) {
			r.log.Warn("payment event for unknown subscriber", "subscriber_id", ev.SubscriberID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load subscriber: %w", err)
	}

	if sub.OrganizationID != ev.OrganizationID {
		r.log.Warn("payment event organization mismatch",
			"subscriber_id", ev.SubscriberID,
			"organization_id", ev.OrganizationID,
		)
		return nil, nil
	}

	if sub.MigrationStatus != models.MigrationAudited {
		r.log.Debug("skipping re-audit",
			"subscriber_id", sub.ID,
			"migration_status", sub.MigrationStatus,
		)
		return nil, nil
	}

	return r.audits.RunForSubscriber(ctx, sub.OrganizationID, sub.ID, RunOptions{})
}
