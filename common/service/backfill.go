package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/metrics"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// BackfillStats counts the outcome of one backfill
type BackfillStats struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// BackfillService creates historical shipment records from a sequence timeline
type BackfillService struct {
	shipments ShipmentStore
	log       *logger.Logger
}

// NewBackfillService creates a new backfill service
func NewBackfillService(shipments ShipmentStore, log *logger.Logger) *BackfillService {
	return &BackfillService{
		shipments: shipments,
		log:       log,
	}
}

// Backfill writes one shipped record per unique order in events, keyed on the
// first event of that order. Orders that already have a shipment are skipped,
// so the call is safe to repeat.
func (s *BackfillService) Backfill(ctx context.Context, sub *models.Subscriber, events []models.SequenceEvent) (*BackfillStats, error) {
	stats := &BackfillStats{}
	seen := make(map[string]bool, len(events))

	for _, ev := range events {
		if seen[ev.OrderID] {
			continue
		}
		seen[ev.OrderID] = true

		exists, err := s.shipments.ExistsByOrder(ctx, sub.OrganizationID, ev.OrderID)
		if err != nil {
			return stats, fmt.Errorf("failed to check shipment for order %s: %w", ev.OrderID, err)
		}
		if exists {
			stats.Skipped++
			continue
		}

		shipment := &models.Shipment{
			ID:              uuid.New(),
			OrganizationID:  sub.OrganizationID,
			SubscriberID:    sub.ID,
			PlatformOrderID: ev.OrderID,
			OrderNumber:     ev.OrderNumber,
			SequenceNumber:  ev.Sequence,
			ProductName:     ev.ProductName,
			SKU:             ev.SKU,
			Status:          models.ShipmentStatusShipped,
			IsBackfilled:    true,
			ShippedAt:       ev.OrderedAt,
			CreatedAt:       time.Now().UTC(),
		}

		inserted, err := s.shipments.InsertIfAbsent(ctx, shipment)
		if err != nil {
			return stats, fmt.Errorf("failed to backfill order %s: %w", ev.OrderID, err)
		}
		if inserted {
			stats.Created++
		} else {
			// Lost a race with a concurrent insert
			stats.Skipped++
		}
	}

	metrics.BackfillShipmentsTotal.WithLabelValues("created").Add(float64(stats.Created))
	metrics.BackfillShipmentsTotal.WithLabelValues("skipped").Add(float64(stats.Skipped))

	s.log.Info("backfill complete",
		"subscriber_id", sub.ID,
		"created", stats.Created,
		"skipped", stats.Skipped,
	)

	return stats, nil
}
