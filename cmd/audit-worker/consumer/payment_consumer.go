package consumer

import (
	"context"
	"fmt"

	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/queue"
	"github.com/boxops/portal/common/service"
)

// Reauditor re-audits a subscriber after a successful payment
type Reauditor interface {
	HandlePaymentSucceeded(ctx context.Context, ev *service.PaymentSucceededEvent) (*service.AuditOutcome, error)
}

// Claimer deduplicates redelivered events
type Claimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// PaymentConsumer turns billing payment events into re-audits
type PaymentConsumer struct {
	reauditor Reauditor
	claims    Claimer
	log       *logger.Logger
}

// NewPaymentConsumer creates a new payment consumer
func NewPaymentConsumer(reauditor Reauditor, claims Claimer, log *logger.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		reauditor: reauditor,
		claims:    claims,
		log:       log,
	}
}

// Start subscribes to topic on q
func (c *PaymentConsumer) Start(ctx context.Context, q queue.Queue, topic string) error {
	if err := q.Subscribe(ctx, topic, c.Handle); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	c.log.Info("payment consumer started", "topic", topic)
	return nil
}

// Handle processes one queue message. Malformed payloads are dropped;
// failed re-audits release their claim and return the error so the
// message stays pending.
func (c *PaymentConsumer) Handle(ctx context.Context, key string, value []byte) error {
	ev, err := service.DecodePaymentSucceeded(value)
	if err != nil {
		c.log.Warn("dropping malformed payment event", "key", key, "error", err)
		return nil
	}

	eventID := ev.EventID
	if eventID == "" {
		eventID = key
	}
	log := c.log.WithFields(map[string]any{
		"event_id":      eventID,
		"subscriber_id": ev.SubscriberID,
	})

	if eventID != "" {
		first, err := c.claims.Claim(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to claim event %s: %w", eventID, err)
		}
		if !first {
			log.Debug("skipping duplicate payment event")
			return nil
		}
	}

	outcome, err := c.reauditor.HandlePaymentSucceeded(ctx, ev)
	if err != nil {
		if eventID != "" {
			if relErr := c.claims.Release(context.WithoutCancel(ctx), eventID); relErr != nil {
				log.Warn("failed to release event claim", "error", relErr)
			}
		}
		return fmt.Errorf("re-audit failed: %w", err)
	}

	if outcome == nil {
		log.Debug("payment event did not trigger a re-audit")
		return nil
	}

	log.Info("subscriber re-audited",
		"status", outcome.Result.Status,
		"proposed_next_box", outcome.Result.ProposedNextBox,
	)
	return nil
}
