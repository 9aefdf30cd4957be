package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boxops/portal/common/audit"
	"github.com/boxops/portal/common/lock"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/metrics"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// RunOptions controls a single audit run
type RunOptions struct {
	// Set when the audit is part of a batch migration
	MigrationID *uuid.UUID
}

// AuditOutcome is what one audit run produced
type AuditOutcome struct {
	Result *models.AuditResult `json:"result"`

	// Nil when the run was skipped
	AuditLog *models.AuditLog `json:"audit_log,omitempty"`

	// Set only when a clean result was backfilled
	Backfill *BackfillStats `json:"backfill,omitempty"`
}

// ResolveRequest is a reviewer's decision on a flagged audit log
type ResolveRequest struct {
	ResolvedNextBox int     `json:"resolved_next_box"`
	ResolvedBy      string  `json:"resolved_by"`
	Note            *string `json:"note,omitempty"`
}

// ResolveOutcome is the resolved log plus the backfill it triggered
type ResolveOutcome struct {
	AuditLog *models.AuditLog `json:"audit_log"`
	Backfill *BackfillStats   `json:"backfill,omitempty"`
}

// AuditService orchestrates fetch, analysis and persistence of audits
type AuditService struct {
	orders      OrderHistorySource
	skuMaps     SkuMapSource
	logs        AuditLogStore
	subscribers SubscriberStore
	backfill    *BackfillService
	locker      lock.Locker
	lockTTL     time.Duration
	log         *logger.Logger
	now         func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(
	orders OrderHistorySource,
	skuMaps SkuMapSource,
	logs AuditLogStore,
	subscribers SubscriberStore,
	backfill *BackfillService,
	locker lock.Locker,
	lockTTL time.Duration,
	log *logger.Logger,
) *AuditService {
	return &AuditService{
		orders:      orders,
		skuMaps:     skuMaps,
		logs:        logs,
		subscribers: subscribers,
		backfill:    backfill,
		locker:      locker,
		lockTTL:     lockTTL,
		log:         log,
		now:         time.Now,
	}
}

// RunForSubscriber audits one subscriber. Only one audit or resolution per
// subscriber runs at a time; a concurrent call fails with ErrSubscriberBusy.
func (s *AuditService) RunForSubscriber(ctx context.Context, orgID, subscriberID uuid.UUID, opts RunOptions) (*AuditOutcome, error) {
	ctx, release, err := s.lockSubscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriber: %w", storeErr(err))
	}
	if sub.OrganizationID != orgID {
		return nil, fmt.Errorf("failed to load subscriber: %w", ErrNotFound)
	}

	lookup := models.CustomerLookup{
		CustomerID: strings.TrimSpace(sub.PlatformCustomerID),
		Email:      strings.TrimSpace(sub.Email),
	}
	if lookup.IsEmpty() {
		s.log.Warn("skipping subscriber without customer identity",
			"organization_id", orgID,
			"subscriber_id", subscriberID,
		)
		metrics.AuditRunsTotal.WithLabelValues(string(models.AuditStatusSkipped)).Inc()
		return &AuditOutcome{Result: skippedResult()}, nil
	}

	return s.run(ctx, orgID, lookup, sub, opts)
}

// RunForCustomer audits a platform customer that is not linked to a subscriber.
// The log is recorded but nothing else is mutated.
func (s *AuditService) RunForCustomer(ctx context.Context, orgID uuid.UUID, lookup models.CustomerLookup) (*AuditOutcome, error) {
	lookup.CustomerID = strings.TrimSpace(lookup.CustomerID)
	lookup.Email = strings.TrimSpace(lookup.Email)
	if lookup.IsEmpty() {
		return nil, ErrNoIdentity
	}
	return s.run(ctx, orgID, lookup, nil, RunOptions{})
}

func (s *AuditService) run(ctx context.Context, orgID uuid.UUID, lookup models.CustomerLookup, sub *models.Subscriber, opts RunOptions) (*AuditOutcome, error) {
	log := s.log.WithOrgID(orgID.String())
	if sub != nil {
		log = log.WithSubscriberID(sub.ID.String())
	}

	skuMap, err := s.skuMaps.ForOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sku map: %w", err)
	}

	history, err := s.orders.FetchOrders(ctx, orgID, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order history: %w", err)
	}

	result := audit.Analyze(history.Orders, skuMap)
	if len(history.CustomerIDs) > 1 {
		result.AddFlag(models.FlagMultipleCustomers)
	}

	entry := models.NewAuditLog(orgID, result)
	entry.MigrationID = opts.MigrationID
	entry.Email = lookup.Email
	entry.PlatformCustomerID = lookup.CustomerID
	if entry.PlatformCustomerID == "" && len(history.CustomerIDs) == 1 {
		entry.PlatformCustomerID = history.CustomerIDs[0]
	}
	if sub != nil {
		subID := sub.ID
		entry.SubscriberID = &subID
	}

	// A lapsed lease means another audit of this subscriber may be running
	if ctx.Err() != nil {
		return nil, fmt.Errorf("audit interrupted: %w", context.Cause(ctx))
	}

	// The log is written before any subscriber or shipment mutation
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record audit log: %w", err)
	}

	metrics.AuditRunsTotal.WithLabelValues(string(result.Status)).Inc()
	for _, reason := range result.FlagReasons {
		metrics.AuditFlagsTotal.WithLabelValues(string(reason)).Inc()
	}

	log.Info("audit recorded",
		"audit_log_id", entry.ID,
		"status", result.Status,
		"flags", result.FlagReasons,
		"proposed_next_box", result.ProposedNextBox,
		"orders", len(history.Orders),
	)

	outcome := &AuditOutcome{Result: result, AuditLog: entry}
	if sub == nil {
		return outcome, nil
	}

	if result.Status == models.AuditStatusClean {
		if err := s.subscribers.UpdateSequence(ctx, sub.ID, result.ProposedNextBox-1, models.MigrationAudited); err != nil {
			return outcome, fmt.Errorf("failed to update subscriber: %w", storeErr(err))
		}

		stats, err := s.backfill.Backfill(ctx, sub, result.SequenceEvents)
		outcome.Backfill = stats
		if err != nil {
			return outcome, err
		}
		return outcome, nil
	}

	if err := s.subscribers.UpdateMigrationStatus(ctx, sub.ID, models.MigrationFlagged); err != nil {
		return outcome, fmt.Errorf("failed to flag subscriber: %w", storeErr(err))
	}
	return outcome, nil
}

// Resolve records a reviewer's decision on a flagged audit log, moves the linked
// subscriber to the resolved position and backfills from the stored timeline.
// The order history is not fetched again.
func (s *AuditService) Resolve(ctx context.Context, orgID, auditLogID uuid.UUID, req ResolveRequest) (*ResolveOutcome, error) {
	existing, err := s.Get(ctx, orgID, auditLogID)
	if err != nil {
		return nil, err
	}

	if req.ResolvedNextBox < 1 {
		return nil, fmt.Errorf("%w: resolved_next_box must be at least 1", ErrInvalidResolution)
	}
	req.ResolvedBy = strings.TrimSpace(req.ResolvedBy)
	if req.ResolvedBy == "" {
		return nil, fmt.Errorf("%w: resolved_by is required", ErrInvalidResolution)
	}
	if !existing.IsResolvable() {
		return nil, fmt.Errorf("cannot resolve %s audit log: %w", existing.Status, ErrInvalidTransition)
	}

	if existing.SubscriberID != nil {
		held, release, err := s.lockSubscriber(ctx, *existing.SubscriberID)
		if err != nil {
			return nil, err
		}
		defer release()
		ctx = held
	}

	resolved, err := s.logs.Resolve(ctx, auditLogID, models.Resolution{
		ResolvedNextBox: req.ResolvedNextBox,
		ResolvedBy:      req.ResolvedBy,
		ResolvedAt:      s.now().UTC(),
		Note:            req.Note,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audit log: %w", storeErr(err))
	}

	metrics.AuditResolutionsTotal.Inc()
	s.log.WithAuditID(auditLogID.String()).Info("audit log resolved",
		"organization_id", orgID,
		"resolved_next_box", req.ResolvedNextBox,
		"resolved_by", req.ResolvedBy,
	)

	outcome := &ResolveOutcome{AuditLog: resolved}
	if resolved.SubscriberID == nil {
		return outcome, nil
	}

	sub, err := s.subscribers.GetByID(ctx, *resolved.SubscriberID)
	if err != nil {
		return outcome, fmt.Errorf("failed to load subscriber: %w", storeErr(err))
	}

	if err := s.subscribers.UpdateSequence(ctx, sub.ID, req.ResolvedNextBox-1, models.MigrationResolved); err != nil {
		return outcome, fmt.Errorf("failed to update subscriber: %w", storeErr(err))
	}

	stats, err := s.backfill.Backfill(ctx, sub, resolved.SequenceEvents)
	outcome.Backfill = stats
	if err != nil {
		return outcome, err
	}

	return outcome, nil
}

// Get returns an audit log of the organization
func (s *AuditService) Get(ctx context.Context, orgID, auditLogID uuid.UUID) (*models.AuditLog, error) {
	entry, err := s.logs.GetByID(ctx, auditLogID)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", storeErr(err))
	}
	if entry.OrganizationID != orgID {
		return nil, fmt.Errorf("failed to get audit log: %w", ErrNotFound)
	}
	return entry, nil
}

// List returns the newest audit logs of an organization, or of one migration run
func (s *AuditService) List(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID, limit int) ([]*models.AuditLog, error) {
	if migrationID == nil {
		return s.logs.ListByOrganization(ctx, orgID, limit)
	}

	logs, err := s.logs.ListByMigration(ctx, *migrationID, limit)
	if err != nil {
		return nil, err
	}

	scoped := make([]*models.AuditLog, 0, len(logs))
	for _, l := range logs {
		if l.OrganizationID == orgID {
			scoped = append(scoped, l)
		}
	}
	return scoped, nil
}

// Stats counts audit logs per status
func (s *AuditService) Stats(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID) (map[models.AuditLogStatus]int, error) {
	counts, err := s.logs.CountByStatus(ctx, orgID, migrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}
	for _, status := range []models.AuditLogStatus{models.AuditLogClean, models.AuditLogFlagged, models.AuditLogResolved} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

// lockSubscriber takes the subscriber lock and keeps its lease alive. The
// returned context is cancelled if the lease is lost.
func (s *AuditService) lockSubscriber(ctx context.Context, subscriberID uuid.UUID) (context.Context, func(), error) {
	held, err := s.locker.Obtain(ctx, lock.SubscriberKey(subscriberID.String()), s.lockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, nil, ErrSubscriberBusy
	}
	if err != nil {
		return nil, nil, err
	}

	leased, stop := lock.KeepAlive(ctx, held, s.lockTTL)

	return leased, func() {
		stop()
		// Release must succeed even if the request context is already done
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release subscriber lock", "subscriber_id", subscriberID, "error", err)
		}
	}, nil
}

func skippedResult() *models.AuditResult {
	return &models.AuditResult{
		Status:            models.AuditStatusSkipped,
		FlagReasons:       []models.FlagReason{},
		DetectedSequences: []int{},
		SequenceEvents:    []models.SequenceEvent{},
		RawOrders:         []models.Order{},
	}
}
