package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StartMigrationRequest configures a batch audit
type StartMigrationRequest struct {
	// Optional CEL expression over "subscriber"
	Filter string `json:"filter"`

	// Parallel audits, defaults to the service setting
	Concurrency int `json:"concurrency" validate:"gte=0,lte=64"`

	StartedBy string `json:"-"`
}

// MigrationService runs batch audits across an organization's subscribers
type MigrationService struct {
	runs        MigrationStore
	subscribers SubscriberStore
	audits      *AuditService
	filter      *SubscriberFilter
	concurrency int
	log         *logger.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// NewMigrationService creates a new migration service
func NewMigrationService(
	runs MigrationStore,
	subscribers SubscriberStore,
	audits *AuditService,
	filter *SubscriberFilter,
	concurrency int,
	log *logger.Logger,
) *MigrationService {
	return &MigrationService{
		runs:        runs,
		subscribers: subscribers,
		audits:      audits,
		filter:      filter,
		concurrency: concurrency,
		log:         log,
		now:         time.Now,
	}
}

// Start records a new run and executes it in the background
func (s *MigrationService) Start(ctx context.Context, orgID uuid.UUID, req StartMigrationRequest) (*models.MigrationRun, error) {
	run, err := s.create(ctx, orgID, req)
	if err != nil {
		return nil, err
	}

	snapshot := *run
	bg := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(bg, run, req)
	}()

	return &snapshot, nil
}

// RunAndWait records a new run and executes it before returning
func (s *MigrationService) RunAndWait(ctx context.Context, orgID uuid.UUID, req StartMigrationRequest) (*models.MigrationRun, error) {
	run, err := s.create(ctx, orgID, req)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, run, req)
	return run, nil
}

// Wait blocks until all background runs have finished
func (s *MigrationService) Wait() {
	s.wg.Wait()
}

// Get returns a run of the organization
func (s *MigrationService) Get(ctx context.Context, orgID, runID uuid.UUID) (*models.MigrationRun, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration run: %w", storeErr(err))
	}
	if run.OrganizationID != orgID {
		return nil, fmt.Errorf("failed to get migration run: %w", ErrNotFound)
	}
	return run, nil
}

func (s *MigrationService) create(ctx context.Context, orgID uuid.UUID, req StartMigrationRequest) (*models.MigrationRun, error) {
	if err := s.filter.Compile(req.Filter); err != nil {
		return nil, err
	}

	run := &models.MigrationRun{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Status:         models.MigrationRunRunning,
		Filter:         req.Filter,
		StartedBy:      req.StartedBy,
		StartedAt:      s.now().UTC(),
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create migration run: %w", err)
	}

	s.log.Info("migration run started",
		"migration_id", run.ID,
		"organization_id", orgID,
		"filter", req.Filter,
	)
	return run, nil
}

// execute audits every matching subscriber. Per-subscriber failures are counted, not fatal.
func (s *MigrationService) execute(ctx context.Context, run *models.MigrationRun, req StartMigrationRequest) {
	log := s.log.WithOrgID(run.OrganizationID.String()).WithFields(map[string]any{"migration_id": run.ID})

	subs, err := s.subscribers.ListByOrganization(ctx, run.OrganizationID)
	if err != nil {
		log.Error("failed to list subscribers", "error", err)
		s.complete(ctx, run, models.MigrationRunFailed)
		return
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.concurrency
	}

	var mu sync.Mutex
	totals := models.MigrationTotals{}
	count := func(fn func(t *models.MigrationTotals)) {
		mu.Lock()
		fn(&totals)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	runID := run.ID
	for _, sub := range subs {
		matched, err := s.filter.Match(run.Filter, sub)
		if err != nil {
			log.Warn("filter evaluation failed", "subscriber_id", sub.ID, "error", err)
			count(func(t *models.MigrationTotals) { t.Total++; t.Failed++ })
			continue
		}
		if !matched {
			continue
		}

		sub := sub
		g.Go(func() error {
			outcome, err := s.audits.RunForSubscriber(gctx, run.OrganizationID, sub.ID, RunOptions{MigrationID: &runID})
			if err != nil {
				log.Warn("subscriber audit failed", "subscriber_id", sub.ID, "error", err)
				count(func(t *models.MigrationTotals) { t.Total++; t.Failed++ })
				return nil
			}

			count(func(t *models.MigrationTotals) {
				t.Total++
				switch outcome.Result.Status {
				case models.AuditStatusClean:
					t.Clean++
				case models.AuditStatusFlagged:
					t.Flagged++
				case models.AuditStatusSkipped:
					t.Skipped++
				}
			})
			return nil
		})
	}

	_ = g.Wait()

	run.Totals = totals
	status := models.MigrationRunCompleted
	if ctx.Err() != nil {
		status = models.MigrationRunFailed
	}
	s.complete(ctx, run, status)

	log.Info("migration run finished",
		"status", status,
		"total", totals.Total,
		"clean", totals.Clean,
		"flagged", totals.Flagged,
		"skipped", totals.Skipped,
		"failed", totals.Failed,
	)
}

func (s *MigrationService) complete(ctx context.Context, run *models.MigrationRun, status models.MigrationRunStatus) {
	completedAt := s.now().UTC()
	run.Status = status
	run.CompletedAt = &completedAt

	if err := s.runs.Complete(context.WithoutCancel(ctx), run); err != nil {
		s.log.Error("failed to complete migration run", "migration_id", run.ID, "error", err)
	}
}
