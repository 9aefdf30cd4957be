package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/boxops/portal/common/audit"
	"github.com/boxops/portal/common/lock"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/boxops/portal/common/repository"
	"github.com/google/uuid"
)

// fakeOrders returns canned histories keyed by customer id or email
type fakeOrders struct {
	mu        sync.Mutex
	histories map[string]*models.OrderHistory
	err       error
	calls     int
	delay     time.Duration
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{histories: make(map[string]*models.OrderHistory)}
}

func (f *fakeOrders) FetchOrders(ctx context.Context, orgID uuid.UUID, lookup models.CustomerLookup) (*models.OrderHistory, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	key := lookup.CustomerID
	if key == "" {
		key = lookup.Email
	}
	if h, ok := f.histories[key]; ok {
		return h, nil
	}
	return &models.OrderHistory{Orders: []models.Order{}, CustomerIDs: []string{}}, nil
}

type staticSkuMaps struct {
	m audit.SkuMap
}

func (s staticSkuMaps) ForOrganization(ctx context.Context, orgID uuid.UUID) (audit.SkuMap, error) {
	return s.m, nil
}

type fakeLogs struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*models.AuditLog
	err  error
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{logs: make(map[uuid.UUID]*models.AuditLog)}
}

func (f *fakeLogs) Create(ctx context.Context, log *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *log
	f.logs[log.ID] = &cp
	return nil
}

func (f *fakeLogs) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLogs) list(match func(*models.AuditLog) bool, limit int) []*models.AuditLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.AuditLog, 0)
	for _, l := range f.logs {
		if match(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeLogs) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	return f.list(func(l *models.AuditLog) bool { return l.OrganizationID == orgID }, limit), nil
}

func (f *fakeLogs) ListByMigration(ctx context.Context, migrationID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	return f.list(func(l *models.AuditLog) bool { return l.MigrationID != nil && *l.MigrationID == migrationID }, limit), nil
}

func (f *fakeLogs) Resolve(ctx context.Context, id uuid.UUID, res models.Resolution) (*models.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !l.IsResolvable() {
		return nil, repository.ErrNotResolvable
	}
	l.ApplyResolution(res)
	cp := *l
	return &cp, nil
}

func (f *fakeLogs) CountByStatus(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID) (map[models.AuditLogStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.AuditLogStatus]int)
	for _, l := range f.logs {
		if l.OrganizationID != orgID {
			continue
		}
		if migrationID != nil && (l.MigrationID == nil || *l.MigrationID != *migrationID) {
			continue
		}
		counts[l.Status]++
	}
	return counts, nil
}

func (f *fakeLogs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

type fakeSubscribers struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]*models.Subscriber
	writes int
}

func newFakeSubscribers(subs ...*models.Subscriber) *fakeSubscribers {
	f := &fakeSubscribers{subs: make(map[uuid.UUID]*models.Subscriber)}
	for _, s := range subs {
		f.subs[s.ID] = s
	}
	return f
}

func (f *fakeSubscribers) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubscribers) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Subscriber, 0)
	for _, s := range f.subs {
		if s.OrganizationID == orgID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeSubscribers) UpdateSequence(ctx context.Context, id uuid.UUID, currentSequence int, status models.MigrationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.writes++
	s.CurrentProductSequence = currentSequence
	s.MigrationStatus = status
	return nil
}

func (f *fakeSubscribers) UpdateMigrationStatus(ctx context.Context, id uuid.UUID, status models.MigrationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.writes++
	s.MigrationStatus = status
	return nil
}

func (f *fakeSubscribers) get(id uuid.UUID) models.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.subs[id]
}

type shipmentKey struct {
	org   uuid.UUID
	order string
}

type fakeShipments struct {
	mu        sync.Mutex
	shipments map[shipmentKey]*models.Shipment
	err       error
}

func newFakeShipments() *fakeShipments {
	return &fakeShipments{shipments: make(map[shipmentKey]*models.Shipment)}
}

func (f *fakeShipments) ExistsByOrder(ctx context.Context, orgID uuid.UUID, platformOrderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.shipments[shipmentKey{orgID, platformOrderID}]
	return ok, nil
}

func (f *fakeShipments) InsertIfAbsent(ctx context.Context, s *models.Shipment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := shipmentKey{s.OrganizationID, s.PlatformOrderID}
	if _, ok := f.shipments[key]; ok {
		return false, nil
	}
	cp := *s
	f.shipments[key] = &cp
	return true, nil
}

func (f *fakeShipments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shipments)
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.MigrationRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[uuid.UUID]*models.MigrationRun)}
}

func (f *fakeRuns) Create(ctx context.Context, run *models.MigrationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeRuns) Complete(ctx context.Context, run *models.MigrationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeRuns) GetByID(ctx context.Context, id uuid.UUID) (*models.MigrationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type fakeAliases struct {
	mu      sync.Mutex
	aliases []models.SkuAlias
	reads   int
}

func (f *fakeAliases) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.SkuAlias, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := make([]models.SkuAlias, 0)
	for _, a := range f.aliases {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAliases) Upsert(ctx context.Context, alias *models.SkuAlias) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliases = append(f.aliases, *alias)
	return nil
}

// harness wires an AuditService over fakes
type harness struct {
	org         uuid.UUID
	orders      *fakeOrders
	logs        *fakeLogs
	subscribers *fakeSubscribers
	shipments   *fakeShipments
	locker      *lock.LocalLocker
	audits      *AuditService
}

func newHarness(subs ...*models.Subscriber) *harness {
	h := &harness{
		org:         testOrg,
		orders:      newFakeOrders(),
		logs:        newFakeLogs(),
		subscribers: newFakeSubscribers(subs...),
		shipments:   newFakeShipments(),
		locker:      lock.NewLocalLocker(),
	}
	log := logger.Discard()
	h.audits = NewAuditService(
		h.orders,
		staticSkuMaps{m: testSkuMap()},
		h.logs,
		h.subscribers,
		NewBackfillService(h.shipments, log),
		h.locker,
		time.Minute,
		log,
	)
	return h
}

var testOrg = uuid.MustParse("8f5c1c4e-8d7e-4c2f-9d7e-3f0c2b1a0001")

var errUpstream = errors.New("upstream returned 503: service unavailable")

func testSkuMap() audit.SkuMap {
	return audit.NewSkuMap([]models.SkuAlias{
		{SKU: "BOX-1", SequenceNumber: 1},
		{SKU: "BOX-2", SequenceNumber: 2},
		{SKU: "BOX-3", SequenceNumber: 3},
		{SKU: "BOX-4", SequenceNumber: 4},
	})
}

func newSubscriber(customerID, email string, status models.MigrationStatus) *models.Subscriber {
	return &models.Subscriber{
		ID:                 uuid.New(),
		OrganizationID:     testOrg,
		PlatformCustomerID: customerID,
		Email:              email,
		MigrationStatus:    status,
	}
}

func testOrder(id string, day int, skus ...string) models.Order {
	o := models.Order{
		ID:          id,
		OrderNumber: "#" + id,
		CreatedAt:   time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC),
		LineItems:   make([]models.LineItem, 0, len(skus)),
	}
	for i, sku := range skus {
		o.LineItems = append(o.LineItems, models.LineItem{
			ID:       id + "-" + string(rune('a'+i)),
			SKU:      sku,
			Name:     "Box " + sku,
			Quantity: 1,
		})
	}
	return o
}

func history(customerIDs []string, orders ...models.Order) *models.OrderHistory {
	return &models.OrderHistory{Orders: orders, CustomerIDs: customerIDs}
}
