package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/boxops/portal/cmd/portal/handlers"
	"github.com/boxops/portal/cmd/portal/middleware"
	"github.com/boxops/portal/cmd/portal/routes"
	"github.com/boxops/portal/common/clients"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/boxops/portal/common/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var org = uuid.MustParse("0b1e6d3a-3a4f-4b8e-9a53-000000000001")

type stubAudits struct {
	outcome  *service.AuditOutcome
	logs     map[uuid.UUID]*models.AuditLog
	err      error
	resolved *service.ResolveRequest
	lookup   *models.CustomerLookup
	limit    int
	org      uuid.UUID
}

func (s *stubAudits) RunForSubscriber(ctx context.Context, orgID, subscriberID uuid.UUID, opts service.RunOptions) (*service.AuditOutcome, error) {
	s.org = orgID
	return s.outcome, s.err
}

func (s *stubAudits) RunForCustomer(ctx context.Context, orgID uuid.UUID, lookup models.CustomerLookup) (*service.AuditOutcome, error) {
	s.lookup = &lookup
	return s.outcome, s.err
}

func (s *stubAudits) Resolve(ctx context.Context, orgID, id uuid.UUID, req service.ResolveRequest) (*service.ResolveOutcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.resolved = &req
	entry := *s.logs[id]
	entry.ApplyResolution(models.Resolution{ResolvedNextBox: req.ResolvedNextBox, ResolvedBy: req.ResolvedBy, Note: req.Note})
	return &service.ResolveOutcome{AuditLog: &entry, Backfill: &service.BackfillStats{Created: 2}}, nil
}

func (s *stubAudits) Get(ctx context.Context, orgID, id uuid.UUID) (*models.AuditLog, error) {
	entry, ok := s.logs[id]
	if !ok || entry.OrganizationID != orgID {
		return nil, fmt.Errorf("failed to get audit log: %w", service.ErrNotFound)
	}
	return entry, nil
}

func (s *stubAudits) List(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID, limit int) ([]*models.AuditLog, error) {
	s.limit = limit
	out := make([]*models.AuditLog, 0)
	for _, l := range s.logs {
		out = append(out, l)
	}
	return out, nil
}

func (s *stubAudits) Stats(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID) (map[models.AuditLogStatus]int, error) {
	return map[models.AuditLogStatus]int{models.AuditLogClean: 3, models.AuditLogFlagged: 1, models.AuditLogResolved: 0}, nil
}

type stubMigrations struct {
	started *service.StartMigrationRequest
	err     error
}

func (s *stubMigrations) Start(ctx context.Context, orgID uuid.UUID, req service.StartMigrationRequest) (*models.MigrationRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.started = &req
	return &models.MigrationRun{ID: uuid.New(), OrganizationID: orgID, Status: models.MigrationRunRunning, Filter: req.Filter, StartedBy: req.StartedBy}, nil
}

func (s *stubMigrations) Get(ctx context.Context, orgID, runID uuid.UUID) (*models.MigrationRun, error) {
	return nil, service.ErrNotFound
}

type stubAliases struct {
	stored []models.SkuAlias
}

func (s *stubAliases) Aliases(ctx context.Context, orgID uuid.UUID) ([]models.SkuAlias, error) {
	return s.stored, nil
}

func (s *stubAliases) UpsertAlias(ctx context.Context, alias *models.SkuAlias) error {
	if alias.SKU == "" {
		return fmt.Errorf("%w: sku is required", service.ErrInvalidAlias)
	}
	s.stored = append(s.stored, *alias)
	return nil
}

type testAPI struct {
	e          *echo.Echo
	audits     *stubAudits
	migrations *stubMigrations
	aliases    *stubAliases
}

func newTestAPI() *testAPI {
	api := &testAPI{
		e:          echo.New(),
		audits:     &stubAudits{logs: map[uuid.UUID]*models.AuditLog{}},
		migrations: &stubMigrations{},
		aliases:    &stubAliases{},
	}
	api.e.Validator = handlers.NewRequestValidator()

	log := logger.Discard()
	g := api.e.Group("/api/v1", middleware.RequireOrganization(), middleware.ExtractUser())
	routes.RegisterAuditRoutes(g, handlers.NewAuditHandler(api.audits, 100, log))
	routes.RegisterMigrationRoutes(g, handlers.NewMigrationHandler(api.migrations, log))
	routes.RegisterSkuAliasRoutes(g, handlers.NewSkuAliasHandler(api.aliases, log))
	return api
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Organization-ID", org.String())
	req.Header.Set("X-User-ID", "ops@boxops.io")
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) addFlagged() *models.AuditLog {
	entry := &models.AuditLog{
		ID:              uuid.New(),
		OrganizationID:  org,
		Status:          models.AuditLogFlagged,
		FlagReasons:     []models.FlagReason{models.FlagGapDetected},
		ProposedNextBox: 4,
	}
	a.audits.logs[entry.ID] = entry
	return entry
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRunForSubscriber(t *testing.T) {
	api := newTestAPI()
	api.audits.outcome = &service.AuditOutcome{Result: &models.AuditResult{Status: models.AuditStatusClean, ProposedNextBox: 3}}

	rec := api.do(http.MethodPost, "/api/v1/audits/subscribers/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, org, api.audits.org)
	assert.Equal(t, "clean", decode(t, rec)["result"].(map[string]interface{})["status"])

	rec = api.do(http.MethodPost, "/api/v1/audits/subscribers/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunForCustomer(t *testing.T) {
	api := newTestAPI()
	api.audits.outcome = &service.AuditOutcome{Result: &models.AuditResult{Status: models.AuditStatusFlagged}}

	rec := api.do(http.MethodPost, "/api/v1/audits/customers", `{"email":"jane@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jane@example.com", api.audits.lookup.Email)

	rec = api.do(http.MethodPost, "/api/v1/audits/customers", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fmt.Errorf("failed to load subscriber: %w", service.ErrNotFound), http.StatusNotFound},
		{"busy", service.ErrSubscriberBusy, http.StatusConflict},
		{"no identity", service.ErrNoIdentity, http.StatusBadRequest},
		{"upstream", fmt.Errorf("failed to fetch order history: %w", &clients.UpstreamError{StatusCode: 503, Body: "maintenance"}), http.StatusBadGateway},
		{"unexpected", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			api.audits.err = tt.err

			rec := api.do(http.MethodPost, "/api/v1/audits/subscribers/"+uuid.NewString(), "")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestUpstreamErrorExposesRawBody(t *testing.T) {
	api := newTestAPI()
	api.audits.err = &clients.UpstreamError{StatusCode: 429, Body: `{"errors":"Exceeded"}`}

	rec := api.do(http.MethodPost, "/api/v1/audits/subscribers/"+uuid.NewString(), "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(429), body["upstream_status"])
	assert.Equal(t, `{"errors":"Exceeded"}`, body["upstream_body"])
}

func TestGetAndList(t *testing.T) {
	api := newTestAPI()
	entry := api.addFlagged()

	rec := api.do(http.MethodGet, "/api/v1/audits/"+entry.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entry.ID.String(), decode(t, rec)["id"])

	rec = api.do(http.MethodGet, "/api/v1/audits/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/audits?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, api.audits.limit)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = api.do(http.MethodGet, "/api/v1/audits", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, api.audits.limit)

	rec = api.do(http.MethodGet, "/api/v1/audits?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/audits?migration_id=bad", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	api := newTestAPI()

	rec := api.do(http.MethodGet, "/api/v1/audits/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	counts := decode(t, rec)["counts"].(map[string]interface{})
	assert.Equal(t, float64(3), counts["clean"])
	assert.Equal(t, float64(0), counts["resolved"])
}

func TestResolve(t *testing.T) {
	api := newTestAPI()
	entry := api.addFlagged()

	rec := api.do(http.MethodPost, "/api/v1/audits/"+entry.ID.String()+"/resolve", `{"resolved_next_box":3,"note":"verified"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, api.audits.resolved.ResolvedNextBox)
	assert.Equal(t, "ops@boxops.io", api.audits.resolved.ResolvedBy)
	assert.Equal(t, "verified", *api.audits.resolved.Note)
	assert.Equal(t, "resolved", decode(t, rec)["audit_log"].(map[string]interface{})["status"])

	rec = api.do(http.MethodPost, "/api/v1/audits/"+entry.ID.String()+"/resolve", `{"resolved_next_box":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolve_InvalidTransition(t *testing.T) {
	api := newTestAPI()
	entry := api.addFlagged()
	api.audits.err = fmt.Errorf("cannot resolve clean audit log: %w", service.ErrInvalidTransition)

	rec := api.do(http.MethodPost, "/api/v1/audits/"+entry.ID.String()+"/resolve", `{"resolved_next_box":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPatch_MergePatchResolves(t *testing.T) {
	api := newTestAPI()
	entry := api.addFlagged()

	rec := api.do(http.MethodPatch, "/api/v1/audits/"+entry.ID.String(), `{"status":"resolved","resolved_next_box":2,"resolution_note":"replacement sent"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, api.audits.resolved.ResolvedNextBox)
	assert.Equal(t, "replacement sent", *api.audits.resolved.Note)
}

func TestPatch_RejectsOtherFields(t *testing.T) {
	api := newTestAPI()
	entry := api.addFlagged()

	rec := api.do(http.MethodPatch, "/api/v1/audits/"+entry.ID.String(), `{"status":"resolved","resolved_next_box":2,"proposed_next_box":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, api.audits.resolved)

	rec = api.do(http.MethodPatch, "/api/v1/audits/"+uuid.NewString(), `{"status":"resolved","resolved_next_box":2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartMigration(t *testing.T) {
	api := newTestAPI()

	rec := api.do(http.MethodPost, "/api/v1/migrations", `{"filter":"subscriber.migration_status == \"unaudited\"","concurrency":8}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 8, api.migrations.started.Concurrency)
	assert.Equal(t, "ops@boxops.io", api.migrations.started.StartedBy)

	rec = api.do(http.MethodPost, "/api/v1/migrations", `{"concurrency":1000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	api.migrations.err = fmt.Errorf("%w: syntax error", service.ErrInvalidFilter)
	rec = api.do(http.MethodPost, "/api/v1/migrations", `{"filter":"subscriber."}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/migrations/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSkuAliases(t *testing.T) {
	api := newTestAPI()

	rec := api.do(http.MethodPut, "/api/v1/sku-aliases", `{"sku":"BOX-1","sequence_number":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, api.aliases.stored, 1)
	assert.Equal(t, org, api.aliases.stored[0].OrganizationID)

	rec = api.do(http.MethodPut, "/api/v1/sku-aliases", `{"sku":"","sequence_number":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/sku-aliases", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestMissingOrganizationHeader(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audits", nil)
	rec := httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
