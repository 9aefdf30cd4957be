package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boxops/portal/common/lock"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunForSubscriber_CleanUpdatesSubscriberAndBackfills(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	h.orders.histories["c1"] = history([]string{"c1"},
		testOrder("o1", 1, "BOX-1"),
		testOrder("o2", 2, "BOX-2"),
		testOrder("o3", 3, "BOX-3", "GIFT-CARD"),
	)

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.AuditStatusClean, outcome.Result.Status)
	assert.Equal(t, 4, outcome.Result.ProposedNextBox)

	require.NotNil(t, outcome.AuditLog)
	assert.Equal(t, models.AuditLogClean, outcome.AuditLog.Status)
	assert.Equal(t, sub.ID, *outcome.AuditLog.SubscriberID)
	assert.Equal(t, "c1", outcome.AuditLog.PlatformCustomerID)
	assert.Equal(t, 1, h.logs.count())

	stored := h.subscribers.get(sub.ID)
	assert.Equal(t, 3, stored.CurrentProductSequence)
	assert.Equal(t, models.MigrationAudited, stored.MigrationStatus)

	require.NotNil(t, outcome.Backfill)
	assert.Equal(t, 3, outcome.Backfill.Created)
	assert.Equal(t, 3, h.shipments.count())
}

func TestRunForSubscriber_FlaggedOnlyTouchesStatus(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	sub.CurrentProductSequence = 7
	h := newHarness(sub)
	h.orders.histories["c1"] = history([]string{"c1"},
		testOrder("o1", 1, "BOX-1"),
		testOrder("o2", 2, "BOX-3"),
	)

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.AuditStatusFlagged, outcome.Result.Status)
	assert.Equal(t, []models.FlagReason{models.FlagGapDetected}, outcome.Result.FlagReasons)
	assert.Nil(t, outcome.Backfill)

	stored := h.subscribers.get(sub.ID)
	assert.Equal(t, 7, stored.CurrentProductSequence)
	assert.Equal(t, models.MigrationFlagged, stored.MigrationStatus)
	assert.Equal(t, 0, h.shipments.count())
}

func TestRunForSubscriber_NoHistoryIsFlagged(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []models.FlagReason{models.FlagNoHistory}, outcome.Result.FlagReasons)
	assert.Equal(t, 1, outcome.Result.ProposedNextBox)
	assert.Equal(t, models.AuditLogFlagged, outcome.AuditLog.Status)
}

func TestRunForSubscriber_EmailFallbackWithSharedEmail(t *testing.T) {
	sub := newSubscriber("", "jane@example.com", models.MigrationUnaudited)
	h := newHarness(sub)
	h.orders.histories["jane@example.com"] = history([]string{"11", "12"},
		testOrder("o1", 1, "BOX-1"),
		testOrder("o2", 2, "BOX-2"),
	)

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.AuditStatusFlagged, outcome.Result.Status)
	assert.Equal(t, []models.FlagReason{models.FlagMultipleCustomers}, outcome.Result.FlagReasons)
	assert.Equal(t, "jane@example.com", outcome.AuditLog.Email)
	assert.Empty(t, outcome.AuditLog.PlatformCustomerID)
	assert.Equal(t, models.MigrationFlagged, h.subscribers.get(sub.ID).MigrationStatus)
}

func TestRunForSubscriber_EmailResolvingToOneCustomerRecordsIt(t *testing.T) {
	sub := newSubscriber("", "solo@example.com", models.MigrationUnaudited)
	h := newHarness(sub)
	h.orders.histories["solo@example.com"] = history([]string{"42"}, testOrder("o1", 1, "BOX-1"))

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.AuditStatusClean, outcome.Result.Status)
	assert.Equal(t, "42", outcome.AuditLog.PlatformCustomerID)
}

func TestRunForSubscriber_SkippedWithoutIdentity(t *testing.T) {
	sub := newSubscriber("", "  ", models.MigrationUnaudited)
	h := newHarness(sub)

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.AuditStatusSkipped, outcome.Result.Status)
	assert.Nil(t, outcome.AuditLog)
	assert.Equal(t, 0, h.logs.count())
	assert.Equal(t, 0, h.orders.calls)
	assert.Equal(t, 0, h.subscribers.writes)
}

func TestRunForSubscriber_FetchFailurePersistsNothing(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	h.orders.err = errUpstream

	_, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errUpstream)
	assert.Contains(t, err.Error(), "service unavailable")

	assert.Equal(t, 0, h.logs.count())
	assert.Equal(t, 0, h.subscribers.writes)
	assert.Equal(t, 0, h.shipments.count())
}

func TestRunForSubscriber_UnknownOrForeignSubscriber(t *testing.T) {
	foreign := newSubscriber("c1", "", models.MigrationUnaudited)
	foreign.OrganizationID = uuid.New()
	h := newHarness(foreign)

	_, err := h.audits.RunForSubscriber(context.Background(), h.org, uuid.New(), RunOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.audits.RunForSubscriber(context.Background(), h.org, foreign.ID, RunOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, h.orders.calls)
}

func TestRunForSubscriber_BusyWhileLocked(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)

	held, err := h.locker.Obtain(context.Background(), lock.SubscriberKey(sub.ID.String()), time.Hour)
	require.NoError(t, err)
	defer held.Release(context.Background())

	_, err = h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	assert.ErrorIs(t, err, ErrSubscriberBusy)
	assert.Equal(t, 0, h.logs.count())
}

func TestRunForSubscriber_LeaseOutlivesSlowFetch(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	h.audits.lockTTL = 100 * time.Millisecond
	h.orders.histories["c1"] = history([]string{"c1"}, testOrder("o1", 1, "BOX-1"))
	h.orders.delay = 300 * time.Millisecond

	firstErr := make(chan error, 1)
	go func() {
		_, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
		firstErr <- err
	}()

	// Past the original TTL while the first fetch is still running
	time.Sleep(150 * time.Millisecond)
	_, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	assert.ErrorIs(t, err, ErrSubscriberBusy)

	require.NoError(t, <-firstErr)
	assert.Equal(t, 1, h.logs.count())
	assert.Equal(t, 1, h.subscribers.writes)
	assert.Equal(t, 1, h.shipments.count())
}

func TestRunForSubscriber_LogWriteFailureMutatesNothing(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	sub.CurrentProductSequence = 5
	h := newHarness(sub)
	h.orders.histories["c1"] = history([]string{"c1"},
		testOrder("o1", 1, "BOX-1"),
		testOrder("o2", 2, "BOX-2"),
	)
	h.logs.err = errors.New("connection reset")

	_, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.Error(t, err)

	assert.Equal(t, 0, h.logs.count())
	assert.Equal(t, 0, h.subscribers.writes)
	assert.Equal(t, 0, h.shipments.count())

	stored := h.subscribers.get(sub.ID)
	assert.Equal(t, 5, stored.CurrentProductSequence)
	assert.Equal(t, models.MigrationUnaudited, stored.MigrationStatus)
}

func TestRunForSubscriber_ReleasesLock(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)

	_, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)
	_, err = h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	// Every run appends a new log
	assert.Equal(t, 2, h.logs.count())
}

func TestRunForSubscriber_RecordsMigrationID(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	runID := uuid.New()

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{MigrationID: &runID})
	require.NoError(t, err)
	require.NotNil(t, outcome.AuditLog.MigrationID)
	assert.Equal(t, runID, *outcome.AuditLog.MigrationID)
}

func TestRunForCustomer(t *testing.T) {
	h := newHarness()
	h.orders.histories["c9"] = history([]string{"c9"}, testOrder("o1", 1, "BOX-1"))

	outcome, err := h.audits.RunForCustomer(context.Background(), h.org, models.CustomerLookup{CustomerID: " c9 "})
	require.NoError(t, err)

	assert.Equal(t, models.AuditStatusClean, outcome.Result.Status)
	assert.Nil(t, outcome.AuditLog.SubscriberID)
	assert.Equal(t, "c9", outcome.AuditLog.PlatformCustomerID)
	assert.Nil(t, outcome.Backfill)
	assert.Equal(t, 0, h.shipments.count())

	_, err = h.audits.RunForCustomer(context.Background(), h.org, models.CustomerLookup{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func flaggedAudit(t *testing.T, h *harness, sub *models.Subscriber) *models.AuditLog {
	t.Helper()
	h.orders.histories[sub.PlatformCustomerID] = history([]string{sub.PlatformCustomerID},
		testOrder("o1", 1, "BOX-1"),
		testOrder("o2", 2, "BOX-2"),
		testOrder("o3", 3, "BOX-2"),
	)
	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, models.AuditLogFlagged, outcome.AuditLog.Status)
	return outcome.AuditLog
}

func TestResolve_FlaggedToResolved(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	entry := flaggedAudit(t, h, sub)
	note := "customer got a replacement box 2"

	out, err := h.audits.Resolve(context.Background(), h.org, entry.ID, ResolveRequest{
		ResolvedNextBox: 3,
		ResolvedBy:      "ops@boxops.io",
		Note:            &note,
	})
	require.NoError(t, err)

	assert.Equal(t, models.AuditLogResolved, out.AuditLog.Status)
	require.NotNil(t, out.AuditLog.ResolvedNextBox)
	assert.Equal(t, 3, *out.AuditLog.ResolvedNextBox)
	assert.Equal(t, "ops@boxops.io", *out.AuditLog.ResolvedBy)
	assert.NotNil(t, out.AuditLog.ResolvedAt)
	assert.Equal(t, note, *out.AuditLog.ResolutionNote)

	stored := h.subscribers.get(sub.ID)
	assert.Equal(t, 2, stored.CurrentProductSequence)
	assert.Equal(t, models.MigrationResolved, stored.MigrationStatus)

	// Backfill replays the stored timeline: one shipment per order
	require.NotNil(t, out.Backfill)
	assert.Equal(t, 3, out.Backfill.Created)
	assert.Equal(t, 1, h.orders.calls)
}

func TestResolve_IsOneWay(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	entry := flaggedAudit(t, h, sub)

	_, err := h.audits.Resolve(context.Background(), h.org, entry.ID, ResolveRequest{ResolvedNextBox: 3, ResolvedBy: "a"})
	require.NoError(t, err)

	_, err = h.audits.Resolve(context.Background(), h.org, entry.ID, ResolveRequest{ResolvedNextBox: 5, ResolvedBy: "b"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := h.logs.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *stored.ResolvedNextBox)
}

func TestResolve_CleanLogCannotBeResolved(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	h.orders.histories["c1"] = history([]string{"c1"}, testOrder("o1", 1, "BOX-1"))

	outcome, err := h.audits.RunForSubscriber(context.Background(), h.org, sub.ID, RunOptions{})
	require.NoError(t, err)

	_, err = h.audits.Resolve(context.Background(), h.org, outcome.AuditLog.ID, ResolveRequest{ResolvedNextBox: 2, ResolvedBy: "a"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolve_NotFoundHasNoSideEffects(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)

	_, err := h.audits.Resolve(context.Background(), h.org, uuid.New(), ResolveRequest{ResolvedNextBox: 2, ResolvedBy: "a"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, h.subscribers.writes)
	assert.Equal(t, 0, h.shipments.count())
}

func TestResolve_OtherOrganizationIsNotFound(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	entry := flaggedAudit(t, h, sub)

	_, err := h.audits.Resolve(context.Background(), uuid.New(), entry.ID, ResolveRequest{ResolvedNextBox: 2, ResolvedBy: "a"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_RejectsInvalidInput(t *testing.T) {
	sub := newSubscriber("c1", "", models.MigrationUnaudited)
	h := newHarness(sub)
	entry := flaggedAudit(t, h, sub)
	writes := h.subscribers.writes

	_, err := h.audits.Resolve(context.Background(), h.org, entry.ID, ResolveRequest{ResolvedNextBox: 0, ResolvedBy: "a"})
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = h.audits.Resolve(context.Background(), h.org, entry.ID, ResolveRequest{ResolvedNextBox: 2, ResolvedBy: " "})
	assert.ErrorIs(t, err, ErrInvalidResolution)

	assert.Equal(t, writes, h.subscribers.writes)
}

func TestResolve_UnlinkedCustomerSkipsSubscriberUpdate(t *testing.T) {
	h := newHarness()
	h.orders.histories["c9"] = history([]string{"c9"}, testOrder("o1", 1, "BOX-2"), testOrder("o2", 2, "BOX-2"))

	outcome, err := h.audits.RunForCustomer(context.Background(), h.org, models.CustomerLookup{CustomerID: "c9"})
	require.NoError(t, err)

	out, err := h.audits.Resolve(context.Background(), h.org, outcome.AuditLog.ID, ResolveRequest{ResolvedNextBox: 3, ResolvedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, models.AuditLogResolved, out.AuditLog.Status)
	assert.Nil(t, out.Backfill)
	assert.Equal(t, 0, h.subscribers.writes)
}

func TestListAndStats(t *testing.T) {
	clean := newSubscriber("c1", "", models.MigrationUnaudited)
	flagged := newSubscriber("c2", "", models.MigrationUnaudited)
	h := newHarness(clean, flagged)
	h.orders.histories["c1"] = history([]string{"c1"}, testOrder("o1", 1, "BOX-1"))
	runID := uuid.New()

	_, err := h.audits.RunForSubscriber(context.Background(), h.org, clean.ID, RunOptions{MigrationID: &runID})
	require.NoError(t, err)
	_, err = h.audits.RunForSubscriber(context.Background(), h.org, flagged.ID, RunOptions{})
	require.NoError(t, err)

	all, err := h.audits.List(context.Background(), h.org, nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inRun, err := h.audits.List(context.Background(), h.org, &runID, 10)
	require.NoError(t, err)
	assert.Len(t, inRun, 1)

	stats, err := h.audits.Stats(context.Background(), h.org, nil)
	require.NoError(t, err)
	assert.Equal(t, map[models.AuditLogStatus]int{
		models.AuditLogClean:    1,
		models.AuditLogFlagged:  1,
		models.AuditLogResolved: 0,
	}, stats)
}
