package hub

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviwa-server/internal/domain"
	"reviwa-server/internal/events"
)

type testConn struct {
	userID string
	role   string

	mu       sync.Mutex
	received []*Message
}

func newTestConn(role string) *testConn {
	return &testConn{userID: uuid.New().String(), role: role}
}

func (c *testConn) UserID() string { return c.userID }
func (c *testConn) Role() string   { return c.role }

func (c *testConn) Send(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, msg)
}

func (c *testConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.received))
	for i, m := range c.received {
		out[i] = m.Event
	}
	return out
}

func mustEvent(t *testing.T, eventType, reportID string, payload interface{}) *events.Event {
	t.Helper()
	e, err := events.NewEvent(eventType, reportID, payload)
	require.NoError(t, err)
	return e
}

func sampleReport(status string) *domain.Report {
	return &domain.Report{
		ID:     uuid.New(),
		Title:  "Tires dumped under the bridge",
		Status: status,
	}
}

func TestRegisterPlacesConnsInStandingRooms(t *testing.T) {
	h := New()
	admin := newTestConn(domain.RoleAdmin)
	user := newTestConn(domain.RoleUser)

	h.Register(admin)
	h.Register(user)

	assert.Equal(t, 2, h.ConnectionCount())
	assert.Equal(t, 1, h.RoomSize(RoomAdmins()))
	assert.Equal(t, 1, h.RoomSize(RoomUser(user.userID)))
	assert.Equal(t, 1, h.RoomSize(RoomUser(admin.userID)))
}

func TestUnregisterCleansEveryRoom(t *testing.T) {
	h := New()
	admin := newTestConn(domain.RoleAdmin)
	h.Register(admin)
	h.JoinReport(admin, "r1")

	h.Unregister(admin)

	assert.Zero(t, h.ConnectionCount())
	assert.Zero(t, h.RoomSize(RoomAdmins()))
	assert.Zero(t, h.RoomSize(RoomReport("r1")))

	// A second unregister is a no-op.
	h.Unregister(admin)
	assert.Zero(t, h.ConnectionCount())
}

func TestJoinIgnoresUnregisteredConn(t *testing.T) {
	h := New()
	stray := newTestConn(domain.RoleUser)

	h.JoinReport(stray, "r1")
	assert.Zero(t, h.RoomSize(RoomReport("r1")))
}

func TestBroadcastDeduplicatesAcrossRooms(t *testing.T) {
	h := New()
	admin := newTestConn(domain.RoleAdmin)
	h.Register(admin)
	h.JoinReport(admin, "r1")

	// The admin sits in both target rooms but gets one copy.
	h.Broadcast(&Message{Event: "ping"}, RoomAdmins(), RoomReport("r1"))
	assert.Equal(t, []string{"ping"}, admin.events())
}

// Exercises the fan-out policy across one report's lifetime as three parties
// watch: the reporting user, an admin, and an unrelated bystander.
func TestDispatchFanOutPolicy(t *testing.T) {
	h := New()
	reporter := newTestConn(domain.RoleUser)
	admin := newTestConn(domain.RoleAdmin)
	bystander := newTestConn(domain.RoleUser)
	h.Register(reporter)
	h.Register(admin)
	h.Register(bystander)

	report := sampleReport(domain.StatusPending)
	reportID := report.ID.String()

	// A new pending report reaches admins only.
	h.Dispatch(mustEvent(t, events.ReportCreated, reportID, events.ReportCreatedPayload{
		Report: report, OwnerRole: domain.RoleUser,
	}))
	assert.Equal(t, []string{WireReportCreated}, admin.events())
	assert.Empty(t, reporter.events())
	assert.Empty(t, bystander.events())

	// The reporter starts watching their own report.
	h.JoinReport(reporter, reportID)

	// Verification is a public transition.
	report.Status = domain.StatusVerified
	h.Dispatch(mustEvent(t, events.ReportStatusChange, reportID, events.StatusChangedPayload{
		Report: report, OldStatus: domain.StatusPending, NewStatus: domain.StatusVerified,
	}))
	assert.Contains(t, reporter.events(), WireReportUpdated)
	assert.Contains(t, admin.events(), WireReportUpdated)
	assert.Contains(t, bystander.events(), WireReportUpdated)

	// in-progress is admin-plus-watchers only; the bystander hears nothing.
	before := len(bystander.events())
	report.Status = domain.StatusInProgress
	h.Dispatch(mustEvent(t, events.ReportStatusChange, reportID, events.StatusChangedPayload{
		Report: report, OldStatus: domain.StatusVerified, NewStatus: domain.StatusInProgress,
	}))
	assert.Len(t, bystander.events(), before)
	assert.Contains(t, reporter.events(), WireReportUpdated)

	// A point award lands only in the recipient's user room.
	h.Dispatch(mustEvent(t, events.PointsAwarded, reportID, events.PointsAwardedPayload{
		UserID: reporter.userID, EcoPoints: 30,
	}))
	assert.Contains(t, reporter.events(), WireUserPoints)
	assert.NotContains(t, admin.events(), WireUserPoints)
	assert.NotContains(t, bystander.events(), WireUserPoints)

	// Deletion is public.
	h.Dispatch(mustEvent(t, events.ReportDeleted, reportID, events.ReportDeletedPayload{
		ReportID: reportID,
	}))
	assert.Contains(t, bystander.events(), WireReportDeleted)
}

func TestRegisterAnonymousConnSkipsIdentityRoom(t *testing.T) {
	h := New()
	anon := &testConn{role: domain.RoleUser}
	h.Register(anon)

	assert.Equal(t, 1, h.ConnectionCount())
	assert.Zero(t, h.RoomSize(RoomUser("")))

	// Still reachable by public broadcasts.
	h.BroadcastAll(&Message{Event: "ping"})
	assert.Equal(t, []string{"ping"}, anon.events())
}

func TestDispatchCreatedReachesAdminsOnly(t *testing.T) {
	h := New()
	admin := newTestConn(domain.RoleAdmin)
	watcher := newTestConn(domain.RoleUser)
	h.Register(admin)
	h.Register(watcher)

	report := sampleReport(domain.StatusPending)
	reportID := report.ID.String()

	// Even a connection already sitting in the report's room does not hear
	// about creation; that announcement is for the admin queue.
	h.JoinReport(watcher, reportID)

	h.Dispatch(mustEvent(t, events.ReportCreated, reportID, events.ReportCreatedPayload{
		Report: report, OwnerRole: domain.RoleUser,
	}))
	assert.Equal(t, []string{WireReportCreated}, admin.events())
	assert.Empty(t, watcher.events())
}

func TestDispatchReportUpdatedSingleSchema(t *testing.T) {
	h := New()
	admin := newTestConn(domain.RoleAdmin)
	h.Register(admin)

	report := sampleReport(domain.StatusVerified)
	reportID := report.ID.String()

	h.Dispatch(mustEvent(t, events.ReportStatusChange, reportID, events.StatusChangedPayload{
		Report: report, OldStatus: domain.StatusPending, NewStatus: domain.StatusVerified,
	}))
	h.Dispatch(mustEvent(t, events.ReportNotesUpdated, reportID, events.NotesUpdatedPayload{
		Report: report,
	}))

	admin.mu.Lock()
	defer admin.mu.Unlock()
	require.Len(t, admin.received, 2)
	for _, m := range admin.received {
		assert.Equal(t, WireReportUpdated, m.Event)
		upd, ok := m.Data.(ReportUpdate)
		require.True(t, ok, "report:updated payload must be a ReportUpdate")
		require.NotNil(t, upd.Report)
		assert.Equal(t, report.ID, upd.Report.ID)
	}

	statusUpd := admin.received[0].Data.(ReportUpdate)
	assert.Equal(t, domain.StatusPending, statusUpd.OldStatus)
	assert.Equal(t, domain.StatusVerified, statusUpd.NewStatus)

	notesUpd := admin.received[1].Data.(ReportUpdate)
	assert.Empty(t, notesUpd.OldStatus)
	assert.Empty(t, notesUpd.NewStatus)
}

func TestDispatchBulkResyncReachesEveryone(t *testing.T) {
	h := New()
	user := newTestConn(domain.RoleUser)
	admin := newTestConn(domain.RoleAdmin)
	h.Register(user)
	h.Register(admin)

	h.Dispatch(mustEvent(t, events.ReportsBulkUpdated, "", events.BulkUpdatedPayload{
		ReportIDs: []string{"a", "b"}, Status: domain.StatusVerified,
	}))
	assert.Equal(t, []string{WireBulkUpdated}, user.events())
	assert.Equal(t, []string{WireBulkUpdated}, admin.events())
}

func TestDispatchLeaveReportStopsUpdates(t *testing.T) {
	h := New()
	watcher := newTestConn(domain.RoleUser)
	h.Register(watcher)

	report := sampleReport(domain.StatusVerified)
	reportID := report.ID.String()
	h.JoinReport(watcher, reportID)
	h.LeaveReport(watcher, reportID)

	report.Status = domain.StatusInProgress
	h.Dispatch(mustEvent(t, events.ReportStatusChange, reportID, events.StatusChangedPayload{
		Report: report, OldStatus: domain.StatusVerified, NewStatus: domain.StatusInProgress,
	}))
	assert.Empty(t, watcher.events())
}
