package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviwa-server/internal/domain"
	"reviwa-server/internal/events"
	"reviwa-server/internal/media"
	"reviwa-server/internal/store"
)

type fakeReports struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*domain.Report
}

func newFakeReports() *fakeReports {
	return &fakeReports{reports: make(map[uuid.UUID]*domain.Report)}
}

func (f *fakeReports) InsertReport(_ context.Context, r *domain.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.reports[r.ID] = &cp
	return nil
}

func (f *fakeReports) GetReport(_ context.Context, id uuid.UUID) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) UpdateReportStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	return nil
}

func (f *fakeReports) ClaimVerification(_ context.Context, id, adminID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if r.VerifiedBy != nil {
		return false, nil
	}
	r.VerifiedBy = &adminID
	return true, nil
}

func (f *fakeReports) MarkResolved(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if r.ResolvedAt != nil {
		return false, nil
	}
	r.ResolvedAt = &at
	return true, nil
}

func (f *fakeReports) SetAdminNotes(_ context.Context, id uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	r.AdminNotes = notes
	return nil
}

func (f *fakeReports) DeleteReport(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reports[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.reports, id)
	return nil
}

func (f *fakeReports) BulkUpdateStatus(_ context.Context, ids []uuid.UUID, status, adminNotes string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := f.reports[id]; ok {
			r.Status = status
			if adminNotes != "" {
				r.AdminNotes = adminNotes
			}
			n++
		}
	}
	return n, n, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUsers(users ...*domain.User) *fakeUsers {
	f := &fakeUsers{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) AddPoints(_ context.Context, userID uuid.UUID, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, store.ErrNotFound
	}
	u.EcoPoints += delta
	return u.EcoPoints, nil
}

func (f *fakeUsers) IncReportsCount(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.ReportsCount++
	}
	return nil
}

func (f *fakeUsers) DecReportsCount(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok && u.ReportsCount > 0 {
		u.ReportsCount--
	}
	return nil
}

func (f *fakeUsers) AdminEmails(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var emails []string
	for _, u := range f.users {
		if u.IsAdmin() {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}

type fakeMedia struct {
	mu       sync.Mutex
	failNext bool
	uploads  int
	deleted  []string
}

func (f *fakeMedia) Upload(_ context.Context, _ []byte, _ string) (domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return domain.Image{}, errors.New("storage unavailable")
	}
	f.uploads++
	id := uuid.New().String()
	return domain.Image{URL: "https://img.test/" + id, StorageID: id}, nil
}

func (f *fakeMedia) Delete(_ context.Context, storageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, storageID)
	return nil
}

var _ media.Store = (*fakeMedia)(nil)

type mailCall struct {
	kind      string
	to        string
	milestone int
	oldStatus string
	newStatus string
}

type fakeMailer struct {
	mu    sync.Mutex
	calls []mailCall
}

func (f *fakeMailer) SendWelcome(email, _ string) {
	f.record(mailCall{kind: "welcome", to: email})
}

func (f *fakeMailer) SendStatusUpdate(email, _, _, oldStatus, newStatus, _, _ string) {
	f.record(mailCall{kind: "status", to: email, oldStatus: oldStatus, newStatus: newStatus})
}

func (f *fakeMailer) SendNewReportAlert(adminEmail, _, _, _, _, _, _ string) {
	f.record(mailCall{kind: "alert", to: adminEmail})
}

func (f *fakeMailer) SendMilestone(email, _ string, _, milestone int) {
	f.record(mailCall{kind: "milestone", to: email, milestone: milestone})
}

func (f *fakeMailer) record(c mailCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeMailer) byKind(kind string) []mailCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mailCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type fakeBus struct {
	mu        sync.Mutex
	published []*events.Event
}

func (f *fakeBus) Publish(_ context.Context, e *events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
	return nil
}

func (f *fakeBus) byType(eventType string) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, e := range f.published {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc     *Service
	reports *fakeReports
	users   *fakeUsers
	media   *fakeMedia
	mailer  *fakeMailer
	bus     *fakeBus
	owner   *domain.User
	admin   *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner := &domain.User{
		ID:    uuid.New(),
		Name:  "Citizen Kane",
		Email: "citizen@example.com",
		Role:  domain.RoleUser,
	}
	admin := &domain.User{
		ID:    uuid.New(),
		Name:  "Site Admin",
		Email: "admin@example.com",
		Role:  domain.RoleAdmin,
	}
	f := &fixture{
		reports: newFakeReports(),
		users:   newFakeUsers(owner, admin),
		media:   &fakeMedia{},
		mailer:  &fakeMailer{},
		bus:     &fakeBus{},
		owner:   owner,
		admin:   admin,
	}
	f.svc = &Service{
		Reports: f.reports,
		Users:   f.users,
		Media:   f.media,
		Mailer:  f.mailer,
		Bus:     f.bus,
	}
	return f
}

func validInput() domain.NewReportInput {
	return domain.NewReportInput{
		Title:       "Overflowing bin at the park",
		Description: "The bin near the north entrance has been overflowing for days.",
		Longitude:   106.8456,
		Latitude:    -6.2088,
		Address:     "North Park entrance",
		WasteType:   "organic",
		Severity:    "high",
	}
}

func TestCreateReportAwardsPointsAndCount(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.CreateReport(context.Background(), f.owner, validInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, report.Status)
	assert.Equal(t, f.owner.ID, report.ReportedBy)

	u, err := f.users.GetUser(context.Background(), f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PointsReportCreated, u.EcoPoints)
	assert.Equal(t, 1, u.ReportsCount)

	require.Len(t, f.bus.byType(events.ReportCreated), 1)
	require.Len(t, f.bus.byType(events.PointsAwarded), 1)
}

func TestCreateReportAdminOwnerEarnsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateReport(context.Background(), f.admin, validInput(), nil)
	require.NoError(t, err)

	u, err := f.users.GetUser(context.Background(), f.admin.ID)
	require.NoError(t, err)
	assert.Zero(t, u.EcoPoints)
	assert.Zero(t, u.ReportsCount)
	assert.Empty(t, f.bus.byType(events.PointsAwarded))
}

func TestCreateReportRejectsNullIslandBeforePersisting(t *testing.T) {
	f := newFixture(t)

	in := validInput()
	in.Longitude = 0
	in.Latitude = 0

	_, err := f.svc.CreateReport(context.Background(), f.owner, in, nil)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "location", verr.Field)

	assert.Empty(t, f.reports.reports)
	u, _ := f.users.GetUser(context.Background(), f.owner.ID)
	assert.Zero(t, u.EcoPoints)
}

func TestCreateReportToleratesFailedUpload(t *testing.T) {
	f := newFixture(t)
	f.media.failNext = true

	images := []ImageUpload{
		{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
		{Name: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")},
	}
	report, err := f.svc.CreateReport(context.Background(), f.owner, validInput(), images)
	require.NoError(t, err)
	assert.Len(t, report.Images, 1)
}

func TestCreateReportCapsImageCount(t *testing.T) {
	f := newFixture(t)

	images := make([]ImageUpload, domain.MaxImages+1)
	for i := range images {
		images[i] = ImageUpload{Name: "x.jpg", ContentType: "image/jpeg", Data: []byte("x")}
	}
	_, err := f.svc.CreateReport(context.Background(), f.owner, validInput(), images)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "images", verr.Field)
}

func TestFullLifecyclePointTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.CreateReport(ctx, f.owner, validInput(), nil)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusVerified, f.admin.ID)
	require.NoError(t, err)
	u, _ := f.users.GetUser(ctx, f.owner.ID)
	assert.Equal(t, 30, u.EcoPoints)

	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusInProgress, f.admin.ID)
	require.NoError(t, err)

	updated, err := f.svc.SetStatus(ctx, report.ID, domain.StatusResolved, f.admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.ResolvedAt)

	u, _ = f.users.GetUser(ctx, f.owner.ID)
	assert.Equal(t, 80, u.EcoPoints)

	// 30 -> 80 crosses the 50 threshold exactly once.
	milestones := f.mailer.byKind("milestone")
	found := false
	for _, m := range milestones {
		if m.milestone == 50 {
			found = true
		}
	}
	assert.True(t, found, "expected a milestone mail for crossing 50")
}

func TestReVerifyDoesNotReAward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.CreateReport(ctx, f.owner, validInput(), nil)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusVerified, f.admin.ID)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusVerified, f.admin.ID)
	require.NoError(t, err)

	u, _ := f.users.GetUser(ctx, f.owner.ID)
	assert.Equal(t, 30, u.EcoPoints)

	// Re-affirming the same status is a no-op for the owner's inbox too.
	statusMails := f.mailer.byKind("status")
	assert.Len(t, statusMails, 1)
}

func TestTerminalStatusRejectsFurtherTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.CreateReport(ctx, f.owner, validInput(), nil)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusRejected, f.admin.ID)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusVerified, f.admin.ID)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	u, _ := f.users.GetUser(ctx, f.owner.ID)
	assert.Equal(t, 10, u.EcoPoints)
}

func TestSetStatusAdminOwnedReportAwardsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.CreateReport(ctx, f.admin, validInput(), nil)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusVerified, f.admin.ID)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, report.ID, domain.StatusResolved, f.admin.ID)
	require.NoError(t, err)

	u, _ := f.users.GetUser(ctx, f.admin.ID)
	assert.Zero(t, u.EcoPoints)
	assert.Empty(t, f.mailer.byKind("status"))
}

func TestSetStatusUnknownReport(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SetStatus(context.Background(), uuid.New(), domain.StatusVerified, f.admin.ID)
	assert.True(t, IsNotFound(err))
}

func TestSetAdminNotesSanitizesAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.CreateReport(ctx, f.owner, validInput(), nil)
	require.NoError(t, err)

	updated, err := f.svc.SetAdminNotes(ctx, report.ID, "<script>alert(1)</script>Crew scheduled for Monday")
	require.NoError(t, err)
	assert.Equal(t, "Crew scheduled for Monday", updated.AdminNotes)
	require.Len(t, f.bus.byType(events.ReportNotesUpdated), 1)
}

func TestDeleteReportAuthz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.CreateReport(ctx, f.owner, validInput(), nil)
	require.NoError(t, err)

	stranger := uuid.New()
	err = f.svc.DeleteReport(ctx, report.ID, stranger, domain.RoleUser)
	assert.ErrorIs(t, err, ErrForbidden)

	err = f.svc.DeleteReport(ctx, report.ID, f.owner.ID, domain.RoleUser)
	require.NoError(t, err)

	_, err = f.reports.GetReport(ctx, report.ID)
	assert.True(t, IsNotFound(err))

	u, _ := f.users.GetUser(ctx, f.owner.ID)
	assert.Zero(t, u.ReportsCount)
	require.Len(t, f.bus.byType(events.ReportDeleted), 1)
}

func TestDeleteReportRemovesStoredImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	images := []ImageUpload{{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")}}
	report, err := f.svc.CreateReport(ctx, f.owner, validInput(), images)
	require.NoError(t, err)
	require.Len(t, report.Images, 1)

	err = f.svc.DeleteReport(ctx, report.ID, f.admin.ID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{report.Images[0].StorageID}, f.media.deleted)
}

func TestBulkUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.svc.CreateReport(ctx, f.owner, validInput(), nil)
	require.NoError(t, err)
	r2, err := f.svc.CreateReport(ctx, f.owner, validInput(), nil)
	require.NoError(t, err)

	pointsBefore, _ := f.users.GetUser(ctx, f.owner.ID)

	matched, modified, err := f.svc.BulkUpdateStatus(ctx, []uuid.UUID{r1.ID, r2.ID, uuid.New()}, domain.StatusVerified, "batch sweep")
	require.NoError(t, err)
	assert.Equal(t, int64(2), matched)
	assert.Equal(t, int64(2), modified)

	// Bulk updates skip the per-report award path entirely.
	pointsAfter, _ := f.users.GetUser(ctx, f.owner.ID)
	assert.Equal(t, pointsBefore.EcoPoints, pointsAfter.EcoPoints)

	require.Len(t, f.bus.byType(events.ReportsBulkUpdated), 1)

	_, _, err = f.svc.BulkUpdateStatus(ctx, nil, domain.StatusVerified, "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
