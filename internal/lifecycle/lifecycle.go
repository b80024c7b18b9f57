package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"reviwa-server/internal/domain"
	"reviwa-server/internal/eventbus"
	"reviwa-server/internal/events"
	"reviwa-server/internal/mailer"
	"reviwa-server/internal/media"
	"reviwa-server/internal/store"
)

// ErrForbidden is returned when the actor may not perform the operation
// (maps to HTTP 403).
var ErrForbidden = errors.New("forbidden")

// ReportStore is the persistence surface the lifecycle needs for reports.
type ReportStore interface {
	InsertReport(ctx context.Context, r *domain.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	UpdateReportStatus(ctx context.Context, id uuid.UUID, status string) error
	ClaimVerification(ctx context.Context, id, adminID uuid.UUID) (bool, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SetAdminNotes(ctx context.Context, id uuid.UUID, notes string) error
	DeleteReport(ctx context.Context, id uuid.UUID) error
	BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status, adminNotes string) (int64, int64, error)
}

// UserStore is the persistence surface the lifecycle needs for users.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	AddPoints(ctx context.Context, userID uuid.UUID, delta int) (int, error)
	IncReportsCount(ctx context.Context, userID uuid.UUID) error
	DecReportsCount(ctx context.Context, userID uuid.UUID) error
	AdminEmails(ctx context.Context) ([]string, error)
}

// Service drives the report state machine: pending -> verified ->
// in-progress -> resolved, with rejected reachable from any non-terminal
// state. It owns the point-award rules and hands resulting events to the bus;
// the realtime hub decides who sees what.
type Service struct {
	Reports ReportStore
	Users   UserStore
	Media   media.Store // nil disables image storage
	Mailer  mailer.Notifier
	Bus     eventbus.Publisher
}

// ImageUpload is one raw photo from a multipart submission.
type ImageUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// CreateReport validates and persists a new pending report, uploads its
// images, awards creation points to non-admin owners, and alerts admins.
func (s *Service) CreateReport(ctx context.Context, owner *domain.User, in domain.NewReportInput, images []ImageUpload) (*domain.Report, error) {
	report, err := domain.NewReport(owner.ID, in)
	if err != nil {
		return nil, err
	}
	if len(images) > domain.MaxImages {
		return nil, &domain.ValidationError{Field: "images", Message: fmt.Sprintf("At most %d images are allowed", domain.MaxImages)}
	}

	// Each upload is independent; a failed one is logged and omitted rather
	// than aborting the submission.
	for _, img := range images {
		if s.Media == nil {
			log.Printf("[LIFECYCLE] Media store not configured, skipping image %q", img.Name)
			continue
		}
		stored, err := s.Media.Upload(ctx, img.Data, img.ContentType)
		if err != nil {
			log.Printf("[LIFECYCLE] Image upload failed for %q: %v", img.Name, err)
			continue
		}
		report.Images = append(report.Images, stored)
	}

	if err := s.Reports.InsertReport(ctx, report); err != nil {
		return nil, err
	}

	report.Reporter = owner.Ref()

	if !owner.IsAdmin() {
		if newTotal, err := s.Users.AddPoints(ctx, owner.ID, domain.PointsReportCreated); err != nil {
			log.Printf("[LIFECYCLE] Failed to award creation points to %s: %v", owner.ID, err)
		} else {
			report.Reporter.EcoPoints = newTotal
			s.notifyMilestone(owner, domain.PointsReportCreated, newTotal)
			s.publish(ctx, events.PointsAwarded, report.ID.String(), events.PointsAwardedPayload{
				UserID:    owner.ID.String(),
				EcoPoints: newTotal,
			})
		}
		if err := s.Users.IncReportsCount(ctx, owner.ID); err != nil {
			log.Printf("[LIFECYCLE] Failed to increment reportsCount for %s: %v", owner.ID, err)
		}
	}

	// Alert admins off the request path; the response never waits on email.
	go s.alertAdmins(report, owner)

	s.publish(ctx, events.ReportCreated, report.ID.String(), events.ReportCreatedPayload{
		Report:    report,
		OwnerRole: owner.Role,
	})

	return report, nil
}

// SetStatus performs one state-machine transition. The caller must already
// hold admin privilege; this method assumes it.
func (s *Service) SetStatus(ctx context.Context, reportID uuid.UUID, newStatus string, actingAdminID uuid.UUID) (*domain.Report, error) {
	report, err := s.Reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	oldStatus := report.Status

	if err := domain.CanTransition(oldStatus, newStatus); err != nil {
		return nil, err
	}

	owner, err := s.Users.GetUser(ctx, report.ReportedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to load report owner: %w", err)
	}

	pointsAwarded := 0
	switch newStatus {
	case domain.StatusVerified:
		// Conditional claim: only the call that flips verified_by from unset
		// to set pays the one-time bonus, even under concurrent updates.
		claimed, err := s.Reports.ClaimVerification(ctx, reportID, actingAdminID)
		if err != nil {
			return nil, err
		}
		if claimed && !owner.IsAdmin() {
			pointsAwarded = domain.PointsReportVerified
		}
	case domain.StatusResolved:
		first, err := s.Reports.MarkResolved(ctx, reportID, time.Now())
		if err != nil {
			return nil, err
		}
		if first && !owner.IsAdmin() {
			pointsAwarded = domain.PointsReportResolved
		}
	}

	if err := s.Reports.UpdateReportStatus(ctx, reportID, newStatus); err != nil {
		return nil, err
	}

	newTotal := owner.EcoPoints
	if pointsAwarded > 0 {
		if newTotal, err = s.Users.AddPoints(ctx, owner.ID, pointsAwarded); err != nil {
			log.Printf("[LIFECYCLE] Failed to award %d points to %s: %v", pointsAwarded, owner.ID, err)
			newTotal = owner.EcoPoints
			pointsAwarded = 0
		}
	}

	updated, err := s.Reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	if oldStatus != newStatus && !owner.IsAdmin() {
		s.Mailer.SendStatusUpdate(owner.Email, owner.Name, updated.Title,
			oldStatus, newStatus, updated.ID.String(), updated.AdminNotes)
	}
	if pointsAwarded > 0 {
		s.notifyMilestone(owner, pointsAwarded, newTotal)
		s.publish(ctx, events.PointsAwarded, reportID.String(), events.PointsAwardedPayload{
			UserID:    owner.ID.String(),
			EcoPoints: newTotal,
		})
	}

	s.publish(ctx, events.ReportStatusChange, reportID.String(), events.StatusChangedPayload{
		Report:    updated,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: actingAdminID.String(),
		ChangedAt: time.Now(),
	})

	return updated, nil
}

// SetAdminNotes overwrites the notes field regardless of status. When a
// report is rejected the UI treats the notes as the rejection reason.
func (s *Service) SetAdminNotes(ctx context.Context, reportID uuid.UUID, notes string) (*domain.Report, error) {
	if err := s.Reports.SetAdminNotes(ctx, reportID, domain.SanitizeText(notes)); err != nil {
		return nil, err
	}

	updated, err := s.Reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ReportNotesUpdated, reportID.String(), events.NotesUpdatedPayload{
		Report: updated,
	})
	return updated, nil
}

// DeleteReport removes a report, its stored images, and the owner's counter
// credit. Only the owner or an admin may delete.
func (s *Service) DeleteReport(ctx context.Context, reportID, actorID uuid.UUID, actorRole string) error {
	report, err := s.Reports.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	if report.ReportedBy != actorID && actorRole != domain.RoleAdmin {
		return ErrForbidden
	}

	// Best effort per image; one failed delete must not strand the rest.
	if s.Media != nil {
		for _, img := range report.Images {
			if img.StorageID == "" {
				continue
			}
			if err := s.Media.Delete(ctx, img.StorageID); err != nil {
				log.Printf("[LIFECYCLE] Failed to delete image %s: %v", img.StorageID, err)
			}
		}
	}

	if err := s.Reports.DeleteReport(ctx, reportID); err != nil {
		return err
	}

	if err := s.Users.DecReportsCount(ctx, report.ReportedBy); err != nil {
		log.Printf("[LIFECYCLE] Failed to decrement reportsCount for %s: %v", report.ReportedBy, err)
	}

	s.publish(ctx, events.ReportDeleted, reportID.String(), events.ReportDeletedPayload{
		ReportID: reportID.String(),
	})
	return nil
}

// BulkUpdateStatus mass-updates report statuses without itemized side
// effects: no point awards, no per-report events, just a resync signal.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status, adminNotes string) (matched, modified int64, err error) {
	if len(ids) == 0 {
		return 0, 0, &domain.ValidationError{Field: "reportIds", Message: "Please provide an array of report IDs"}
	}
	if !domain.IsValidStatus(status) {
		return 0, 0, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", status)}
	}

	matched, modified, err = s.Reports.BulkUpdateStatus(ctx, ids, status, domain.SanitizeText(adminNotes))
	if err != nil {
		return 0, 0, err
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	s.publish(ctx, events.ReportsBulkUpdated, "", events.BulkUpdatedPayload{
		ReportIDs: strIDs,
		Status:    status,
	})
	return matched, modified, nil
}

// notifyMilestone fires at most one celebration per award: the lowest
// threshold newly crossed by this increment.
func (s *Service) notifyMilestone(owner *domain.User, awarded, newTotal int) {
	if milestone, ok := domain.CrossedMilestone(newTotal-awarded, newTotal); ok {
		s.Mailer.SendMilestone(owner.Email, owner.Name, newTotal, milestone)
	}
}

func (s *Service) alertAdmins(report *domain.Report, owner *domain.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	emails, err := s.Users.AdminEmails(ctx)
	if err != nil {
		log.Printf("[LIFECYCLE] Failed to fetch admin emails: %v", err)
		return
	}

	location := report.Location.Address
	if location == "" {
		location = fmt.Sprintf("%.4f, %.4f", report.Location.Coordinates[1], report.Location.Coordinates[0])
	}
	for _, email := range emails {
		s.Mailer.SendNewReportAlert(email, report.Title, owner.Name,
			report.WasteType, report.Severity, report.ID.String(), location)
	}
}

// publish hands an event to the bus; a broken bus never fails the request.
func (s *Service) publish(ctx context.Context, eventType, reportID string, payload interface{}) {
	event, err := events.NewEvent(eventType, reportID, payload)
	if err != nil {
		log.Printf("[EVENT] Failed to build %s event: %v", eventType, err)
		return
	}
	if err := s.Bus.Publish(ctx, event); err != nil {
		log.Printf("[EVENT] Failed to publish %s: %v", eventType, err)
		return
	}
	log.Printf("[EVENT] Published %s for report %s", eventType, reportID)
}

// IsNotFound reports whether err is the store's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
