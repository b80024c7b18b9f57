package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"reviwa-server/internal/domain"
)

// ReportFilter narrows List queries. Zero values mean "no filter".
type ReportFilter struct {
	Status    string
	WasteType string
	Severity  string
	Search    string // matches title or description, admin console only

	// Optional bounding box for the map view: [minLon, minLat, maxLon, maxLat]
	BBox *[4]float64

	Limit int
	Page  int
}

const reportColumns = `r.id, r.title, r.description, r.longitude, r.latitude, r.address,
	r.images, r.waste_type, r.severity, r.status, r.reported_by, r.verified_by,
	r.resolved_at, r.admin_notes, r.created_at, r.updated_at,
	u.name, u.email, u.avatar, u.eco_points`

const reportFrom = ` FROM reports r JOIN users u ON u.id = r.reported_by`

func scanReport(row interface{ Scan(...interface{}) error }) (*domain.Report, error) {
	var (
		r          domain.Report
		imagesJSON []byte
		verifiedBy sql.NullString
		resolvedAt sql.NullTime
		ref        domain.UserRef
	)
	err := row.Scan(&r.ID, &r.Title, &r.Description,
		&r.Location.Coordinates[0], &r.Location.Coordinates[1], &r.Location.Address,
		&imagesJSON, &r.WasteType, &r.Severity, &r.Status, &r.ReportedBy, &verifiedBy,
		&resolvedAt, &r.AdminNotes, &r.CreatedAt, &r.UpdatedAt,
		&ref.Name, &ref.Email, &ref.Avatar, &ref.EcoPoints)
	if err != nil {
		return nil, err
	}
	if verifiedBy.Valid {
		id, err := uuid.Parse(verifiedBy.String)
		if err == nil {
			r.VerifiedBy = &id
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	r.Images = []domain.Image{}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &r.Images); err != nil {
			return nil, fmt.Errorf("failed to decode report images: %w", err)
		}
	}
	ref.ID = r.ReportedBy
	r.Reporter = &ref
	return &r, nil
}

// InsertReport inserts a new report row.
func (s *Store) InsertReport(ctx context.Context, r *domain.Report) error {
	imagesJSON, err := json.Marshal(r.Images)
	if err != nil {
		return fmt.Errorf("failed to encode report images: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO reports (id, title, description, longitude, latitude, address, images,
			waste_type, severity, status, reported_by, admin_notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.Title, r.Description,
		r.Location.Coordinates[0], r.Location.Coordinates[1], r.Location.Address,
		imagesJSON, r.WasteType, r.Severity, r.Status, r.ReportedBy, r.AdminNotes,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetReport fetches a report with its owner populated.
func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+reportColumns+reportFrom+` WHERE r.id = $1`, id)
	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListReports returns a filtered, paginated page plus the total match count.
func (s *Store) ListReports(ctx context.Context, f ReportFilter) ([]*domain.Report, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(cond, len(args))
	}

	if f.Status != "" {
		add(" AND r.status = $%d", f.Status)
	}
	if f.WasteType != "" {
		add(" AND r.waste_type = $%d", f.WasteType)
	}
	if f.Severity != "" {
		add(" AND r.severity = $%d", f.Severity)
	}
	if f.Search != "" {
		add(" AND (r.title ILIKE $%d", "%"+f.Search+"%")
		add(" OR r.description ILIKE $%d)", "%"+f.Search+"%")
	}
	if f.BBox != nil {
		b := *f.BBox
		add(" AND r.longitude >= $%d", b[0])
		add(" AND r.latitude >= $%d", b[1])
		add(" AND r.longitude <= $%d", b[2])
		add(" AND r.latitude <= $%d", b[3])
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*)`+reportFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := `SELECT ` + reportColumns + reportFrom + where +
		fmt.Sprintf(` ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []*domain.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}

// ListReportsByUser returns all reports submitted by one user, newest first.
func (s *Store) ListReportsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Report, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+reportColumns+reportFrom+` WHERE r.reported_by = $1 ORDER BY r.created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user reports: %w", err)
	}
	defer rows.Close()

	reports := []*domain.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// UpdateReportStatus sets the status column and touches updated_at.
func (s *Store) UpdateReportStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE reports SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimVerification sets verified_by only if it is still unset and reports
// whether this call actually claimed it. The conditional write is what makes
// the one-time verification bonus safe under concurrent status updates.
func (s *Store) ClaimVerification(ctx context.Context, id, adminID uuid.UUID) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE reports SET verified_by = $1, updated_at = $2 WHERE id = $3 AND verified_by IS NULL`,
		adminID, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to claim verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkResolved stamps resolved_at once; later calls leave the first timestamp.
func (s *Store) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE reports SET resolved_at = $1, updated_at = $1 WHERE id = $2 AND resolved_at IS NULL`,
		at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark report resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetAdminNotes overwrites the admin notes unconditionally.
func (s *Store) SetAdminNotes(ctx context.Context, id uuid.UUID, notes string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE reports SET admin_notes = $1, updated_at = $2 WHERE id = $3`,
		notes, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update admin notes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReport removes the row.
func (s *Store) DeleteReport(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkUpdateStatus updates many reports in one statement. Matched and
// modified are the same number under Postgres UPDATE semantics.
func (s *Store) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status string, adminNotes string) (matched, modified int64, err error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	var res sql.Result
	if adminNotes != "" {
		res, err = s.DB.ExecContext(ctx,
			`UPDATE reports SET status = $1, admin_notes = $2, updated_at = $3 WHERE id = ANY($4)`,
			status, adminNotes, time.Now(), pq.Array(strIDs))
	} else {
		res, err = s.DB.ExecContext(ctx,
			`UPDATE reports SET status = $1, updated_at = $2 WHERE id = ANY($3)`,
			status, time.Now(), pq.Array(strIDs))
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to bulk update reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	return n, n, nil
}
