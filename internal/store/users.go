package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"reviwa-server/internal/domain"
)

const userColumns = `id, name, email, password_hash, avatar, role, eco_points, reports_count, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Avatar, &u.Role,
		&u.EcoPoints, &u.ReportsCount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertUser inserts a new user row.
func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, avatar, role, eco_points, reports_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Avatar, u.Role,
		u.EcoPoints, u.ReportsCount, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// AddPoints atomically increments a user's eco-points and returns the new
// total. The increment itself is race-free; only the milestone check the
// caller performs on the returned total is best-effort.
func (s *Store) AddPoints(ctx context.Context, userID uuid.UUID, delta int) (int, error) {
	var total int
	err := s.DB.QueryRowContext(ctx,
		`UPDATE users SET eco_points = eco_points + $1, updated_at = $2 WHERE id = $3 RETURNING eco_points`,
		delta, time.Now(), userID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	return total, nil
}

// IncReportsCount bumps the owner's report counter by one.
func (s *Store) IncReportsCount(ctx context.Context, userID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE users SET reports_count = reports_count + 1, updated_at = $1 WHERE id = $2`,
		time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to increment reports count: %w", err)
	}
	return nil
}

// DecReportsCount decrements the owner's report counter, clamping at zero.
// A clamp means the counter had drifted (concurrent deletes or an old bug),
// so it is logged rather than silently absorbed.
func (s *Store) DecReportsCount(ctx context.Context, userID uuid.UUID) error {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`UPDATE users SET reports_count = reports_count - 1, updated_at = $1 WHERE id = $2 RETURNING reports_count`,
		time.Now(), userID).Scan(&count)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to decrement reports count: %w", err)
	}
	if count < 0 {
		log.Printf("[STORE] Clamped negative reportsCount for user %s to 0", userID)
		_, err = s.DB.ExecContext(ctx, `UPDATE users SET reports_count = 0 WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to clamp reports count: %w", err)
		}
	}
	return nil
}

// Leaderboard returns the top non-admin users by eco-points.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]*domain.User, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role <> $1 ORDER BY eco_points DESC LIMIT $2`,
		domain.RoleAdmin, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListUsers returns users for the admin console, optionally filtered by role
// and a name/email search.
func (s *Store) ListUsers(ctx context.Context, role, search string, limit, page int) ([]*domain.User, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if role != "" {
		args = append(args, role)
		where += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", len(args), len(args))
	}
	if limit <= 0 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(ctx context.Context, id uuid.UUID, role string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`, role, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProfile sets the user-editable profile fields.
func (s *Store) UpdateUserProfile(ctx context.Context, id uuid.UUID, name, avatar string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET name = $1, avatar = $2, updated_at = $3 WHERE id = $4`,
		name, avatar, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user; their reports go with them via the FK cascade.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdminEmails returns the email addresses of all admin users.
func (s *Store) AdminEmails(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT email FROM users WHERE role = $1`, domain.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
