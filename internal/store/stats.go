package store

import (
	"context"
	"fmt"
	"time"

	"reviwa-server/internal/domain"
)

// AdminStats is the admin dashboard aggregation: totals, per-status and
// per-severity counts (all buckets always present), and recent activity.
type AdminStats struct {
	TotalUsers        int            `json:"totalUsers"`
	TotalReports      int            `json:"totalReports"`
	ReportsByStatus   map[string]int `json:"reportsByStatus"`
	ReportsBySeverity map[string]int `json:"reportsBySeverity"`
	RecentActivity    RecentActivity `json:"recentActivity"`
}

type RecentActivity struct {
	ReportsThisMonth  int `json:"reportsThisMonth"`
	NewUsersThisMonth int `json:"newUsersThisMonth"`
	ActiveUsers       int `json:"activeUsers"`
}

// DashboardStats is the public dashboard summary.
type DashboardStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
	TotalUsers int `json:"totalUsers"`
}

func (s *Store) countWhere(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) groupCounts(ctx context.Context, column string, buckets []string) (map[string]int, error) {
	out := make(map[string]int, len(buckets))
	for _, b := range buckets {
		out[b] = 0
	}

	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM reports GROUP BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to group reports by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		out[key] = count
	}
	return out, rows.Err()
}

// GetAdminStats recomputes the admin aggregation on every call; there is no
// caching layer.
func (s *Store) GetAdminStats(ctx context.Context) (*AdminStats, error) {
	now := time.Now()
	thirtyDaysAgo := now.Add(-30 * 24 * time.Hour)
	sevenDaysAgo := now.Add(-7 * 24 * time.Hour)

	stats := &AdminStats{}
	var err error

	if stats.TotalUsers, err = s.countWhere(ctx, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if stats.TotalReports, err = s.countWhere(ctx, `SELECT COUNT(*) FROM reports`); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	if stats.ReportsByStatus, err = s.groupCounts(ctx, "status", domain.ValidStatuses); err != nil {
		return nil, err
	}
	if stats.ReportsBySeverity, err = s.groupCounts(ctx, "severity", domain.ValidSeverities); err != nil {
		return nil, err
	}
	if stats.RecentActivity.ReportsThisMonth, err = s.countWhere(ctx,
		`SELECT COUNT(*) FROM reports WHERE created_at >= $1`, thirtyDaysAgo); err != nil {
		return nil, fmt.Errorf("failed to count recent reports: %w", err)
	}
	if stats.RecentActivity.NewUsersThisMonth, err = s.countWhere(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= $1`, thirtyDaysAgo); err != nil {
		return nil, fmt.Errorf("failed to count new users: %w", err)
	}
	if stats.RecentActivity.ActiveUsers, err = s.countWhere(ctx,
		`SELECT COUNT(*) FROM users WHERE updated_at >= $1`, sevenDaysAgo); err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	return stats, nil
}

// GetDashboardStats returns the public dashboard counts.
func (s *Store) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	var err error

	if stats.Total, err = s.countWhere(ctx, `SELECT COUNT(*) FROM reports`); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	if stats.Pending, err = s.countWhere(ctx,
		`SELECT COUNT(*) FROM reports WHERE status = $1`, domain.StatusPending); err != nil {
		return nil, err
	}
	if stats.InProgress, err = s.countWhere(ctx,
		`SELECT COUNT(*) FROM reports WHERE status = $1`, domain.StatusInProgress); err != nil {
		return nil, err
	}
	if stats.Resolved, err = s.countWhere(ctx,
		`SELECT COUNT(*) FROM reports WHERE status = $1`, domain.StatusResolved); err != nil {
		return nil, err
	}
	if stats.TotalUsers, err = s.countWhere(ctx, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, err
	}
	return stats, nil
}
