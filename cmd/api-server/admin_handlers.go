package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"reviwa-server/internal/auth"
	"reviwa-server/internal/domain"
	"reviwa-server/internal/eventbus"
	"reviwa-server/internal/store"
)

// adminReportsHandler returns reports for the admin console with a free-text
// search across title and description
func adminReportsHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := store.ReportFilter{
			Status:    r.URL.Query().Get("status"),
			WasteType: r.URL.Query().Get("wasteType"),
			Severity:  r.URL.Query().Get("severity"),
			Search:    r.URL.Query().Get("search"),
			Limit:     queryInt(r, "limit", 50),
			Page:      queryInt(r, "page", 1),
		}

		reports, total, err := app.Store.ListReports(r.Context(), f)
		if err != nil {
			log.Printf("Error listing admin reports: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch reports")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    reports,
			"pagination": map[string]interface{}{
				"total": total,
				"page":  f.Page,
				"limit": f.Limit,
				"pages": (total + f.Limit - 1) / f.Limit,
			},
		})
	}
}

// adminPendingReportsHandler returns the verification queue
func adminPendingReportsHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, total, err := app.Store.ListReports(r.Context(), store.ReportFilter{
			Status: domain.StatusPending,
			Limit:  queryInt(r, "limit", 50),
			Page:   queryInt(r, "page", 1),
		})
		if err != nil {
			log.Printf("Error listing pending reports: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch reports")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    reports,
			"total":   total,
		})
	}
}

// bulkUpdateHandler mass-updates report statuses
func bulkUpdateHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ReportIDs  []string `json:"reportIds"`
			Status     string   `json:"status"`
			AdminNotes string   `json:"adminNotes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		ids := make([]uuid.UUID, 0, len(req.ReportIDs))
		for _, raw := range req.ReportIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "Invalid report id: "+raw)
				return
			}
			ids = append(ids, id)
		}

		matched, modified, err := app.Lifecycle.BulkUpdateStatus(r.Context(), ids, req.Status, req.AdminNotes)
		if err != nil {
			respondServiceError(w, err, "Failed to update reports")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Reports updated",
			"data": map[string]int64{
				"matched":  matched,
				"modified": modified,
			},
		})
	}
}

// adminStatsHandler returns the aggregated admin dashboard
func adminStatsHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := app.Store.GetAdminStats(r.Context())
		if err != nil {
			log.Printf("Error fetching admin stats: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch stats")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    stats,
		})
	}
}

// adminSystemHandler reports process and dependency health
func adminSystemHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := app.EventBus.GetPendingCount(r.Context(), consumerGroup)
		if err != nil {
			log.Printf("Error fetching pending count: %v", err)
			pending = -1
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"instance":      app.InstanceID,
				"uptimeSeconds": int(time.Since(app.StartedAt).Seconds()),
				"stream":        eventbus.StreamName,
				"pendingEvents": pending,
				"realtime":      app.Hub.DebugState(),
			},
		})
	}
}

// adminUsersHandler lists accounts for the admin console
func adminUsersHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := app.Store.ListUsers(r.Context(),
			r.URL.Query().Get("role"),
			r.URL.Query().Get("search"),
			queryInt(r, "limit", 50),
			queryInt(r, "page", 1))
		if err != nil {
			log.Printf("Error listing users: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch users")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    users,
		})
	}
}

// updateUserRoleHandler promotes or demotes an account
func updateUserRoleHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value("claims").(*auth.Claims)
		userID, err := uuid.Parse(mux.Vars(r)["userId"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user id")
			return
		}

		var req struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Role != domain.RoleUser && req.Role != domain.RoleAdmin {
			respondWithError(w, http.StatusBadRequest, "Invalid role")
			return
		}
		if claims.Sub == userID.String() && req.Role != domain.RoleAdmin {
			respondWithError(w, http.StatusBadRequest, "You cannot demote your own account")
			return
		}

		if err := app.Store.UpdateUserRole(r.Context(), userID, req.Role); err != nil {
			if err == store.ErrNotFound {
				respondWithError(w, http.StatusNotFound, "User not found")
				return
			}
			log.Printf("Error updating role: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update role")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "User role updated",
		})
	}
}

// deleteUserHandler removes an account and, via the FK cascade, its reports
func deleteUserHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value("claims").(*auth.Claims)
		userID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		if claims.Sub == userID.String() {
			respondWithError(w, http.StatusBadRequest, "You cannot delete your own account")
			return
		}

		if err := app.Store.DeleteUser(r.Context(), userID); err != nil {
			if err == store.ErrNotFound {
				respondWithError(w, http.StatusNotFound, "User not found")
				return
			}
			log.Printf("Error deleting user: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete user")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "User deleted",
		})
	}
}
