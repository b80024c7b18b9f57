package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"reviwa-server/internal/auth"
	"reviwa-server/internal/domain"
	"reviwa-server/internal/lifecycle"
	"reviwa-server/internal/store"
)

const maxUploadBytes = 10 << 20

// setupRoutes configures all HTTP routes
func setupRoutes(app *App) {
	api := app.Router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", healthHandler(app)).Methods("GET")

	// Auth
	api.HandleFunc("/auth/register", registerHandler(app)).Methods("POST")
	api.HandleFunc("/auth/login", loginHandler(app)).Methods("POST")
	api.HandleFunc("/auth/me", authMiddleware(meHandler(app))).Methods("GET")

	// Reports (specific paths before the {id} catch-all)
	api.HandleFunc("/reports/stats/dashboard", dashboardStatsHandler(app)).Methods("GET")
	api.HandleFunc("/reports/user/{userId}", authMiddleware(userReportsHandler(app))).Methods("GET")
	api.HandleFunc("/reports", authMiddleware(createReportHandler(app))).Methods("POST")
	api.HandleFunc("/reports", listReportsHandler(app)).Methods("GET")
	api.HandleFunc("/reports/{id}", getReportHandler(app)).Methods("GET")
	api.HandleFunc("/reports/{id}/status", adminMiddleware(updateStatusHandler(app))).Methods("PATCH")
	api.HandleFunc("/reports/{id}/notes", adminMiddleware(updateNotesHandler(app))).Methods("PATCH")
	api.HandleFunc("/reports/{id}", authMiddleware(deleteReportHandler(app))).Methods("DELETE")

	// Users
	api.HandleFunc("/users/leaderboard", leaderboardHandler(app)).Methods("GET")
	api.HandleFunc("/users/{id}", authMiddleware(getUserHandler(app))).Methods("GET")
	api.HandleFunc("/users/{id}", authMiddleware(updateProfileHandler(app))).Methods("PATCH")

	// Admin console
	api.HandleFunc("/admin/reports/pending", adminMiddleware(adminPendingReportsHandler(app))).Methods("GET")
	api.HandleFunc("/admin/reports/bulk", adminMiddleware(bulkUpdateHandler(app))).Methods("PATCH")
	api.HandleFunc("/admin/reports", adminMiddleware(adminReportsHandler(app))).Methods("GET")
	api.HandleFunc("/admin/stats", adminMiddleware(adminStatsHandler(app))).Methods("GET")
	api.HandleFunc("/admin/system", adminMiddleware(adminSystemHandler(app))).Methods("GET")
	api.HandleFunc("/admin/users/{userId}/role", adminMiddleware(updateUserRoleHandler(app))).Methods("PATCH")
	api.HandleFunc("/admin/users/{id}", adminMiddleware(deleteUserHandler(app))).Methods("DELETE")
	api.HandleFunc("/admin/users", adminMiddleware(adminUsersHandler(app))).Methods("GET")

	// Realtime
	app.Router.HandleFunc("/ws", wsHandler(app))
}

// authMiddleware validates JWT token
func authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractTokenFromHeader(r)
		if token == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing authorization token")
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), "claims", claims)
		next(w, r.WithContext(ctx))
	}
}

// adminMiddleware validates JWT and requires the admin role
func adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value("claims").(*auth.Claims)
		if claims.Role != domain.RoleAdmin {
			respondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}

// healthHandler returns service health status
func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "healthy",
			"service":     "reviwa-api",
			"instance":    app.InstanceID,
			"connections": app.Hub.ConnectionCount(),
		})
	}
}

// createReportHandler accepts a multipart report submission
func createReportHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := currentUser(app, r)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Unknown user")
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}

		lng, _ := strconv.ParseFloat(r.FormValue("location[coordinates][0]"), 64)
		lat, _ := strconv.ParseFloat(r.FormValue("location[coordinates][1]"), 64)

		in := domain.NewReportInput{
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
			Longitude:   lng,
			Latitude:    lat,
			Address:     r.FormValue("location[address]"),
			WasteType:   r.FormValue("wasteType"),
			Severity:    r.FormValue("severity"),
		}

		var images []lifecycle.ImageUpload
		if r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File["images"] {
				file, err := fh.Open()
				if err != nil {
					log.Printf("Error opening upload %q: %v", fh.Filename, err)
					continue
				}
				data, err := io.ReadAll(file)
				file.Close()
				if err != nil {
					log.Printf("Error reading upload %q: %v", fh.Filename, err)
					continue
				}
				images = append(images, lifecycle.ImageUpload{
					Name:        fh.Filename,
					ContentType: fh.Header.Get("Content-Type"),
					Data:        data,
				})
			}
		}

		report, err := app.Lifecycle.CreateReport(r.Context(), owner, in, images)
		if err != nil {
			respondServiceError(w, err, "Failed to create report")
			return
		}

		respondWithJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Report created successfully",
			"data":    report,
		})
	}
}

// listReportsHandler returns filtered, paginated reports
func listReportsHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := store.ReportFilter{
			Status:    r.URL.Query().Get("status"),
			WasteType: r.URL.Query().Get("wasteType"),
			Severity:  r.URL.Query().Get("severity"),
			Limit:     queryInt(r, "limit", 20),
			Page:      queryInt(r, "page", 1),
		}
		if bbox := r.URL.Query().Get("bbox"); bbox != "" {
			parts := strings.Split(bbox, ",")
			if len(parts) == 4 {
				var box [4]float64
				ok := true
				for i, p := range parts {
					v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
					if err != nil {
						ok = false
						break
					}
					box[i] = v
				}
				if ok {
					f.BBox = &box
				}
			}
		}

		reports, total, err := app.Store.ListReports(r.Context(), f)
		if err != nil {
			log.Printf("Error listing reports: %v", err)
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

// getReportHandler returns a single report by id
func getReportHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid report id")
			return
		}

		report, err := app.Store.GetReport(r.Context(), id)
		if err != nil {
			respondServiceError(w, err, "Failed to fetch report")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    report,
		})
	}
}

// userReportsHandler returns all reports submitted by one user
func userReportsHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(mux.Vars(r)["userId"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user id")
			return
		}

		reports, err := app.Store.ListReportsByUser(r.Context(), userID)
		if err != nil {
			log.Printf("Error listing user reports: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch reports")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    reports,
		})
	}
}

// updateStatusHandler performs one state-machine transition
func updateStatusHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value("claims").(*auth.Claims)
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid report id")
			return
		}
		adminID, err := uuid.Parse(claims.Sub)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid token subject")
			return
		}

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		report, err := app.Lifecycle.SetStatus(r.Context(), id, req.Status, adminID)
		if err != nil {
			respondServiceError(w, err, "Failed to update status")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Report status updated",
			"data":    report,
		})
	}
}

// updateNotesHandler overwrites the admin notes on a report
func updateNotesHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid report id")
			return
		}

		var req struct {
			AdminNotes string `json:"adminNotes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		report, err := app.Lifecycle.SetAdminNotes(r.Context(), id, req.AdminNotes)
		if err != nil {
			respondServiceError(w, err, "Failed to update notes")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Admin notes updated",
			"data":    report,
		})
	}
}

// deleteReportHandler removes a report (owner or admin)
func deleteReportHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value("claims").(*auth.Claims)
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid report id")
			return
		}
		actorID, err := uuid.Parse(claims.Sub)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid token subject")
			return
		}

		if err := app.Lifecycle.DeleteReport(r.Context(), id, actorID, claims.Role); err != nil {
			respondServiceError(w, err, "Failed to delete report")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Report deleted successfully",
		})
	}
}

// dashboardStatsHandler returns public dashboard counters
func dashboardStatsHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := app.Store.GetDashboardStats(r.Context())
		if err != nil {
			log.Printf("Error fetching dashboard stats: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch stats")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    stats,
		})
	}
}

// currentUser resolves the authenticated user from request claims.
func currentUser(app *App, r *http.Request) (*domain.User, error) {
	claims := r.Context().Value("claims").(*auth.Claims)
	id, err := uuid.Parse(claims.Sub)
	if err != nil {
		return nil, err
	}
	return app.Store.GetUser(r.Context(), id)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// respondServiceError maps lifecycle/store errors onto the HTTP taxonomy.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, verr.Message)
	case lifecycle.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, lifecycle.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "You are not allowed to perform this action")
	default:
		log.Printf("Internal error: %v", err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

// respondWithJSON writes JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes error JSON response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
