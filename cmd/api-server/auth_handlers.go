package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"reviwa-server/internal/auth"
	"reviwa-server/internal/domain"
	"reviwa-server/internal/store"
)

// registerHandler creates a new account and returns a JWT
func registerHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		name := domain.SanitizeText(req.Name)
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if name == "" || email == "" {
			respondWithError(w, http.StatusBadRequest, "Name and email are required")
			return
		}
		if !strings.Contains(email, "@") {
			respondWithError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		if len(req.Password) < 6 {
			respondWithError(w, http.StatusBadRequest, "Password must be at least 6 characters")
			return
		}

		if _, err := app.Store.GetUserByEmail(r.Context(), email); err == nil {
			respondWithError(w, http.StatusBadRequest, "Email is already registered")
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to create account")
			return
		}

		now := time.Now()
		user := &domain.User{
			ID:           uuid.New(),
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			Role:         domain.RoleUser,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := app.Store.InsertUser(r.Context(), user); err != nil {
			log.Printf("Error inserting user: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create account")
			return
		}

		app.Mailer.SendWelcome(user.Email, user.Name)

		token, err := auth.GenerateToken(user.ID.String(), user.Role)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}

		respondWithJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Account created successfully",
			"data": map[string]interface{}{
				"token": token,
				"user":  user,
			},
		})
	}
}

// loginHandler authenticates users and returns JWT
func loginHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		user, err := app.Store.GetUserByEmail(r.Context(), email)
		if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := auth.GenerateToken(user.ID.String(), user.Role)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"token": token,
				"user":  user,
			},
		})
	}
}

// meHandler returns the authenticated user's profile
func meHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := currentUser(app, r)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Unknown user")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    user,
		})
	}
}

// leaderboardHandler returns the top users by eco-points
func leaderboardHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := app.Store.Leaderboard(r.Context(), queryInt(r, "limit", 10))
		if err != nil {
			log.Printf("Error fetching leaderboard: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch leaderboard")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    users,
		})
	}
}

// updateProfileHandler lets a user edit their own name and avatar
func updateProfileHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value("claims").(*auth.Claims)
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		if claims.Sub != id.String() {
			respondWithError(w, http.StatusForbidden, "You can only edit your own profile")
			return
		}

		var req struct {
			Name   string `json:"name"`
			Avatar string `json:"avatar"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		name := domain.SanitizeText(req.Name)
		if name == "" {
			respondWithError(w, http.StatusBadRequest, "Name is required")
			return
		}

		if err := app.Store.UpdateUserProfile(r.Context(), id, name, strings.TrimSpace(req.Avatar)); err != nil {
			if err == store.ErrNotFound {
				respondWithError(w, http.StatusNotFound, "User not found")
				return
			}
			log.Printf("Error updating profile: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update profile")
			return
		}

		user, err := app.Store.GetUser(r.Context(), id)
		if err != nil {
			log.Printf("Error fetching user after profile update: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch profile")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Profile updated",
			"data":    user,
		})
	}
}

// getUserHandler returns one user's public profile
func getUserHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user id")
			return
		}

		user, err := app.Store.GetUser(r.Context(), id)
		if err == store.ErrNotFound {
			respondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			log.Printf("Error fetching user: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch user")
			return
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    user,
		})
	}
}
