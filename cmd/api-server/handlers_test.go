package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviwa-server/internal/auth"
	"reviwa-server/internal/domain"
)

func newTestApp() *App {
	app := &App{Router: mux.NewRouter()}
	setupRoutes(app)
	return app
}

func doRequest(t *testing.T, app *App, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	app.Router.ServeHTTP(rr, req)
	return rr
}

func TestUpdateProfileRequiresAuth(t *testing.T) {
	app := newTestApp()

	rr := doRequest(t, app, "PATCH", "/api/users/"+uuid.New().String(), "", `{"name":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpdateProfileSelfOnly(t *testing.T) {
	app := newTestApp()
	token, err := auth.GenerateToken(uuid.New().String(), domain.RoleUser)
	require.NoError(t, err)

	rr := doRequest(t, app, "PATCH", "/api/users/"+uuid.New().String(), token, `{"name":"New Name"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestUpdateProfileInvalidID(t *testing.T) {
	app := newTestApp()
	token, err := auth.GenerateToken(uuid.New().String(), domain.RoleUser)
	require.NoError(t, err)

	rr := doRequest(t, app, "PATCH", "/api/users/not-a-uuid", token, `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateProfileRejectsEmptyName(t *testing.T) {
	app := newTestApp()
	userID := uuid.New().String()
	token, err := auth.GenerateToken(userID, domain.RoleUser)
	require.NoError(t, err)

	// HTML-only input sanitizes down to nothing and is rejected before any
	// store access.
	rr := doRequest(t, app, "PATCH", "/api/users/"+userID, token, `{"name":"<img src=x>"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
