package httpapi

import (
	"net/http"
	"strings"
	"time"

	"photocloud.io/internal/audit"
	"photocloud.io/internal/guard"
)

type tokenRequest struct {
	User  string `json:"user"`
	Email string `json:"email"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type navigateResponse struct {
	Decision    string `json:"decision"`
	Location    string `json:"location"`
	Route       string `json:"route,omitempty"`
	Requirement string `json:"requirement"`
	Known       bool   `json:"known"`
}

// handleAuthToken mints a session token for local development. Production sessions come
// from the identity backend.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.devTokens || a.tokens == nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}

	token, expiresAt, err := a.tokens.Issue(user, strings.TrimSpace(req.Email), a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventTokenIssued, map[string]any{
		"user":       user,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// handleLogout drops the caller's cached permission results. Bearer tokens are stateless
// and stay valid until they expire.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.guard.Logout(r.Context()); err != nil {
		writeError(w, r, http.StatusInternalServerError, "sign out failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, r, http.StatusBadRequest, "path is required")
		return
	}
	d, err := a.guard.Evaluate(r.Context(), path)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	writeJSON(w, http.StatusOK, navigateBody(d))
}

func navigateBody(d guard.Decision) navigateResponse {
	return navigateResponse{
		Decision:    d.Outcome.String(),
		Location:    d.Location,
		Route:       d.Match.Route.Name,
		Requirement: d.Match.Route.Requirement.String(),
		Known:       d.Match.Known,
	}
}
