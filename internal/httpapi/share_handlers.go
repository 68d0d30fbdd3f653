package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/share"
)

const (
	sharePasswordHeader = "X-Share-Password"
	idempotencyHeader   = "Idempotency-Key"
)

type createShareRequest struct {
	ResourceID   string     `json:"resource_id"`
	Password     string     `json:"password"`
	ExpiresAt    *time.Time `json:"expires_at"`
	MaxDownloads *int       `json:"max_downloads"`
}

type updateShareRequest struct {
	IsActive *bool `json:"is_active"`
}

// ownerShare is the owner's view of a share, with its public link.
type ownerShare struct {
	share.Record
	PasswordProtected bool   `json:"password_protected"`
	Link              string `json:"link"`
}

// publicShare is what an anonymous visitor sees. It never carries the owner or token.
type publicShare struct {
	ResourceID        string     `json:"resource_id"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	MaxDownloads      *int       `json:"max_downloads,omitempty"`
	DownloadCount     int        `json:"download_count"`
	PasswordProtected bool       `json:"password_protected"`
}

type downloadResponse struct {
	Share   publicShare `json:"share"`
	Counted bool        `json:"counted"`
}

var reasonStatus = map[share.Reason]int{
	share.ReasonNotFound:             http.StatusNotFound,
	share.ReasonExpired:              http.StatusGone,
	share.ReasonDownloadLimitReached: http.StatusForbidden,
	share.ReasonPasswordRequired:     http.StatusUnauthorized,
	share.ReasonPasswordIncorrect:    http.StatusForbidden,
}

func (a *API) handleSharesCollection(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createShareRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := a.shares.Create(r.Context(), owner, share.CreateInput{
			ResourceID:   req.ResourceID,
			Password:     req.Password,
			ExpiresAt:    req.ExpiresAt,
			MaxDownloads: req.MaxDownloads,
		})
		if err != nil {
			a.writeShareError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a.ownerView(rec))
	case http.MethodGet:
		var (
			recs []share.Record
			err  error
		)
		if resource := strings.TrimSpace(r.URL.Query().Get("resource_id")); resource != "" {
			recs, err = a.shares.ListForResource(r.Context(), owner, resource)
		} else {
			recs, err = a.shares.List(r.Context(), owner)
		}
		if err != nil {
			a.writeShareError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shares": a.ownerViews(recs)})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleShareResource serves /v1/shares/{token} (GET, public), /v1/shares/{id}
// (PATCH, DELETE, owner) and /v1/shares/{token}/downloads (POST, public).
func (a *API) handleShareResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/shares/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "downloads" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.handleDownload(w, r, parts[0])
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.handleResolve(w, r, parts[0])
	case http.MethodPatch:
		a.handleUpdateShare(w, r, parts[0])
	case http.MethodDelete:
		a.handleDeleteShare(w, r, parts[0])
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request, token string) {
	rec, err := a.validator.Resolve(r.Context(), token, sharePassword(r))
	if err != nil {
		a.writeShareError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"share": publicView(rec)})
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request, token string) {
	attempt := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if attempt == "" {
		attempt = uuid.NewString()
	}
	w.Header().Set(idempotencyHeader, attempt)

	d, err := a.validator.RecordDownload(r.Context(), token, sharePassword(r), attempt)
	if err != nil {
		a.writeShareError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{
		Share:   publicView(d.Record),
		Counted: d.Counted,
	})
}

func (a *API) handleUpdateShare(w http.ResponseWriter, r *http.Request, id string) {
	owner, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req updateShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.IsActive == nil {
		writeError(w, r, http.StatusBadRequest, "is_active is required")
		return
	}
	rec, err := a.shares.SetActive(r.Context(), owner, id, *req.IsActive)
	if err != nil {
		a.writeShareError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.ownerView(rec))
}

func (a *API) handleDeleteShare(w http.ResponseWriter, r *http.Request, id string) {
	owner, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.shares.Delete(r.Context(), owner, id); err != nil {
		a.writeShareError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminResourceShares serves GET /v1/admin/resources/{id}/shares.
func (a *API) handleAdminResourceShares(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/resources/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "shares" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	recs, err := a.shares.ResourceShares(r.Context(), parts[0])
	if err != nil {
		a.writeShareError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": a.ownerViews(recs)})
}

func (a *API) writeShareError(w http.ResponseWriter, r *http.Request, err error) {
	if reason, ok := share.ReasonOf(err); ok {
		writeJSON(w, reasonStatus[reason], map[string]any{
			"error":      err.Error(),
			"reason":     reason,
			"request_id": RequestIDFromContext(r.Context()),
		})
		return
	}
	switch {
	case errors.Is(err, share.ErrInvalidInput), errors.Is(err, share.ErrAttemptID):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, share.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) ownerView(rec share.Record) ownerShare {
	return ownerShare{
		Record:            rec,
		PasswordProtected: rec.PasswordProtected(),
		Link:              a.shares.Link(rec.Token),
	}
}

func (a *API) ownerViews(recs []share.Record) []ownerShare {
	out := make([]ownerShare, 0, len(recs))
	for _, rec := range recs {
		out = append(out, a.ownerView(rec))
	}
	return out
}

func publicView(rec share.Record) publicShare {
	return publicShare{
		ResourceID:        rec.ResourceID,
		ExpiresAt:         rec.ExpiresAt,
		MaxDownloads:      rec.MaxDownloads,
		DownloadCount:     rec.DownloadCount,
		PasswordProtected: rec.PasswordProtected(),
	}
}

// sharePassword returns nil when the header is absent, so an empty header still counts
// as a supplied (empty) password.
func sharePassword(r *http.Request) *string {
	values, ok := r.Header[http.CanonicalHeaderKey(sharePasswordHeader)]
	if !ok || len(values) == 0 {
		return nil
	}
	pw := values[0]
	return &pw
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"error": msg}
	if r != nil {
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			body["request_id"] = rid
		}
	}
	writeJSON(w, code, body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
