package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/guard"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type access int

const (
	accessSession access = iota
	accessPublic
	accessOptional
)

var publicPaths = map[string]bool{
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
	"/v1/info":       true,
	"/v1/auth/token": true,
}

// classify decides whether a request needs a bearer token. Share resolution and
// download recording are anonymous; owner operations on /v1/shares/{id} are not.
func classify(r *http.Request) access {
	path := r.URL.Path
	if publicPaths[path] {
		return accessPublic
	}
	if path == "/v1/navigate" {
		return accessOptional
	}
	if strings.HasPrefix(path, "/v1/shares/") {
		if r.Method == http.MethodGet {
			return accessPublic
		}
		if r.Method == http.MethodPost && strings.HasSuffix(path, "/downloads") {
			return accessPublic
		}
	}
	return accessSession
}

// publicShareKey rate limits anonymous share traffic by client IP.
func publicShareKey(r *http.Request) string {
	if classify(r) != accessPublic {
		return ""
	}
	return "share:" + ipKey(r)
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		mode := classify(r)
		if mode == accessPublic {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(authHeader)
		if mode == accessOptional && strings.TrimSpace(header) == "" {
			next.ServeHTTP(w, r)
			return
		}
		if a.tokens == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		session, err := a.tokens.Parse(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithSession(r.Context(), session)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireElevated admits requests whose session may open the admin area, using the
// guard's cached role check.
func (a *API) requireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := a.guard.Evaluate(r.Context(), "/admin")
		if err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
			return
		}
		if d.Outcome != guard.Allow {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
