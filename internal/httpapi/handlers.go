package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/guard"
	"photocloud.io/internal/obs"
	"photocloud.io/internal/ratelimit"
	"photocloud.io/internal/share"
)

const serviceName = "photocloud-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyCheck pings the backing stores that are configured.
type ReadyCheck struct {
	DB    *sql.DB
	Redis *redis.Client
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Guard     *guard.Guard
	Validator *share.Validator
	Shares    *share.Service
	Tokens    *auth.TokenIssuer
	// ShareLimiter throttles anonymous share resolution per client IP. Nil disables it.
	ShareLimiter *ratelimit.Guarded
	Ready        readinessChecker
	Version      string
	TokenTTL     time.Duration
	DevTokens    bool
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	guard     *guard.Guard
	validator *share.Validator
	shares    *share.Service
	tokens    *auth.TokenIssuer
	limiter   *ratelimit.Guarded
	ready     readinessChecker
	version   string
	tokenTTL  time.Duration
	devTokens bool
	maxBody   int64
}

func New(d Deps) *API {
	a := &API{
		mux:       http.NewServeMux(),
		guard:     d.Guard,
		validator: d.Validator,
		shares:    d.Shares,
		tokens:    d.Tokens,
		limiter:   d.ShareLimiter,
		ready:     d.Ready,
		version:   d.Version,
		tokenTTL:  d.TokenTTL,
		devTokens: d.DevTokens,
		maxBody:   d.MaxBodyBytes,
	}
	if a.ready == nil {
		a.ready = ReadyCheck{}
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = time.Hour
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/navigate", a.handleNavigate)

	a.mux.HandleFunc("/v1/shares", a.handleSharesCollection)
	a.mux.Handle("/v1/shares/", RateLimit(http.HandlerFunc(a.handleShareResource), a.limiter, publicShareKey))
	a.mux.Handle("/v1/admin/resources/", a.requireElevated(http.HandlerFunc(a.handleAdminResourceShares)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
