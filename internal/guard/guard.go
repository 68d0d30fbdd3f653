// Package guard decides whether a navigation may proceed for the current session.
package guard

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/singleflight"

	"photocloud.io/internal/audit"
	"photocloud.io/internal/auth"
	"photocloud.io/internal/obs"
	"photocloud.io/internal/permcache"
)

// maxLookupAttempts bounds how often a navigation retries a shared role lookup whose
// leader was cancelled.
const maxLookupAttempts = 3

// Guard evaluates navigations against a route table. Role lookups are memoized in a
// permission cache owned by the caller.
type Guard struct {
	sessions    auth.SessionProvider
	roles       auth.RoleLookup
	cache       *permcache.Cache
	routes      *Table
	loginPath   string
	defaultPath string
	flight      singleflight.Group
	// perRequest is set when every request carries its own session, so one cache serves
	// many identities.
	perRequest bool
}

// Option configures Guard.
type Option func(*Guard)

// WithRoutes replaces DefaultRoutes.
func WithRoutes(t *Table) Option {
	return func(g *Guard) {
		if t != nil {
			g.routes = t
		}
	}
}

// WithRedirects overrides the login and default redirect targets.
func WithRedirects(login, fallback string) Option {
	return func(g *Guard) {
		if login != "" {
			g.loginPath = login
		}
		if fallback != "" {
			g.defaultPath = fallback
		}
	}
}

// New builds a guard. A nil cache gets a fresh one with default TTL.
func New(sessions auth.SessionProvider, roles auth.RoleLookup, cache *permcache.Cache, opts ...Option) *Guard {
	if cache == nil {
		cache = permcache.New()
	}
	g := &Guard{
		sessions:    sessions,
		roles:       roles,
		cache:       cache,
		routes:      DefaultRoutes(),
		loginPath:   LoginPath,
		defaultPath: DefaultPath,
	}
	switch sessions.(type) {
	case auth.ContextSessions, *auth.ContextSessions:
		g.perRequest = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Cache returns the permission cache the guard reads and writes.
func (g *Guard) Cache() *permcache.Cache { return g.cache }

// Routes returns the route table in use.
func (g *Guard) Routes() *Table { return g.routes }

// Evaluate decides the navigation to path. Failures of the session provider or the role
// lookup deny access; the only error returned is the context's when ctx ends first.
func (g *Guard) Evaluate(ctx context.Context, path string) (Decision, error) {
	m := g.routes.Resolve(path)
	d, err := g.decide(ctx, m)
	if err != nil {
		return Decision{}, err
	}
	obs.ObserveGuardDecision(d.Outcome.String())
	return d, nil
}

func (g *Guard) decide(ctx context.Context, m Match) (Decision, error) {
	session, err := g.currentSession(ctx)
	if err != nil {
		return Decision{}, err
	}

	switch m.Route.Requirement {
	case RequirePublic:
		if session != nil && m.Path == g.loginPath {
			return g.redirect(RedirectToDefault, m), nil
		}
		return g.allow(m), nil
	case RequireSession:
		if session == nil {
			return g.redirect(RedirectToLogin, m), nil
		}
		return g.allow(m), nil
	case RequireElevated:
		if session == nil {
			return g.redirect(RedirectToLogin, m), nil
		}
		elevated, err := g.isElevated(ctx, session.UserID)
		if err != nil {
			return Decision{}, err
		}
		if !elevated {
			return g.redirect(RedirectToDefault, m), nil
		}
		return g.allow(m), nil
	default:
		return g.redirect(RedirectToLogin, m), nil
	}
}

// currentSession treats provider failures as "no session".
func (g *Guard) currentSession(ctx context.Context) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := g.sessions.CurrentSession(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		obs.LogEvent("warn", "session lookup failed", map[string]any{"error": err.Error()})
		return nil, nil
	}
	if s == nil || s.UserID == "" {
		return nil, nil
	}
	return s, nil
}

func (g *Guard) isElevated(ctx context.Context, userID string) (bool, error) {
	key := permcache.Key(userID, permcache.KindElevatedRole)
	if e, ok := g.cache.Get(key); ok {
		obs.ObservePermissionCache(true)
		return e.Result, nil
	}
	obs.ObservePermissionCache(false)

	for attempt := 0; attempt < maxLookupAttempts; attempt++ {
		epoch := g.cache.Epoch(userID)
		v, err, _ := g.flight.Do(key+"@"+strconv.FormatUint(epoch, 10), func() (any, error) {
			return g.lookup(ctx, epoch, key, userID)
		})
		if err == nil {
			return v.(bool), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if !isContextErr(err) {
			return false, nil
		}
		// joined a lookup whose caller went away; ours is still live
	}
	return false, nil
}

// lookup runs inside the singleflight call for key. A result already cached by a call that
// finished just before this one is reused.
func (g *Guard) lookup(ctx context.Context, epoch uint64, key, userID string) (bool, error) {
	if e, ok := g.cache.Get(key); ok {
		return e.Result, nil
	}
	info, err := g.roles.FetchRole(ctx, userID)
	fetchedAt := g.cache.Now()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		obs.ObserveRoleLookup("error")
		obs.LogEvent("warn", "role lookup failed, denying", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		g.cache.SetIfEpoch(epoch, key, false, fetchedAt)
		return false, nil
	}
	if info.IsElevated {
		obs.ObserveRoleLookup("elevated")
	} else {
		obs.ObserveRoleLookup("not_elevated")
	}
	g.cache.SetIfEpoch(epoch, key, info.IsElevated, fetchedAt)
	return info.IsElevated, nil
}

// Logout drops cached permission results and then signs the session out. A guard fed by
// per-request sessions forgets only the caller's entries; otherwise the whole cache is
// cleared. Entries are dropped even when sign out fails.
func (g *Guard) Logout(ctx context.Context) error {
	fields := map[string]any{}
	var identity string
	if s, err := g.sessions.CurrentSession(ctx); err == nil && s != nil {
		identity = s.UserID
		fields["identity"] = identity
	}
	switch {
	case !g.perRequest:
		g.cache.Clear()
	case identity != "":
		g.cache.Forget(identity)
	}
	err := g.sessions.SignOut(ctx)
	if err != nil {
		fields["error"] = err.Error()
	}
	_ = audit.LogEvent(ctx, audit.EventLogout, fields)
	return err
}

func (g *Guard) allow(m Match) Decision {
	return Decision{Outcome: Allow, Location: m.Path, Match: m}
}

func (g *Guard) redirect(o Outcome, m Match) Decision {
	loc := g.defaultPath
	if o == RedirectToLogin {
		loc = g.loginPath
	}
	return Decision{Outcome: o, Location: loc, Match: m}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
