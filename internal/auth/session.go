package auth

import (
	"context"
	"sync"
	"time"
)

// Session is the authenticated identity known to the client.
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the session has an expiry that is not after now.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionProvider exposes the current session. CurrentSession returns (nil, nil) when
// nobody is signed in.
type SessionProvider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	OnSessionChange(fn func(*Session)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// RevokeFunc invalidates a session with the identity backend during sign out.
type RevokeFunc func(ctx context.Context, s *Session) error

// LocalSessions keeps the current session in memory and notifies subscribers on change.
type LocalSessions struct {
	mu        sync.Mutex
	current   *Session
	listeners map[int]func(*Session)
	next      int
	revoke    RevokeFunc
	now       func() time.Time
}

// LocalOption configures LocalSessions.
type LocalOption func(*LocalSessions)

// WithRevoke sets the backend call made by SignOut.
func WithRevoke(fn RevokeFunc) LocalOption {
	return func(l *LocalSessions) { l.revoke = fn }
}

// WithSessionClock overrides the time source used to detect expired sessions.
func WithSessionClock(fn func() time.Time) LocalOption {
	return func(l *LocalSessions) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLocalSessions constructs an empty session holder.
func NewLocalSessions(opts ...LocalOption) *LocalSessions {
	l := &LocalSessions{
		listeners: make(map[int]func(*Session)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ SessionProvider = (*LocalSessions)(nil)

// CurrentSession returns a copy of the held session, or nil when absent or expired.
func (l *LocalSessions) CurrentSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil || l.current.Expired(l.now()) {
		return nil, nil
	}
	s := *l.current
	return &s, nil
}

// SetSession replaces the held session (nil signs out locally) and notifies subscribers.
func (l *LocalSessions) SetSession(s *Session) {
	l.mu.Lock()
	if s != nil {
		cp := *s
		s = &cp
	}
	l.current = s
	fns := l.snapshotListeners()
	l.mu.Unlock()
	notify(fns, s)
}

// OnSessionChange registers fn for session changes.
func (l *LocalSessions) OnSessionChange(fn func(*Session)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.next
	l.next++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// SignOut revokes the session with the backend, then drops it locally. Local state is
// cleared even when revocation fails; the revocation error is returned.
func (l *LocalSessions) SignOut(ctx context.Context) error {
	l.mu.Lock()
	current := l.current
	l.mu.Unlock()

	var err error
	if l.revoke != nil && current != nil {
		err = l.revoke(ctx, current)
	}
	l.SetSession(nil)
	return err
}

func (l *LocalSessions) snapshotListeners() []func(*Session) {
	fns := make([]func(*Session), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(*Session), s *Session) {
	for _, fn := range fns {
		var arg *Session
		if s != nil {
			cp := *s
			arg = &cp
		}
		fn(arg)
	}
}

// ContextSessions reads the session attached to a request context. It serves hosts where
// every request carries its own credentials, so there is nothing to subscribe to or sign out.
type ContextSessions struct{}

var _ SessionProvider = ContextSessions{}

func (ContextSessions) CurrentSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := SessionFromContext(ctx)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (ContextSessions) OnSessionChange(func(*Session)) func() { return func() {} }

func (ContextSessions) SignOut(context.Context) error { return nil }
