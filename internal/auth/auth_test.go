package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenIssueAndParse(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer("test-secret", WithIssuer("test-issuer"), WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, exp, err := issuer.Issue("user-42", "User@Example.com", 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", exp)
	}
	s, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.UserID != "user-42" || s.Email != "user@example.com" {
		t.Fatalf("unexpected session: %+v", s)
	}

	other, _ := NewTokenIssuer("other-secret", WithIssuer("test-issuer"), WithTokenClock(func() time.Time { return now }))
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}

	later, _ := NewTokenIssuer("test-secret", WithIssuer("test-issuer"), WithTokenClock(func() time.Time { return now.Add(time.Hour) }))
	if _, err := later.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenIssuerValidation(t *testing.T) {
	if _, err := NewTokenIssuer("  "); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	issuer, _ := NewTokenIssuer("secret")
	if _, _, err := issuer.Issue("", "", time.Minute); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, _, err := issuer.Issue("u1", "", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for ttl, got %v", err)
	}
	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in       string
		want     Role
		elevated bool
		err      bool
	}{
		{"", RoleUser, false, false},
		{"user", RoleUser, false, false},
		{" Admin ", RoleAdmin, true, false},
		{"super_admin", RoleSuperAdmin, true, false},
		{"owner", "", false, true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.err {
			if !errors.Is(err, ErrUnknownRole) {
				t.Fatalf("ParseRole(%q): expected ErrUnknownRole, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", tc.in, err)
		}
		if got != tc.want || got.IsElevated() != tc.elevated {
			t.Fatalf("ParseRole(%q)=%q elevated=%v", tc.in, got, got.IsElevated())
		}
	}
}

func TestStaticRoles(t *testing.T) {
	roles := StaticRoles{"a": RoleAdmin, "u": RoleUser}
	info, err := roles.FetchRole(context.Background(), "a")
	if err != nil || !info.IsElevated {
		t.Fatalf("expected elevated admin, got %+v err=%v", info, err)
	}
	if _, err := roles.FetchRole(context.Background(), "missing"); !errors.Is(err, ErrProfileMissing) {
		t.Fatalf("expected ErrProfileMissing, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrPasswordMatch) {
		t.Fatalf("expected ErrPasswordMatch, got %v", err)
	}
	if _, err := HashPassword(""); !errors.Is(err, ErrPasswordEmpty) {
		t.Fatalf("expected ErrPasswordEmpty, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithSession(context.Background(), Session{UserID: "user-7"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatalf("expected no user in empty context")
	}
	ctx = ContextWithToken(ctx, "tok")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "tok" {
		t.Fatalf("unexpected token: %q", tok)
	}
}
