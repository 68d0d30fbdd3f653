package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/share"
)

type memRoles map[string]auth.Role

func (m memRoles) SetRole(_ context.Context, userID string, role auth.Role) error {
	m[userID] = role
	return nil
}

func execute(t *testing.T, a *app, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	a.out = &out
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("sharectl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestCreateListResolve(t *testing.T) {
	a := &app{store: share.NewInMemory()}

	out := execute(t, a, "create", "--owner", "u1", "--resource", "photo-1", "--max-downloads", "2", "--json")
	var rec share.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode create output: %v (%s)", err, out)
	}
	if rec.OwnerID != "u1" || rec.Token == "" || rec.MaxDownloads == nil || *rec.MaxDownloads != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	out = execute(t, a, "list", "--owner", "u1")
	if !strings.Contains(out, rec.ID) || !strings.Contains(out, "0/2") {
		t.Fatalf("unexpected list output: %s", out)
	}

	out = execute(t, a, "resolve", rec.Token)
	if strings.TrimSpace(out) != "granted: photo-1" {
		t.Fatalf("unexpected resolve output: %q", out)
	}

	execute(t, a, "revoke", "--owner", "u1", rec.ID)
	out = execute(t, a, "resolve", rec.Token)
	if strings.TrimSpace(out) != "denied: not_found" {
		t.Fatalf("expected revoked share to be denied, got %q", out)
	}

	execute(t, a, "activate", "--owner", "u1", rec.ID)
	execute(t, a, "delete", "--owner", "u1", rec.ID)
	out = execute(t, a, "list", "--owner", "u1", "--json")
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty list, got %q", out)
	}
}

func TestRoleCommand(t *testing.T) {
	roles := memRoles{}
	a := &app{store: share.NewInMemory(), roles: roles}

	execute(t, a, "role", "u7", "ADMIN")
	if roles["u7"] != auth.RoleAdmin {
		t.Fatalf("expected admin role, got %q", roles["u7"])
	}

	cmd := newRootCmd(a)
	cmd.SetArgs([]string{"role", "u7", "wizard"})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("PHOTOCLOUD_TOKEN_SECRET", "cli-secret")
	out := execute(t, &app{}, "token", "--user", "u1")

	issuer, err := auth.NewTokenIssuer("cli-secret", auth.WithIssuer("photocloud"))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	s, err := issuer.Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if s.UserID != "u1" {
		t.Fatalf("unexpected subject %q", s.UserID)
	}
}
