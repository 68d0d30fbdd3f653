package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is the authorization level stored on a user profile.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole normalizes a stored role name. An empty value is treated as RoleUser.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.TrimSpace(strings.ToLower(raw))); r {
	case "":
		return RoleUser, nil
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// IsElevated reports whether the role is above an ordinary user.
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// RoleInfo is the outcome of a role lookup.
type RoleInfo struct {
	Role       Role
	IsElevated bool
}

// InfoFor builds the RoleInfo for a known role.
func InfoFor(r Role) RoleInfo {
	return RoleInfo{Role: r, IsElevated: r.IsElevated()}
}

// RoleLookup fetches the role of an identity from user profile storage.
type RoleLookup interface {
	FetchRole(ctx context.Context, userID string) (RoleInfo, error)
}

// RoleLookupFunc adapts a function to RoleLookup.
type RoleLookupFunc func(ctx context.Context, userID string) (RoleInfo, error)

func (f RoleLookupFunc) FetchRole(ctx context.Context, userID string) (RoleInfo, error) {
	return f(ctx, userID)
}

// StaticRoles is a RoleLookup backed by a fixed map. Unknown users are reported as missing.
type StaticRoles map[string]Role

func (m StaticRoles) FetchRole(ctx context.Context, userID string) (RoleInfo, error) {
	if err := ctx.Err(); err != nil {
		return RoleInfo{}, err
	}
	r, ok := m[userID]
	if !ok {
		return RoleInfo{}, ErrProfileMissing
	}
	return InfoFor(r), nil
}
