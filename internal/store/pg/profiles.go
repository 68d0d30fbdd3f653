package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"photocloud.io/internal/auth"
)

// Roles looks up user roles in the user_profiles table.
type Roles struct {
	db *sql.DB
}

func (s *Store) Roles() *Roles { return &Roles{db: s.db} }

var _ auth.RoleLookup = (*Roles)(nil)

func (r *Roles) FetchRole(ctx context.Context, userID string) (auth.RoleInfo, error) {
	if r.db == nil {
		return auth.RoleInfo{}, errNoDB
	}
	var raw sql.NullString
	err := r.db.QueryRowContext(ctx, `select role from user_profiles where id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RoleInfo{}, auth.ErrProfileMissing
	}
	if err != nil {
		return auth.RoleInfo{}, fmt.Errorf("select role: %w", err)
	}
	role, err := auth.ParseRole(raw.String)
	if err != nil {
		return auth.RoleInfo{}, err
	}
	return auth.InfoFor(role), nil
}

// SetRole upserts the role of a profile.
func (r *Roles) SetRole(ctx context.Context, userID string, role auth.Role) error {
	if r.db == nil {
		return errNoDB
	}
	if _, err := auth.ParseRole(string(role)); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		insert into user_profiles (id, role)
		values ($1, $2)
		on conflict (id) do update set role = excluded.role
	`, userID, string(role))
	return err
}
