package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photocloud.io/internal/share"
)

var _ share.Store = (*Store)(nil)

const shareColumns = `id, token, resource_id, owner_id, coalesce(password_hash, ''), expires_at, max_downloads, download_count, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (share.Record, error) {
	var (
		rec          share.Record
		expiresAt    sql.NullTime
		maxDownloads sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.Token, &rec.ResourceID, &rec.OwnerID, &rec.PasswordHash,
		&expiresAt, &maxDownloads, &rec.DownloadCount, &rec.IsActive, &rec.CreatedAt); err != nil {
		return share.Record{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		rec.ExpiresAt = &t
	}
	if maxDownloads.Valid {
		n := int(maxDownloads.Int64)
		rec.MaxDownloads = &n
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (s *Store) queryShare(ctx context.Context, query string, args ...any) (share.Record, error) {
	if s.db == nil {
		return share.Record{}, errNoDB
	}
	rec, err := scanShare(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return share.Record{}, share.ErrNotFound
	}
	return rec, err
}

func (s *Store) FindActiveByToken(ctx context.Context, token string) (share.Record, error) {
	return s.queryShare(ctx, `select `+shareColumns+` from file_shares where token = $1 and is_active`, token)
}

func (s *Store) Get(ctx context.Context, id string) (share.Record, error) {
	return s.queryShare(ctx, `select `+shareColumns+` from file_shares where id = $1`, id)
}

func (s *Store) Create(ctx context.Context, r share.Record) (share.Record, error) {
	if s.db == nil {
		return share.Record{}, errNoDB
	}
	var maxDownloads any
	if r.MaxDownloads != nil {
		maxDownloads = *r.MaxDownloads
	}
	var expiresAt any
	if r.ExpiresAt != nil {
		expiresAt = r.ExpiresAt.UTC()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into file_shares (id, token, resource_id, owner_id, password_hash, expires_at, max_downloads, download_count, is_active, created_at)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $7, $8, $9, $10)
	`, r.ID, r.Token, r.ResourceID, r.OwnerID, r.PasswordHash, expiresAt, maxDownloads, r.DownloadCount, r.IsActive, r.CreatedAt)
	if err != nil {
		if isPgCode(err, pgErrUniqueViolation) {
			return share.Record{}, share.ErrConflict
		}
		return share.Record{}, fmt.Errorf("insert share: %w", err)
	}
	return r, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]share.Record, error) {
	return s.listShares(ctx, `select `+shareColumns+` from file_shares where owner_id = $1 order by created_at desc, id desc`, ownerID)
}

func (s *Store) ListByResource(ctx context.Context, resourceID string) ([]share.Record, error) {
	return s.listShares(ctx, `select `+shareColumns+` from file_shares where resource_id = $1 order by created_at desc, id desc`, resourceID)
}

func (s *Store) listShares(ctx context.Context, query string, arg string) ([]share.Record, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []share.Record
	for rows.Next() {
		rec, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) (share.Record, error) {
	return s.queryShare(ctx, `update file_shares set is_active = $2 where id = $1 returning `+shareColumns, id, active)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from file_shares where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return share.ErrNotFound
	}
	return nil
}

func (s *Store) HasAttempt(ctx context.Context, id, attemptID string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var seen bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from share_downloads where share_id = $1 and attempt_id = $2)
	`, id, attemptID).Scan(&seen)
	if err != nil {
		return false, err
	}
	return seen, nil
}

// IncrementDownloadCount records the attempt and bumps the counter in one transaction.
// The update re-checks the limit under the row lock, so concurrent downloads cannot push
// download_count past max_downloads.
func (s *Store) IncrementDownloadCount(ctx context.Context, id, attemptID string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	if attemptID == "" {
		return false, share.ErrAttemptID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotency: a repeated attempt id inserts nothing
	res, err := tx.ExecContext(ctx, `
		insert into share_downloads (share_id, attempt_id)
		values ($1, $2)
		on conflict (share_id, attempt_id) do nothing
	`, id, attemptID)
	if err != nil {
		if isPgCode(err, pgErrForeignKeyViolation) {
			return false, share.ErrNotFound
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		update file_shares set download_count = download_count + 1
		where id = $1 and is_active and (max_downloads is null or download_count < max_downloads)
		returning download_count
	`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		var active bool
		err := tx.QueryRowContext(ctx, `select is_active from file_shares where id = $1`, id).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
			return false, share.ErrNotFound
		}
		if err != nil {
			return false, err
		}
		return false, share.ErrDownloadLimitReached
	}
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
