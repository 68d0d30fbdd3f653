package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/share"
)

var shareCols = []string{"id", "token", "resource_id", "owner_id", "password_hash", "expires_at", "max_downloads", "download_count", "is_active", "created_at"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestFindActiveByToken(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	expires := created.Add(48 * time.Hour)
	mock.ExpectQuery("select (.+) from file_shares where token").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("s1", "tok", "file-1", "u1", "", expires, int64(3), int64(1), true, created))

	rec, err := s.FindActiveByToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.ID != "s1" || rec.ResourceID != "file-1" || rec.DownloadCount != 1 || !rec.IsActive {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.MaxDownloads == nil || *rec.MaxDownloads != 3 {
		t.Fatalf("max downloads not scanned: %v", rec.MaxDownloads)
	}
	if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(expires) {
		t.Fatalf("expiry not scanned: %v", rec.ExpiresAt)
	}
	if rec.PasswordProtected() {
		t.Fatal("empty hash means no password")
	}
}

func TestFindActiveByTokenMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select (.+) from file_shares where token").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	if _, err := s.FindActiveByToken(context.Background(), "nope"); !errors.Is(err, share.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into file_shares").
		WithArgs("s1", "tok", "file-1", "u1", "", nil, nil, 0, true, sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	_, err := s.Create(context.Background(), share.Record{ID: "s1", Token: "tok", ResourceID: "file-1", OwnerID: "u1", IsActive: true})
	if !errors.Is(err, share.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	s, mock := newMock(t)
	limit := 2
	mock.ExpectExec("insert into file_shares").
		WithArgs("s1", "tok", "file-1", "u1", "hash", nil, 2, 0, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rec, err := s.Create(context.Background(), share.Record{
		ID: "s1", Token: "tok", ResourceID: "file-1", OwnerID: "u1",
		PasswordHash: "hash", MaxDownloads: &limit, IsActive: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("created_at should be filled")
	}
}

func TestListByOwner(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select (.+) from file_shares where owner_id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("s2", "t2", "file-2", "u1", "h", nil, nil, int64(0), false, now).
			AddRow("s1", "t1", "file-1", "u1", "", nil, nil, int64(4), true, now))
	list, err := s.ListByOwner(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" || !list[0].PasswordProtected() || list[1].DownloadCount != 4 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestSetActive(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("update file_shares set is_active").
		WithArgs("s1", false).
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("s1", "tok", "file-1", "u1", "", nil, nil, int64(0), false, time.Now()))
	rec, err := s.SetActive(context.Background(), "s1", false)
	if err != nil || rec.IsActive {
		t.Fatalf("set active: %+v err=%v", rec, err)
	}
}

func TestDeleteMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from file_shares").WithArgs("s9").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.Delete(context.Background(), "s9"); !errors.Is(err, share.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementDownloadCount(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into share_downloads").WithArgs("s1", "a1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("update file_shares set download_count").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"download_count"}).AddRow(int64(1)))
	mock.ExpectCommit()

	counted, err := s.IncrementDownloadCount(context.Background(), "s1", "a1")
	if err != nil || !counted {
		t.Fatalf("expected counted, got %v err=%v", counted, err)
	}
}

func TestIncrementDownloadCountDuplicateAttempt(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into share_downloads").WithArgs("s1", "a1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	counted, err := s.IncrementDownloadCount(context.Background(), "s1", "a1")
	if err != nil || counted {
		t.Fatalf("duplicate attempt must not count, got %v err=%v", counted, err)
	}
}

func TestIncrementDownloadCountLimitReached(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into share_downloads").WithArgs("s1", "a2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("update file_shares set download_count").WithArgs("s1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select is_active from file_shares").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectRollback()

	if _, err := s.IncrementDownloadCount(context.Background(), "s1", "a2"); !errors.Is(err, share.ErrDownloadLimitReached) {
		t.Fatalf("expected ErrDownloadLimitReached, got %v", err)
	}
}

func TestIncrementDownloadCountMissingShare(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into share_downloads").WithArgs("gone", "a1").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	if _, err := s.IncrementDownloadCount(context.Background(), "gone", "a1"); !errors.Is(err, share.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHasAttempt(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select exists\\(select 1 from share_downloads").WithArgs("s1", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("select exists\\(select 1 from share_downloads").WithArgs("s1", "a2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	seen, err := s.HasAttempt(context.Background(), "s1", "a1")
	if err != nil || !seen {
		t.Fatalf("expected recorded attempt, got %v err=%v", seen, err)
	}
	seen, err = s.HasAttempt(context.Background(), "s1", "a2")
	if err != nil || seen {
		t.Fatalf("expected unknown attempt, got %v err=%v", seen, err)
	}
}

func TestFetchRole(t *testing.T) {
	s, mock := newMock(t)
	roles := s.Roles()

	mock.ExpectQuery("select role from user_profiles").WithArgs("boss").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("super_admin"))
	info, err := roles.FetchRole(context.Background(), "boss")
	if err != nil || !info.IsElevated || info.Role != auth.RoleSuperAdmin {
		t.Fatalf("unexpected info %+v err=%v", info, err)
	}

	mock.ExpectQuery("select role from user_profiles").WithArgs("plain").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(nil))
	info, err = roles.FetchRole(context.Background(), "plain")
	if err != nil || info.IsElevated {
		t.Fatalf("null role should be an ordinary user, got %+v err=%v", info, err)
	}

	mock.ExpectQuery("select role from user_profiles").WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	if _, err := roles.FetchRole(context.Background(), "ghost"); !errors.Is(err, auth.ErrProfileMissing) {
		t.Fatalf("expected ErrProfileMissing, got %v", err)
	}

	mock.ExpectQuery("select role from user_profiles").WithArgs("odd").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("wizard"))
	if _, err := roles.FetchRole(context.Background(), "odd"); !errors.Is(err, auth.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestSetRole(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into user_profiles").WithArgs("u1", "admin").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.Roles().SetRole(context.Background(), "u1", auth.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := s.Roles().SetRole(context.Background(), "u1", auth.Role("wizard")); !errors.Is(err, auth.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}
