package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
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
	return NewPGStore(db), mock
}

func TestFindCredential(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select username, password_hash from users where username=$1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash"}).
			AddRow("alice", "$2a$10$hash"))
	mock.ExpectQuery(regexp.QuoteMeta(`select authority from user_authorities where username=$1 order by authority`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"authority"}).
			AddRow("users.manage").
			AddRow("users.read"))

	cred, err := store.Credentials(context.Background()).FindCredential(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindCredential: %v", err)
	}
	if cred.PasswordHash != "$2a$10$hash" {
		t.Fatalf("unexpected hash: %s", cred.PasswordHash)
	}
	if len(cred.Authorities) != 2 || cred.Authorities[0] != "users.manage" {
		t.Fatalf("unexpected authorities: %v", cred.Authorities)
	}
}

func TestFindCredentialNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select username, password_hash from users where username=$1`)).
		WithArgs("mallory").
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash"}))

	_, err := store.Credentials(context.Background()).FindCredential(context.Background(), "mallory")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`insert into users(id, username, password_hash) values($1,$2,$3)`)).
		WithArgs(sqlmock.AnyArg(), "alice", "hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`insert into user_authorities(username, authority) values($1,$2)`)).
		WithArgs("alice", "users.read").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := &User{Username: "alice", Authorities: []string{"users.read"}}
	if err := store.Users(context.Background()).Create(context.Background(), u, "hash"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated user id")
	}
}

func TestUpdatePasswordUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`update users set password_hash=$2, updated_at=now() where username=$1`)).
		WithArgs("mallory", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(context.Background()).UpdatePassword(context.Background(), "mallory", "hash")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAuthoritiesReplacesAll(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from user_authorities where username=$1`)).
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`insert into user_authorities(username, authority) values($1,$2)`)).
		WithArgs("alice", "users.manage").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Users(context.Background()).SetAuthorities(context.Background(), "alice", []string{"users.manage"})
	if err != nil {
		t.Fatalf("SetAuthorities: %v", err)
	}
}

func TestFindSettingsNullLifetimes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select username, access_token_expiration_ms`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(
			[]string{"username", "access_token_expiration_ms", "refresh_token_expiration_ms", "refresh_enabled"}).
			AddRow("alice", nil, nil, true))

	settings, err := store.Settings(context.Background()).FindSettings(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindSettings: %v", err)
	}
	if settings.AccessTokenLifetime != nil || settings.RefreshTokenLifetime != nil {
		t.Fatalf("expected nil lifetimes, got %+v", settings)
	}
	if !settings.RefreshEnabled {
		t.Fatal("expected refresh enabled")
	}
}

func TestFindSettingsWithLifetimes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select username, access_token_expiration_ms`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(
			[]string{"username", "access_token_expiration_ms", "refresh_token_expiration_ms", "refresh_enabled"}).
			AddRow("alice", int64(60000), int64(3600000), false))

	settings, err := store.Settings(context.Background()).FindSettings(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindSettings: %v", err)
	}
	if settings.AccessTokenLifetime == nil || *settings.AccessTokenLifetime != time.Minute {
		t.Fatalf("unexpected access lifetime: %v", settings.AccessTokenLifetime)
	}
	if settings.RefreshTokenLifetime == nil || *settings.RefreshTokenLifetime != time.Hour {
		t.Fatalf("unexpected refresh lifetime: %v", settings.RefreshTokenLifetime)
	}
	if settings.RefreshEnabled {
		t.Fatal("expected refresh disabled")
	}
}

func TestSaveSettingsUpsert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`insert into user_auth_settings`).
		WithArgs("alice", int64(60000), nil, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	lifetime := time.Minute
	err := store.Settings(context.Background()).SaveSettings(context.Background(), &UserTokenSettings{
		Username:            "alice",
		AccessTokenLifetime: &lifetime,
		RefreshEnabled:      true,
	})
	if err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
}
