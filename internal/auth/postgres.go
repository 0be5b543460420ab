package auth

import (
	"context"
	"database/sql"
	"time"

	"authgate.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Credentials(context.Context) CredentialStore { return &credentialStore{db: s.db} }
func (s *PGStore) Users(context.Context) UserStore             { return &userStore{db: s.db} }
func (s *PGStore) Settings(context.Context) SettingsStore      { return &settingsStore{db: s.db} }

// Credential store ---------------------------------------------------------
type credentialStore struct{ db *sql.DB }

func (s *credentialStore) FindCredential(ctx context.Context, username string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select username, password_hash from users where username=$1`, username)
	var cred Credential
	if err := row.Scan(&cred.Username, &cred.PasswordHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	authorities, err := listAuthorities(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	cred.Authorities = authorities
	return &cred, nil
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User, passwordHash string) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into users(id, username, password_hash) values($1,$2,$3)`,
		u.ID, u.Username, passwordHash,
	); err != nil {
		return err
	}
	for _, authority := range u.Authorities {
		if _, err := tx.ExecContext(ctx,
			`insert into user_authorities(username, authority) values($1,$2)`,
			u.Username, authority,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *userStore) Find(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, created_at, updated_at from users where username=$1`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	authorities, err := listAuthorities(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	u.Authorities = authorities
	return &u, nil
}

func (s *userStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where username=$1`,
		username, passwordHash,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetAuthorities(ctx context.Context, username string, authorities []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from user_authorities where username=$1`, username,
	); err != nil {
		return err
	}
	for _, authority := range authorities {
		if _, err := tx.ExecContext(ctx,
			`insert into user_authorities(username, authority) values($1,$2)`,
			username, authority,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *userStore) Delete(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where username=$1`, username)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Settings store -----------------------------------------------------------
type settingsStore struct{ db *sql.DB }

func (s *settingsStore) FindSettings(ctx context.Context, username string) (*UserTokenSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`select username, access_token_expiration_ms, refresh_token_expiration_ms, refresh_enabled
		 from user_auth_settings where username=$1`, username)
	var (
		settings  UserTokenSettings
		accessMs  sql.NullInt64
		refreshMs sql.NullInt64
	)
	if err := row.Scan(&settings.Username, &accessMs, &refreshMs, &settings.RefreshEnabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if accessMs.Valid {
		d := time.Duration(accessMs.Int64) * time.Millisecond
		settings.AccessTokenLifetime = &d
	}
	if refreshMs.Valid {
		d := time.Duration(refreshMs.Int64) * time.Millisecond
		settings.RefreshTokenLifetime = &d
	}
	return &settings, nil
}

func (s *settingsStore) SaveSettings(ctx context.Context, settings *UserTokenSettings) error {
	var accessMs, refreshMs sql.NullInt64
	if settings.AccessTokenLifetime != nil {
		accessMs = sql.NullInt64{Int64: settings.AccessTokenLifetime.Milliseconds(), Valid: true}
	}
	if settings.RefreshTokenLifetime != nil {
		refreshMs = sql.NullInt64{Int64: settings.RefreshTokenLifetime.Milliseconds(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`insert into user_auth_settings(username, access_token_expiration_ms, refresh_token_expiration_ms, refresh_enabled)
		 values($1,$2,$3,$4)
		 on conflict (username) do update set
		   access_token_expiration_ms=excluded.access_token_expiration_ms,
		   refresh_token_expiration_ms=excluded.refresh_token_expiration_ms,
		   refresh_enabled=excluded.refresh_enabled`,
		settings.Username, accessMs, refreshMs, settings.RefreshEnabled,
	)
	return err
}

func listAuthorities(ctx context.Context, db *sql.DB, username string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`select authority from user_authorities where username=$1 order by authority`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authorities []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		authorities = append(authorities, a)
	}
	return authorities, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
