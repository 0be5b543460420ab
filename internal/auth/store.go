package auth

import "context"

// Store describes the persistence operations consumed by the auth
// subsystem. Lookups may block; callers must not hold locks around them.
type Store interface {
	Credentials(ctx context.Context) CredentialStore
	Users(ctx context.Context) UserStore
	Settings(ctx context.Context) SettingsStore
}

// CredentialStore resolves a username to its password hash and authorities.
type CredentialStore interface {
	// FindCredential returns ErrNotFound when the username is unknown.
	FindCredential(ctx context.Context, username string) (*Credential, error)
}

// UserStore manages accounts.
type UserStore interface {
	Create(ctx context.Context, u *User, passwordHash string) error
	Find(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	SetAuthorities(ctx context.Context, username string, authorities []string) error
	Delete(ctx context.Context, username string) error
}

// SettingsStore manages per-user token settings.
type SettingsStore interface {
	// FindSettings returns ErrNotFound when the user has no stored
	// settings; callers fall back to the system defaults.
	FindSettings(ctx context.Context, username string) (*UserTokenSettings, error)
	SaveSettings(ctx context.Context, settings *UserTokenSettings) error
}
