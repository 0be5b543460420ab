package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	// ErrInvalidCredentials covers every authentication failure visible to a
	// caller: unknown user, wrong password, expired/forged/malformed token.
	// The reasons are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotRefreshToken indicates a token that verified but does not carry
	// the refresh claim.
	ErrNotRefreshToken = errors.New("not a refresh token")

	// ErrDependency marks a collaborator failure (storage unavailable etc).
	// The core never retries; retry policy belongs to the calling layer.
	ErrDependency = errors.New("auth: dependency failure")

	// ErrConfig marks an invalid configuration detected at startup.
	ErrConfig = errors.New("auth: invalid configuration")
)
