package auth

import "time"

// TokenTypeBearer is the only token type issued by the service.
const TokenTypeBearer = "bearer"

// Credentials is a transient username/password pair. It is never persisted
// and should be discarded as soon as verification completes.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthenticatedUser is the result of a successful token verification.
type AuthenticatedUser struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

// Token is the wire representation returned by authenticate and refresh.
// Field names must stay snake_case for interop with existing clients.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Credential is the stored view of a user needed to authenticate: the
// password hash and the authorities granted to the account.
type Credential struct {
	Username     string
	PasswordHash string
	Authorities  []string
}

// User represents a stored account.
type User struct {
	ID          string
	Username    string
	Authorities []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserTokenSettings holds per-user token issuance overrides. Nil lifetimes
// mean "use the system default".
type UserTokenSettings struct {
	Username             string
	AccessTokenLifetime  *time.Duration
	RefreshTokenLifetime *time.Duration
	RefreshEnabled       bool
}
