package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authgate.org/internal/ids"
)

// TokenClaims is the decoded JWT payload. Authorities are only present on
// access tokens; the refresh flag only on refresh tokens.
type TokenClaims struct {
	Authorities []string `json:"authorities,omitempty"`
	Refresh     bool     `json:"refresh,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec builds and verifies signed tokens. It is stateless per call:
// both directions depend only on the algorithm, the issuer and the clock.
type TokenCodec struct {
	alg    Algorithm
	issuer string
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec constructs a codec for the given algorithm and issuer.
func NewTokenCodec(alg Algorithm, issuer string, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		alg:    alg,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildAccessToken signs an access token carrying the authorities verbatim:
// order is preserved and duplicates are kept, deduplication is the caller's
// responsibility.
func (c *TokenCodec) BuildAccessToken(username string, lifetime time.Duration, authorities []string) (string, error) {
	claims := TokenClaims{
		Authorities:      authorities,
		RegisteredClaims: c.baseClaims(username, lifetime),
	}
	return jwt.NewWithClaims(c.alg.method, claims).SignedString(c.alg.signKey)
}

// BuildRefreshToken signs a refresh token. It carries the refresh claim and
// no authorities.
func (c *TokenCodec) BuildRefreshToken(username string, lifetime time.Duration) (string, error) {
	claims := TokenClaims{
		Refresh:          true,
		RegisteredClaims: c.baseClaims(username, lifetime),
	}
	return jwt.NewWithClaims(c.alg.method, claims).SignedString(c.alg.signKey)
}

func (c *TokenCodec) baseClaims(username string, lifetime time.Duration) jwt.RegisteredClaims {
	now := c.now().UTC()
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		ID:        ids.New(),
	}
}

// VerifyToken checks signature, issuer and expiry and extracts the subject
// and authorities. A token with no authorities claim yields an empty list,
// never nil. Every failure collapses to ErrInvalidCredentials.
func (c *TokenCodec) VerifyToken(token string) (AuthenticatedUser, error) {
	claims, err := c.decode(token)
	if err != nil {
		return AuthenticatedUser{}, err
	}
	authorities := claims.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	return AuthenticatedUser{
		Username:    claims.Subject,
		Authorities: authorities,
	}, nil
}

// VerifyRefreshToken runs the same checks as VerifyToken and additionally
// requires the refresh claim. It returns the subject username.
func (c *TokenCodec) VerifyRefreshToken(token string) (string, error) {
	claims, err := c.decode(token)
	if err != nil {
		return "", err
	}
	if !claims.Refresh {
		return "", ErrNotRefreshToken
	}
	return claims.Subject, nil
}

func (c *TokenCodec) decode(token string) (*TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCredentials
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.alg.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	parsed, err := parser.ParseWithClaims(token, &TokenClaims{}, func(*jwt.Token) (any, error) {
		return c.alg.verifyKey, nil
	})
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredentials
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
