package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier func(hash, password string) error

// Service implements the authenticate / refresh / validate operations. It
// holds no state beyond its collaborators and is safe for concurrent use.
type Service struct {
	store           Store
	codec           *TokenCodec
	verifyPassword  PasswordVerifier
	defaultLifetime time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithPasswordVerifier overrides the password verification collaborator
// (useful for tests).
func WithPasswordVerifier(fn PasswordVerifier) ServiceOption {
	return func(s *Service) error {
		if fn == nil {
			return errors.New("auth: password verifier cannot be nil")
		}
		s.verifyPassword = fn
		return nil
	}
}

// NewService constructs the orchestrator. defaultLifetime is the system
// default token lifetime used when a user has no per-user override.
func NewService(store Store, codec *TokenCodec, defaultLifetime time.Duration, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	if defaultLifetime <= 0 {
		return nil, errors.New("auth: default token lifetime must be positive")
	}
	svc := &Service{
		store:           store,
		codec:           codec,
		verifyPassword:  VerifyPassword,
		defaultLifetime: defaultLifetime,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Authenticate verifies the credentials and issues a token. An unknown user
// and a wrong password produce the same error.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Token, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" || creds.Password == "" {
		return Token{}, ErrInvalidCredentials
	}
	cred, err := s.lookupCredential(ctx, username)
	if err != nil {
		return Token{}, err
	}
	if err := s.verifyPassword(cred.PasswordHash, creds.Password); err != nil {
		return Token{}, ErrInvalidCredentials
	}
	return s.issueToken(ctx, cred)
}

// Refresh verifies a refresh token and issues a fresh token. Authorities
// are re-resolved from the credential store rather than copied from the old
// token, so a role revocation takes effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	username, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return Token{}, err
	}
	cred, err := s.lookupCredential(ctx, username)
	if err != nil {
		return Token{}, err
	}
	return s.issueToken(ctx, cred)
}

// ValidateToken verifies an access token and returns the authenticated
// user.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (AuthenticatedUser, error) {
	return s.codec.VerifyToken(accessToken)
}

func (s *Service) lookupCredential(ctx context.Context, username string) (*Credential, error) {
	cred, err := s.store.Credentials(ctx).FindCredential(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: find credential: %v", ErrDependency, err)
	}
	return cred, nil
}

func (s *Service) issueToken(ctx context.Context, cred *Credential) (Token, error) {
	settings, err := s.lookupSettings(ctx, cred.Username)
	if err != nil {
		return Token{}, err
	}

	accessLifetime := s.defaultLifetime
	if settings.AccessTokenLifetime != nil {
		accessLifetime = *settings.AccessTokenLifetime
	}
	accessToken, err := s.codec.BuildAccessToken(cred.Username, accessLifetime, cred.Authorities)
	if err != nil {
		return Token{}, fmt.Errorf("build access token: %w", err)
	}

	token := Token{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(accessLifetime / time.Second),
	}
	if settings.RefreshEnabled {
		refreshLifetime := s.defaultLifetime
		if settings.RefreshTokenLifetime != nil {
			refreshLifetime = *settings.RefreshTokenLifetime
		}
		refreshToken, err := s.codec.BuildRefreshToken(cred.Username, refreshLifetime)
		if err != nil {
			return Token{}, fmt.Errorf("build refresh token: %w", err)
		}
		token.RefreshToken = refreshToken
	}
	return token, nil
}

func (s *Service) lookupSettings(ctx context.Context, username string) (*UserTokenSettings, error) {
	settings, err := s.store.Settings(ctx).FindSettings(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Stored settings are optional; refresh defaults to enabled.
			return &UserTokenSettings{Username: username, RefreshEnabled: true}, nil
		}
		return nil, fmt.Errorf("%w: find token settings: %v", ErrDependency, err)
	}
	return settings, nil
}
