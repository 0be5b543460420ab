package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeStore is an in-memory Store keyed by username.
type fakeStore struct {
	credentials map[string]*Credential
	settings    map[string]*UserTokenSettings
	credErr     error
	settingsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		credentials: map[string]*Credential{},
		settings:    map[string]*UserTokenSettings{},
	}
}

func (s *fakeStore) Credentials(context.Context) CredentialStore { return s }
func (s *fakeStore) Users(context.Context) UserStore             { return nil }
func (s *fakeStore) Settings(context.Context) SettingsStore      { return s }

func (s *fakeStore) FindCredential(_ context.Context, username string) (*Credential, error) {
	if s.credErr != nil {
		return nil, s.credErr
	}
	cred, ok := s.credentials[username]
	if !ok {
		return nil, ErrNotFound
	}
	return cred, nil
}

func (s *fakeStore) FindSettings(_ context.Context, username string) (*UserTokenSettings, error) {
	if s.settingsErr != nil {
		return nil, s.settingsErr
	}
	settings, ok := s.settings[username]
	if !ok {
		return nil, ErrNotFound
	}
	return settings, nil
}

func (s *fakeStore) SaveSettings(_ context.Context, settings *UserTokenSettings) error {
	s.settings[settings.Username] = settings
	return nil
}

func plaintextVerifier(hash, password string) error {
	if hash != password {
		return errors.New("mismatch")
	}
	return nil
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	codec := hmacCodec(t, "test-issuer")
	svc, err := NewService(store, codec, 900000*time.Millisecond, WithPasswordVerifier(plaintextVerifier))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestAuthenticate(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{
		Username:     "alice",
		PasswordHash: "correct-pw",
		Authorities:  []string{"users.read"},
	}
	svc := newTestService(t, store)

	token, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "correct-pw"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token.TokenType != TokenTypeBearer {
		t.Fatalf("unexpected token type: %s", token.TokenType)
	}
	if token.ExpiresIn != 900 {
		t.Fatalf("unexpected expires_in: %d", token.ExpiresIn)
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		t.Fatalf("expected access and refresh tokens, got %+v", token)
	}

	user, err := svc.ValidateToken(context.Background(), token.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if user.Username != "alice" || len(user.Authorities) != 1 {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestAuthenticateTrimsUsername(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: "pw"}
	svc := newTestService(t, store)

	if _, err := svc.Authenticate(context.Background(), Credentials{Username: "  alice  ", Password: "pw"}); err != nil {
		t.Fatalf("Authenticate with padded username: %v", err)
	}
}

func TestAuthenticateFailuresCollapse(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: "correct-pw"}
	svc := newTestService(t, store)

	cases := map[string]Credentials{
		"wrong password": {Username: "alice", Password: "wrong"},
		"unknown user":   {Username: "mallory", Password: "whatever"},
		"empty username": {Username: "   ", Password: "correct-pw"},
		"empty password": {Username: "alice", Password: ""},
	}
	for name, creds := range cases {
		if _, err := svc.Authenticate(context.Background(), creds); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected invalid credentials, got %v", name, err)
		}
	}
}

func TestAuthenticateStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.credErr = errors.New("connection refused")
	svc := newTestService(t, store)

	_, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	if !errors.Is(err, ErrDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRefreshReresolvesAuthorities(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{
		Username:     "alice",
		PasswordHash: "pw",
		Authorities:  []string{"users.read", "users.manage"},
	}
	svc := newTestService(t, store)

	token, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Revoke an authority between issuance and refresh.
	store.credentials["alice"].Authorities = []string{"users.read"}

	refreshed, err := svc.Refresh(context.Background(), token.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	user, err := svc.ValidateToken(context.Background(), refreshed.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if len(user.Authorities) != 1 || user.Authorities[0] != "users.read" {
		t.Fatalf("authorities not re-resolved: %v", user.Authorities)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: "pw"}
	svc := newTestService(t, store)

	token, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), token.AccessToken); !errors.Is(err, ErrNotRefreshToken) {
		t.Fatalf("expected not-a-refresh-token error, got %v", err)
	}
}

func TestRefreshDeletedUser(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: "pw"}
	svc := newTestService(t, store)

	token, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	delete(store.credentials, "alice")

	if _, err := svc.Refresh(context.Background(), token.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials after deletion, got %v", err)
	}
}

func TestPerUserLifetimeOverride(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: "pw"}
	lifetime := 2 * time.Hour
	store.settings["alice"] = &UserTokenSettings{
		Username:            "alice",
		AccessTokenLifetime: &lifetime,
		RefreshEnabled:      true,
	}
	svc := newTestService(t, store)

	token, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token.ExpiresIn != 7200 {
		t.Fatalf("expected per-user lifetime, got expires_in %d", token.ExpiresIn)
	}
	if token.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}
}

func TestRefreshDisabled(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: "pw"}
	store.settings["alice"] = &UserTokenSettings{Username: "alice", RefreshEnabled: false}
	svc := newTestService(t, store)

	token, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token.RefreshToken != "" {
		t.Fatalf("refresh disabled but token issued: %q", token.RefreshToken)
	}
	if token.ExpiresIn != 900 {
		t.Fatalf("unexpected expires_in: %d", token.ExpiresIn)
	}
}

func TestSettingsStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: "pw"}
	store.settingsErr = errors.New("connection refused")
	svc := newTestService(t, store)

	_, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	if !errors.Is(err, ErrDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestAuthenticateWithBcrypt(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := newFakeStore()
	store.credentials["alice"] = &Credential{Username: "alice", PasswordHash: hash}

	codec := hmacCodec(t, "test-issuer")
	svc, err := NewService(store, codec, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "s3cret"}); err != nil {
		t.Fatalf("Authenticate with bcrypt hash: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}
