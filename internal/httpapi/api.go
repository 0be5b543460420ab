package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
	"authgate.org/internal/throttle"
)

const serviceName = "authgate-api"

// ReadyProbe is a simple readiness check (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Limits carries the edge-limiter settings for the middleware chain.
type Limits struct {
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// DefaultLimits returns the limiter settings used unless overridden.
func DefaultLimits() Limits {
	return Limits{
		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
		MaxBodyBytes:       1 << 20,
	}
}

// API is the HTTP layer tying the throttles and the auth service together.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth   *auth.Service
	store  auth.Store
	logins *throttle.LoginAttemptService
	ips    *throttle.IPThrottle
	limits Limits
}

// New wires the routes. The auth endpoints are public; user management
// requires a bearer token with the users.manage authority.
func New(rp ReadyProbe, version string, svc *auth.Service, store auth.Store,
	logins *throttle.LoginAttemptService, ips *throttle.IPThrottle, limits Limits) *API {

	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       svc,
		store:      store,
		logins:     logins,
		ips:        ips,
		limits:     limits,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth", a.handleAuthenticate)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/validate", a.handleValidate)

	a.mux.HandleFunc("POST /v1/users", a.handleCreateUser)
	a.mux.HandleFunc("GET /v1/users/{username}", a.handleGetUser)
	a.mux.HandleFunc("DELETE /v1/users/{username}", a.handleDeleteUser)
	a.mux.HandleFunc("PUT /v1/users/{username}/password", a.handleUpdatePassword)
	a.mux.HandleFunc("PUT /v1/users/{username}/authorities", a.handleSetAuthorities)
	a.mux.HandleFunc("PUT /v1/users/{username}/settings", a.handleSaveSettings)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain. Every request passes the IP
// request throttle before any authentication logic; the login attempt
// filter then rejects callers that are already over the failure threshold
// and records 401/403 outcomes.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = a.loginAttemptFilter(h)
	h = a.ipThrottleFilter(h)
	h = RateLimit(h, a.limits.RateLimitBurst, a.limits.RateLimitPerSecond)
	h = MaxBodyBytes(h, a.limits.MaxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": requestIDFrom(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// mapAuthError translates service errors to transport status codes. Bad
// credentials and invalid tokens map to 401; collaborator failures to 503.
func mapAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrNotRefreshToken):
		writeError(w, r, http.StatusUnauthorized, auth.ErrNotRefreshToken.Error())
	case errors.Is(err, auth.ErrDependency):
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func trimUsername(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("username"))
}
