package throttle

import (
	"time"

	"authgate.org/internal/obs"
)

// LoginAttemptService tracks failed login attempts in two independent
// keyspaces, username and client IP, over a sliding window. Failures are
// only drained by time: a successful login never resets a counter, so an
// attacker cannot wash out a failure streak with an occasional correct
// guess.
type LoginAttemptService struct {
	maxAttempts int
	window      time.Duration
	usernames   *CounterCache
	ips         *CounterCache
}

// LoginOption configures a LoginAttemptService.
type LoginOption func(*loginOptions)

type loginOptions struct {
	now func() time.Time
}

// WithLoginClock overrides the time source (useful for tests).
func WithLoginClock(fn func() time.Time) LoginOption {
	return func(o *loginOptions) {
		if fn != nil {
			o.now = fn
		}
	}
}

// NewLoginAttemptService creates a throttle that blocks a username or IP
// once it accumulates strictly more than maxAttempts failures within the
// window.
func NewLoginAttemptService(maxAttempts int, window time.Duration, opts ...LoginOption) *LoginAttemptService {
	o := loginOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &LoginAttemptService{
		maxAttempts: maxAttempts,
		window:      window,
		usernames:   NewCounterCache(window, SlidingWindow, WithCacheClock(o.now)),
		ips:         NewCounterCache(window, SlidingWindow, WithCacheClock(o.now)),
	}
}

// OnLoginFailed records a failed authentication or authorization attempt
// against both the username and the client IP. Each increment pushes the
// counter's expiry forward.
func (s *LoginAttemptService) OnLoginFailed(username, clientIP string) {
	s.record(s.usernames, "username", username)
	s.record(s.ips, "client_ip", clientIP)
}

// OnLoginSucceeded is deliberately a no-op: success does not reset or
// decrement the failure counters.
func (s *LoginAttemptService) OnLoginSucceeded(username, clientIP string) {}

// IsUsernameBlocked reports whether the username is over the failure
// threshold. Checking never mutates state.
func (s *LoginAttemptService) IsUsernameBlocked(username string) bool {
	return s.usernames.Value(username) > int64(s.maxAttempts)
}

// IsIPBlocked reports whether the client IP is over the failure threshold.
func (s *LoginAttemptService) IsIPBlocked(clientIP string) bool {
	return s.ips.Value(clientIP) > int64(s.maxAttempts)
}

// Close releases the underlying caches.
func (s *LoginAttemptService) Close() {
	s.usernames.Close()
	s.ips.Close()
}

func (s *LoginAttemptService) record(cache *CounterCache, kind, key string) {
	if cache.Increment(key) > int64(s.maxAttempts) {
		obs.LogRequest(map[string]any{
			"ts":             time.Now().UTC().Format(time.RFC3339Nano),
			"level":          "warn",
			"msg":            "login_attempts_blocked",
			kind:             key,
			"window_minutes": int(s.window.Minutes()),
		})
	}
}
