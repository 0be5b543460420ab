package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"authgate.org/internal/obs"
)

// maxUsernamePeek bounds how much of a login body the throttle filter will
// read to learn the username.
const maxUsernamePeek = 8 << 10

// ipThrottleFilter counts every request against the fixed-window IP budget
// before any authentication logic runs.
func (a *API) ipThrottleFilter(next http.Handler) http.Handler {
	if a.ips == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if a.ips.ShouldBlock(ip) {
			obs.ThrottleBlocked("ip_request")
			writeError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loginAttemptFilter rejects callers already over the failure threshold and
// records a failure when the downstream response is 401 or 403. Both
// authentication and authorization failures count toward the same
// counters.
func (a *API) loginAttemptFilter(next http.Handler) http.Handler {
	if a.logins == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		username := extractUsername(r)

		if a.logins.IsIPBlocked(ip) || a.logins.IsUsernameBlocked(username) {
			obs.ThrottleBlocked("login_attempt")
			writeError(w, r, http.StatusTooManyRequests, "too many failed attempts")
			return
		}

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		if sw.code == http.StatusUnauthorized || sw.code == http.StatusForbidden {
			a.logins.OnLoginFailed(username, ip)
			obs.LoginFailed()
		}
	})
}

// extractUsername recovers the username a request is acting as, without
// verifying anything: Basic auth user, bearer JWT subject, or the username
// field of a login body. Empty string when none applies.
func extractUsername(r *http.Request) string {
	if username, _, ok := r.BasicAuth(); ok {
		return username
	}
	if subject := bearerSubject(r.Header.Get("Authorization")); subject != "" {
		return subject
	}
	if r.Method == http.MethodPost && r.URL.Path == "/auth" {
		return peekLoginUsername(r)
	}
	return ""
}

// bearerSubject decodes the subject claim without verifying the signature.
// Verification happens downstream; the throttle only needs a counter key.
func bearerSubject(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return ""
	}
	token := strings.TrimSpace(header[len("bearer "):])
	if token == "" {
		return ""
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}

// peekLoginUsername reads the login body to learn the username, then
// restores the body for the handler.
func peekLoginUsername(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	peeked, err := io.ReadAll(io.LimitReader(r.Body, maxUsernamePeek))
	remainder := r.Body
	r.Body = readCloser{io.MultiReader(bytes.NewReader(peeked), remainder), remainder}
	if err != nil {
		return ""
	}
	var body struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(peeked, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Username)
}

type readCloser struct {
	io.Reader
	io.Closer
}
