package httpapi

import (
	"net/http"
	"strings"

	"authgate.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// AuthorityManageUsers gates the user management endpoints.
	AuthorityManageUsers = "users.manage"
)

var publicPaths = []string{
	"/auth",
	"/auth/refresh",
	"/auth/validate",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth verifies the bearer token on protected routes and attaches the
// authenticated user to the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		user, err := a.auth.ValidateToken(r.Context(), token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), user)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuthority ensures the request's user carries the authority. It
// writes the error response itself and reports whether to continue.
func (a *API) requireAuthority(w http.ResponseWriter, r *http.Request, authority string) bool {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return false
	}
	if !user.HasAuthority(authority) {
		writeError(w, r, http.StatusForbidden, "insufficient authority")
		return false
	}
	return true
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingBearer
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errInvalidScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}

const (
	errMissingBearer = rawTokenError("missing bearer token")
	errInvalidScheme = rawTokenError("invalid authorization scheme")
)

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
