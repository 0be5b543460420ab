package httpapi

import (
	"io"
	"net/http"
	"strings"

	"authgate.org/internal/audit"
	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
)

// maxTokenBody bounds the raw-token bodies accepted by refresh and
// validate.
const maxTokenBody = 16 << 10

func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var creds auth.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.auth.Authenticate(r.Context(), creds)
	if err != nil {
		mapAuthError(w, r, err)
		return
	}

	obs.TokenIssued("password")
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"username":   strings.TrimSpace(creds.Username),
		"expires_in": token.ExpiresIn,
		"refresh":    token.RefreshToken != "",
	})
	writeJSON(w, http.StatusOK, token)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	refreshToken, err := readRawToken(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.auth.Refresh(r.Context(), refreshToken)
	if err != nil {
		mapAuthError(w, r, err)
		return
	}

	obs.TokenIssued("refresh")
	_ = audit.LogEvent(r.Context(), "auth.token.refreshed", map[string]any{
		"expires_in": token.ExpiresIn,
	})
	writeJSON(w, http.StatusOK, token)
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	accessToken, err := readRawToken(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.ValidateToken(r.Context(), accessToken)
	if err != nil {
		mapAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// readRawToken reads a token passed as a plain-text request body.
func readRawToken(r *http.Request) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBody))
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errTokenRequired
	}
	return token, nil
}

type rawTokenError string

func (e rawTokenError) Error() string { return string(e) }

const errTokenRequired = rawTokenError("token body is required")
