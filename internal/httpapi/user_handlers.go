package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/auth"
)

type createUserRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Authorities []string `json:"authorities"`
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

type setAuthoritiesRequest struct {
	Authorities []string `json:"authorities"`
}

type saveSettingsRequest struct {
	AccessTokenExpirationMs  *int64 `json:"access_token_expiration_ms"`
	RefreshTokenExpirationMs *int64 `json:"refresh_token_expiration_ms"`
	RefreshEnabled           bool   `json:"refresh_enabled"`
}

type userResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuthority(w, r, AuthorityManageUsers) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user := &auth.User{Username: req.Username, Authorities: req.Authorities}
	if err := a.store.Users(r.Context()).Create(r.Context(), user, hash); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "username already exists")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "create user failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "users.created", map[string]any{"username": user.Username})
	writeJSON(w, http.StatusCreated, userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Authorities: user.Authorities,
	})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuthority(w, r, AuthorityManageUsers) {
		return
	}
	user, err := a.store.Users(r.Context()).Find(r.Context(), trimUsername(r))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Authorities: user.Authorities,
	})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuthority(w, r, AuthorityManageUsers) {
		return
	}
	username := trimUsername(r)
	if err := a.store.Users(r.Context()).Delete(r.Context(), username); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "delete failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "users.deleted", map[string]any{"username": username})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuthority(w, r, AuthorityManageUsers) {
		return
	}
	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username := trimUsername(r)
	if err := a.store.Users(r.Context()).UpdatePassword(r.Context(), username, hash); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "update failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "users.password_updated", map[string]any{"username": username})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetAuthorities(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuthority(w, r, AuthorityManageUsers) {
		return
	}
	var req setAuthoritiesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username := trimUsername(r)
	if err := a.store.Users(r.Context()).SetAuthorities(r.Context(), username, req.Authorities); err != nil {
		writeError(w, r, http.StatusInternalServerError, "update failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "users.authorities_updated", map[string]any{
		"username":    username,
		"authorities": req.Authorities,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuthority(w, r, AuthorityManageUsers) {
		return
	}
	var req saveSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	settings := &auth.UserTokenSettings{
		Username:       trimUsername(r),
		RefreshEnabled: req.RefreshEnabled,
	}
	if req.AccessTokenExpirationMs != nil {
		d := time.Duration(*req.AccessTokenExpirationMs) * time.Millisecond
		settings.AccessTokenLifetime = &d
	}
	if req.RefreshTokenExpirationMs != nil {
		d := time.Duration(*req.RefreshTokenExpirationMs) * time.Millisecond
		settings.RefreshTokenLifetime = &d
	}
	if err := a.store.Settings(r.Context()).SaveSettings(r.Context(), settings); err != nil {
		writeError(w, r, http.StatusInternalServerError, "save failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "users.settings_updated", map[string]any{
		"username": settings.Username,
	})
	w.WriteHeader(http.StatusNoContent)
}
