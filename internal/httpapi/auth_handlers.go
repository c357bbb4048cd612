package httpapi

import (
	"net/http"
	"strings"
	"time"

	"keygate.org/internal/audit"
	"keygate.org/internal/auth"
	"keygate.org/internal/obs"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionResponse struct {
	User             auth.IdentityView `json:"user"`
	AccessToken      string            `json:"access_token"`
	RefreshToken     string            `json:"refresh_token"`
	AccessExpiresAt  time.Time         `json:"access_expires_at"`
	RefreshExpiresAt time.Time         `json:"refresh_expires_at"`
}

func sessionPayload(user *auth.User, pair auth.TokenPair) sessionResponse {
	return sessionResponse{
		User:             auth.ViewOf(user),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.sessions.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusCreated, sessionPayload(user, pair))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.ObserveLogin("denied")
		_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{
			"email": strings.TrimSpace(req.Email),
		})
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, sessionPayload(user, pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.ObserveRefresh("denied")
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveRefresh("ok")
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, sessionPayload(user, pair))
}

// handleLogout revokes the presented refresh token and blacklists the
// access token that authenticated the request, so both die immediately.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if access, ok := auth.TokenFromContext(r.Context()); ok {
		a.sessions.Blacklist().Add(access)
		obs.ObserveRevocation()
		obs.SetBlacklistSize(a.sessions.Blacklist().Len())
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
			"user_id": identity.ID,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrAuthRequired)
		return
	}
	roles, err := a.rbac.UserRoleNames(r.Context(), identity.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	perms, err := a.resolver.PermissionsFor(r.Context(), identity.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        identity,
		"roles":       sortedKeys(roles),
		"permissions": sortedKeys(perms),
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrAuthRequired)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.ChangePassword(r.Context(), identity.ID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.change", map[string]any{
		"user_id": identity.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}
