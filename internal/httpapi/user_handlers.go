package httpapi

import (
	"net/http"
	"strings"

	"keygate.org/internal/audit"
	"keygate.org/internal/auth"
)

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.rbac.ListUsers(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	views := make([]auth.IdentityView, 0, len(users))
	for _, u := range users {
		views = append(views, auth.ViewOf(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.rbac.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auth.ViewOf(user))
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	var upd auth.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.rbac.UpdateUser(r.Context(), userID, upd)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.user.update", map[string]any{"user_id": userID})
	writeJSON(w, http.StatusOK, auth.ViewOf(user))
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if err := a.rbac.DeleteUser(r.Context(), userID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.user.delete", map[string]any{"user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListUserRoles(w http.ResponseWriter, r *http.Request) {
	names, err := a.rbac.UserRoleNames(r.Context(), r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": sortedKeys(names)})
}

func (a *API) handleAssignUserRole(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	if err := a.rbac.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.user.assign_role", map[string]any{
		"user_id": userID,
		"role_id": req.RoleID,
	})
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleUnassignUserRole(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	roleID := r.PathValue("roleID")
	if err := a.rbac.UnassignRole(r.Context(), userID, roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.user.unassign_role", map[string]any{
		"user_id": userID,
		"role_id": roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.resolver.PermissionsFor(r.Context(), r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": sortedKeys(perms)})
}

func (a *API) auditEvent(r *http.Request, event string, fields map[string]any) {
	_ = audit.LogEvent(r.Context(), event, fields)
}
