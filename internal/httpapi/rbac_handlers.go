package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"keygate.org/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type setParentRequest struct {
	ParentRoleID string `json:"parent_role_id"`
}

type updateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.create", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.rbac.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	var upd auth.RoleUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.UpdateRole(r.Context(), roleID, upd)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.update", map[string]any{"role_id": roleID})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.delete", map[string]any{"role_id": roleID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetRoleParent(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	var req setParentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.rbac.SetRoleParent(r.Context(), roleID, strings.TrimSpace(req.ParentRoleID))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.set_parent", map[string]any{
		"role_id":   roleID,
		"parent_id": role.ParentRoleID,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleRoleHierarchy(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	parents, err := a.rbac.RoleParents(r.Context(), roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	children, err := a.rbac.RoleChildren(r.Context(), roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parents":  parents,
		"children": children,
	})
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.rbac.RolePermissions(r.Context(), r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.SetRolePermissions(r.Context(), roleID, req.PermissionIDs); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.permissions.update", map[string]any{
		"role_id": roleID,
		"count":   len(req.PermissionIDs),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.rbac.CreatePermission(r.Context(), req.Name, req.Description, req.Resource, req.Action)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.permission.create", map[string]any{
		"permission_id": perm.ID,
		"name":          perm.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := a.rbac.GetPermission(r.Context(), r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (a *API) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	permissionID := r.PathValue("id")
	var upd auth.PermissionUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.rbac.UpdatePermission(r.Context(), permissionID, upd)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.permission.update", map[string]any{"permission_id": permissionID})
	writeJSON(w, http.StatusOK, perm)
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	permissionID := r.PathValue("id")
	if err := a.rbac.DeletePermission(r.Context(), permissionID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.permission.delete", map[string]any{"permission_id": permissionID})
	w.WriteHeader(http.StatusNoContent)
}
