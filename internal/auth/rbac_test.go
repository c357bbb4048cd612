package auth_test

import (
	"context"
	"errors"
	"testing"

	"keygate.org/internal/auth"
	"keygate.org/internal/store/memory"
)

func newRBACFixture(t *testing.T) (*auth.RBACService, auth.Store) {
	t.Helper()
	store := memory.New()
	rbac, err := auth.NewRBACService(store, auth.NewHasher(4), nil)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	return rbac, store
}

func TestRoleCRUD(t *testing.T) {
	rbac, _ := newRBACFixture(t)
	ctx := context.Background()

	role, err := rbac.CreateRole(ctx, "editor", "can edit")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := rbac.CreateRole(ctx, "editor", ""); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}

	desc := "renamed"
	updated, err := rbac.UpdateRole(ctx, role.ID, auth.RoleUpdate{Description: &desc})
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Description != "renamed" {
		t.Fatalf("description not updated: %s", updated.Description)
	}

	if err := rbac.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if _, err := rbac.GetRole(ctx, role.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSetRoleParentRejectsCycleWithoutChanges(t *testing.T) {
	rbac, _ := newRBACFixture(t)
	ctx := context.Background()

	admin, err := rbac.CreateRole(ctx, "admin", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	mod, err := rbac.CreateRole(ctx, "moderator", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := rbac.SetRoleParent(ctx, mod.ID, admin.ID); err != nil {
		t.Fatalf("SetRoleParent: %v", err)
	}

	// Closing the loop must fail and leave both roles untouched.
	if _, err := rbac.SetRoleParent(ctx, admin.ID, mod.ID); !errors.Is(err, auth.ErrInvalidHierarchy) {
		t.Fatalf("expected ErrInvalidHierarchy, got %v", err)
	}
	got, err := rbac.GetRole(ctx, admin.ID)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if got.ParentRoleID != "" {
		t.Fatalf("rejected assignment mutated the role: parent=%s", got.ParentRoleID)
	}

	parents, err := rbac.RoleParents(ctx, mod.ID)
	if err != nil {
		t.Fatalf("RoleParents: %v", err)
	}
	if len(parents) != 1 || parents[0] != "admin" {
		t.Fatalf("unexpected parents: %v", parents)
	}
}

func TestSetRoleParentDetach(t *testing.T) {
	rbac, _ := newRBACFixture(t)
	ctx := context.Background()

	admin, _ := rbac.CreateRole(ctx, "admin", "")
	mod, _ := rbac.CreateRole(ctx, "moderator", "")
	if _, err := rbac.SetRoleParent(ctx, mod.ID, admin.ID); err != nil {
		t.Fatalf("SetRoleParent: %v", err)
	}
	detached, err := rbac.SetRoleParent(ctx, mod.ID, "")
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if detached.ParentRoleID != "" {
		t.Fatalf("expected detached role, parent=%s", detached.ParentRoleID)
	}
}

func TestSetRolePermissionsValidatesIDs(t *testing.T) {
	rbac, _ := newRBACFixture(t)
	ctx := context.Background()

	role, _ := rbac.CreateRole(ctx, "editor", "")
	perm, err := rbac.CreatePermission(ctx, "doc:edit", "", "doc", "edit")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}

	if err := rbac.SetRolePermissions(ctx, role.ID, []string{perm.ID, "ghost"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown permission id: expected ErrNotFound, got %v", err)
	}
	if err := rbac.SetRolePermissions(ctx, role.ID, []string{perm.ID}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	perms, err := rbac.RolePermissions(ctx, role.ID)
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if len(perms) != 1 || perms[0].Name != "doc:edit" {
		t.Fatalf("unexpected role permissions: %v", perms)
	}
}

func TestPermissionReadAndUpdate(t *testing.T) {
	rbac, _ := newRBACFixture(t)
	ctx := context.Background()

	perm, err := rbac.CreatePermission(ctx, "report:export", "", "report", "export")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}

	got, err := rbac.GetPermission(ctx, perm.ID)
	if err != nil {
		t.Fatalf("GetPermission: %v", err)
	}
	if got.Name != "report:export" {
		t.Fatalf("unexpected permission: %+v", got)
	}

	desc := "export tenant reports"
	action := "export-all"
	updated, err := rbac.UpdatePermission(ctx, perm.ID, auth.PermissionUpdate{
		Description: &desc,
		Action:      &action,
	})
	if err != nil {
		t.Fatalf("UpdatePermission: %v", err)
	}
	if updated.Description != desc || updated.Action != action {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Resource != "report" {
		t.Fatalf("untouched field changed: %+v", updated)
	}

	empty := ""
	if _, err := rbac.UpdatePermission(ctx, perm.ID, auth.PermissionUpdate{Name: &empty}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("blank name: expected ErrInvalidInput, got %v", err)
	}
	if _, err := rbac.GetPermission(ctx, "no-such-id"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}
	if _, err := rbac.UpdatePermission(ctx, "no-such-id", auth.PermissionUpdate{Description: &desc}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	codec, err := auth.NewTokenCodec("access-secret", "refresh-secret")
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	store := memory.New()
	hasher := auth.NewHasher(4)
	sessions, err := auth.NewSessionManager(store, codec, auth.NewBlacklist(codec), hasher)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	rbac, err := auth.NewRBACService(store, hasher, sessions)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	ctx := context.Background()

	user, pair, err := sessions.Register(ctx, "a@b.com", "old-pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := rbac.ChangePassword(ctx, user.ID, "wrong", "new-pw"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong current password: expected ErrInvalidCredentials, got %v", err)
	}
	if err := rbac.ChangePassword(ctx, user.ID, "old-pw", "new-pw"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := sessions.Login(ctx, "a@b.com", "old-pw"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("old password still valid: %v", err)
	}
	if _, _, err := sessions.Login(ctx, "a@b.com", "new-pw"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	// Every pre-change refresh token is dead.
	if _, _, err := sessions.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("refresh after password change: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAssignRoleValidation(t *testing.T) {
	rbac, store := newRBACFixture(t)
	ctx := context.Background()

	user := &auth.User{Email: "a@b.com", PasswordHash: "x", Status: auth.UserStatusActive}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := rbac.AssignRole(ctx, user.ID, "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown role: expected ErrNotFound, got %v", err)
	}

	role, _ := rbac.CreateRole(ctx, "editor", "")
	if err := rbac.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := rbac.UnassignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("UnassignRole: %v", err)
	}
	if err := rbac.UnassignRole(ctx, user.ID, role.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("double unassign: expected ErrNotFound, got %v", err)
	}
}
