package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RBACService manages users, roles, permissions and their links. Token
// issuance lives in SessionManager; this service owns the durable
// model the resolver and role graph read from.
type RBACService struct {
	store    Store
	hasher   Hasher
	sessions *SessionManager
}

// NewRBACService constructs the service. sessions may be nil in tests
// that never change passwords.
func NewRBACService(store Store, hasher Hasher, sessions *SessionManager) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &RBACService{store: store, hasher: hasher, sessions: sessions}, nil
}

// Graph builds a fresh role graph snapshot from the current role list.
func (s *RBACService) Graph(ctx context.Context) (*RoleGraph, error) {
	return BuildRoleGraph(ctx, s.store.Roles(ctx))
}

// Users ---------------------------------------------------------------

func (s *RBACService) GetUser(ctx context.Context, userID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	u, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (s *RBACService) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := s.store.Users(ctx).List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return users, nil
}

// UserUpdate carries optional profile mutations.
type UserUpdate struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Status    *string `json:"status"`
}

func (s *RBACService) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		user.Email = email
	}
	if upd.FirstName != nil {
		user.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		user.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*upd.Status))
		if status != UserStatusActive && status != UserStatusDisabled {
			return nil, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
		}
		user.Status = status
	}
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

func (s *RBACService) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return storeErr(s.store.Users(ctx).Delete(ctx, userID))
}

// ChangePassword verifies the current password, stores a new hash and
// revokes every outstanding refresh token for the user.
func (s *RBACService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	if strings.TrimSpace(next) == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		return storeErr(err)
	}
	if s.sessions != nil {
		return s.sessions.RevokeAll(ctx, userID)
	}
	return nil
}

// Roles ---------------------------------------------------------------

func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, storeErr(err)
	}
	return role, nil
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return nil, storeErr(err)
	}
	return role, nil
}

func (s *RBACService) ListRoles(ctx context.Context) ([]*Role, error) {
	roles, err := s.store.Roles(ctx).List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return roles, nil
}

// RoleUpdate carries optional role mutations.
type RoleUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *RBACService) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if err := s.store.Roles(ctx).Update(ctx, role); err != nil {
		return nil, storeErr(err)
	}
	return role, nil
}

func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return storeErr(s.store.Roles(ctx).Delete(ctx, roleID))
}

// SetRoleParent re-parents a role after validating the move against
// the current graph. Passing an empty parentID detaches the role. A
// rejected move leaves both roles' parent pointers unchanged.
func (s *RBACService) SetRoleParent(ctx context.Context, roleID, parentID string) (*Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if err := graph.ValidateParent(roleID, strings.TrimSpace(parentID)); err != nil {
		return nil, err
	}
	role.ParentRoleID = strings.TrimSpace(parentID)
	if err := s.store.Roles(ctx).Update(ctx, role); err != nil {
		return nil, storeErr(err)
	}
	return role, nil
}

func (s *RBACService) RoleParents(ctx context.Context, roleID string) ([]string, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Parents(strings.TrimSpace(roleID))
}

func (s *RBACService) RoleChildren(ctx context.Context, roleID string) ([]string, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Children(strings.TrimSpace(roleID))
}

// Permissions ---------------------------------------------------------

func (s *RBACService) CreatePermission(ctx context.Context, name, description, resource, action string) (*Permission, error) {
	name = strings.TrimSpace(name)
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if name == "" || resource == "" || action == "" {
		return nil, fmt.Errorf("%w: permission name, resource and action are required", ErrInvalidInput)
	}
	perm := &Permission{
		Name:        name,
		Description: strings.TrimSpace(description),
		Resource:    resource,
		Action:      action,
	}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return nil, storeErr(err)
	}
	return perm, nil
}

func (s *RBACService) GetPermission(ctx context.Context, permissionID string) (*Permission, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return nil, fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	perm, err := s.store.Permissions(ctx).Find(ctx, permissionID)
	if err != nil {
		return nil, storeErr(err)
	}
	return perm, nil
}

// PermissionUpdate carries optional permission mutations.
type PermissionUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Resource    *string `json:"resource"`
	Action      *string `json:"action"`
}

func (s *RBACService) UpdatePermission(ctx context.Context, permissionID string, upd PermissionUpdate) (*Permission, error) {
	perm, err := s.GetPermission(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
		}
		perm.Name = name
	}
	if upd.Description != nil {
		perm.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Resource != nil {
		resource := strings.TrimSpace(*upd.Resource)
		if resource == "" {
			return nil, fmt.Errorf("%w: permission resource is required", ErrInvalidInput)
		}
		perm.Resource = resource
	}
	if upd.Action != nil {
		action := strings.TrimSpace(*upd.Action)
		if action == "" {
			return nil, fmt.Errorf("%w: permission action is required", ErrInvalidInput)
		}
		perm.Action = action
	}
	if err := s.store.Permissions(ctx).Update(ctx, perm); err != nil {
		return nil, storeErr(err)
	}
	return perm, nil
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]*Permission, error) {
	perms, err := s.store.Permissions(ctx).List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return perms, nil
}

func (s *RBACService) DeletePermission(ctx context.Context, permissionID string) error {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return storeErr(s.store.Permissions(ctx).Delete(ctx, permissionID))
}

// SetRolePermissions replaces a role's permission links with the given
// permission ids. Every id must resolve; otherwise nothing changes.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	ids := dedupeStrings(permissionIDs)
	perms := s.store.Permissions(ctx)
	for _, id := range ids {
		if _, err := perms.Find(ctx, id); err != nil {
			return storeErr(err)
		}
	}
	return storeErr(perms.SetForRole(ctx, roleID, ids))
}

func (s *RBACService) RolePermissions(ctx context.Context, roleID string) ([]*Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	perms, err := s.store.Permissions(ctx).ForRole(ctx, roleID)
	if err != nil {
		return nil, storeErr(err)
	}
	return perms, nil
}

// Assignments ---------------------------------------------------------

func (s *RBACService) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	return storeErr(s.store.Roles(ctx).Assign(ctx, userID, roleID))
}

func (s *RBACService) UnassignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return storeErr(s.store.Roles(ctx).Unassign(ctx, userID, roleID))
}

// UserRoleNames returns the names of the user's directly assigned
// roles together with, per role, every ancestor name. This is the set
// role checks evaluate against: a derived role is treated as at least
// as privileged as its ancestors.
func (s *RBACService) UserRoleNames(ctx context.Context, userID string) (map[string]struct{}, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	assignments, err := s.store.Roles(ctx).Assignments(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	names := make(map[string]struct{})
	if len(assignments) == 0 {
		return names, nil
	}
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		role, ok := graph.Role(a.RoleID)
		if !ok {
			continue
		}
		names[role.Name] = struct{}{}
		parents, err := graph.Parents(role.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			names[p] = struct{}{}
		}
	}
	return names, nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
