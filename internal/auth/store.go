package auth

import "context"

// Store describes persistence operations required by the auth core.
// Implementations must return ErrNotFound / ErrConflict for the
// corresponding conditions; any transport failure surfaces as a plain
// error and is normalized to ErrStoreUnavailable by callers.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// RoleStore manages roles and user-role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
	Assignments(ctx context.Context, userID string) ([]UserRoleAssignment, error)
}

// PermissionStore manages the permission catalog and role links.
type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Update(ctx context.Context, p *Permission) error
	Delete(ctx context.Context, id string) error
	Ensure(ctx context.Context, perms []Permission) error
	SetForRole(ctx context.Context, roleID string, permissionIDs []string) error
	ForRole(ctx context.Context, roleID string) ([]*Permission, error)
}

// RefreshTokenStore manages refresh token records.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshTokenRecord) error
	// FindByToken looks a record up by its literal token string.
	FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error)
	// Revoke sets revoked_at on an active record. It reports false when
	// the record was already revoked, which lets refresh rotation lose
	// double-refresh races cleanly: the revoke must be a single
	// conditional update, never a read-then-write pair.
	Revoke(ctx context.Context, id string) (bool, error)
	// RevokeAllForUser revokes every active record belonging to a user.
	RevokeAllForUser(ctx context.Context, userID string) error
}
