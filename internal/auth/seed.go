package auth

// Builtin permission names used by route declarations.
const (
	PermUserCreate = "user:create"
	PermUserRead   = "user:read"
	PermUserUpdate = "user:update"
	PermUserDelete = "user:delete"

	PermRoleCreate = "role:create"
	PermRoleRead   = "role:read"
	PermRoleUpdate = "role:update"
	PermRoleDelete = "role:delete"

	PermPermissionCreate = "permission:create"
	PermPermissionRead   = "permission:read"
	PermPermissionUpdate = "permission:update"
	PermPermissionDelete = "permission:delete"

	PermAuditRead = "audit:read"
)

// BuiltinPermissions is the catalog ensured at startup and by seeds.
var BuiltinPermissions = []Permission{
	{Name: PermUserCreate, Description: "Create users", Resource: "user", Action: "create"},
	{Name: PermUserRead, Description: "Read users", Resource: "user", Action: "read"},
	{Name: PermUserUpdate, Description: "Update users", Resource: "user", Action: "update"},
	{Name: PermUserDelete, Description: "Delete users", Resource: "user", Action: "delete"},
	{Name: PermRoleCreate, Description: "Create roles", Resource: "role", Action: "create"},
	{Name: PermRoleRead, Description: "Read roles", Resource: "role", Action: "read"},
	{Name: PermRoleUpdate, Description: "Update roles", Resource: "role", Action: "update"},
	{Name: PermRoleDelete, Description: "Delete roles", Resource: "role", Action: "delete"},
	{Name: PermPermissionCreate, Description: "Create permissions", Resource: "permission", Action: "create"},
	{Name: PermPermissionRead, Description: "Read permissions", Resource: "permission", Action: "read"},
	{Name: PermPermissionUpdate, Description: "Update permissions", Resource: "permission", Action: "update"},
	{Name: PermPermissionDelete, Description: "Delete permissions", Resource: "permission", Action: "delete"},
	{Name: PermAuditRead, Description: "Read audit logs", Resource: "audit", Action: "read"},
}

// Default role names. moderator's parent is admin: holding moderator
// also satisfies checks requiring admin (specialization, see
// RoleGraph), while holding admin does not satisfy moderator checks.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)
