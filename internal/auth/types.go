package auth

import "time"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an authenticated account. PasswordHash never leaves this
// package; handlers receive an IdentityView instead.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	Status          string    `json:"status"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool { return u.Status == UserStatusActive }

// Role groups permissions. Roles form a forest: at most one parent,
// arbitrarily many children.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ParentRoleID string    `json:"parent_role_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Permission is an atomic resource:action capability. The set is flat;
// permissions are never hierarchical.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRoleAssignment links a user to a role.
type UserRoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshTokenRecord is the server-side record of an issued refresh
// token. Records are append-only: rotation creates a new record and
// sets RevokedAt on the old one, nothing else is ever updated.
type RefreshTokenRecord struct {
	ID        string     `json:"id"`
	Token     string     `json:"-"`
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IdentityView is the minimal identity handed to downstream
// authorization. It deliberately excludes the password hash.
type IdentityView struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	IsActive        bool   `json:"is_active"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

// ViewOf builds the identity view of a user.
func ViewOf(u *User) IdentityView {
	return IdentityView{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		IsActive:        u.IsActive(),
		IsEmailVerified: u.IsEmailVerified,
	}
}

// TokenPair carries freshly issued credentials.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
