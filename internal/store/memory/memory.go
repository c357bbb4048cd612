// Package memory provides an in-memory auth.Store used by tests and
// local development. All operations are safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"keygate.org/internal/auth"
	"keygate.org/internal/ids"
)

// Store implements auth.Store over in-process maps.
type Store struct {
	mu          sync.Mutex
	users       map[string]*auth.User
	roles       map[string]*auth.Role
	permissions map[string]*auth.Permission
	rolePerms   map[string]map[string]struct{} // roleID -> permissionID set
	userRoles   map[string]map[string]time.Time
	refresh     map[string]*auth.RefreshTokenRecord // id -> record
	now         func() time.Time
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*auth.User),
		roles:       make(map[string]*auth.Role),
		permissions: make(map[string]*auth.Permission),
		rolePerms:   make(map[string]map[string]struct{}),
		userRoles:   make(map[string]map[string]time.Time),
		refresh:     make(map[string]*auth.RefreshTokenRecord),
		now:         time.Now,
	}
}

func (s *Store) Users(context.Context) auth.UserStore               { return (*userStore)(s) }
func (s *Store) Roles(context.Context) auth.RoleStore               { return (*roleStore)(s) }
func (s *Store) Permissions(context.Context) auth.PermissionStore   { return (*permStore)(s) }
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore { return (*tokenStore)(s) }

// Users ---------------------------------------------------------------

type userStore Store

func (s *userStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) List(_ context.Context) ([]*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *userStore) Update(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return auth.ErrNotFound
	}
	for id, other := range s.users {
		if id != u.ID && other.Email == u.Email {
			return auth.ErrConflict
		}
	}
	cp := *u
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = s.now()
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	delete(s.userRoles, id)
	return nil
}

// Roles ---------------------------------------------------------------

type roleStore Store

func (s *roleStore) Create(_ context.Context, role *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == role.Name {
			return auth.ErrConflict
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	role.CreatedAt = s.now()
	role.UpdatedAt = role.CreatedAt
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *roleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *roleStore) List(_ context.Context) ([]*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *roleStore) Update(_ context.Context, role *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.roles[role.ID]
	if !ok {
		return auth.ErrNotFound
	}
	for id, other := range s.roles {
		if id != role.ID && other.Name == role.Name {
			return auth.ErrConflict
		}
	}
	cp := *role
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = s.now()
	s.roles[role.ID] = &cp
	return nil
}

func (s *roleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	for _, assigned := range s.userRoles {
		delete(assigned, id)
	}
	return nil
}

func (s *roleStore) Assign(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[string]time.Time)
	}
	if _, ok := s.userRoles[userID][roleID]; !ok {
		s.userRoles[userID][roleID] = s.now()
	}
	return nil
}

func (s *roleStore) Unassign(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assigned, ok := s.userRoles[userID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, ok := assigned[roleID]; !ok {
		return auth.ErrNotFound
	}
	delete(assigned, roleID)
	return nil
}

func (s *roleStore) Assignments(_ context.Context, userID string) ([]auth.UserRoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.UserRoleAssignment
	for roleID, at := range s.userRoles[userID] {
		out = append(out, auth.UserRoleAssignment{UserID: userID, RoleID: roleID, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

// Permissions ---------------------------------------------------------

type permStore Store

func (s *permStore) Create(_ context.Context, p *auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Name == p.Name {
			return auth.ErrConflict
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.CreatedAt = s.now()
	cp := *p
	s.permissions[p.ID] = &cp
	return nil
}

func (s *permStore) Find(_ context.Context, id string) (*auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *permStore) FindByName(_ context.Context, name string) (*auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *permStore) List(_ context.Context) ([]*auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *permStore) Update(_ context.Context, p *auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[p.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, other := range s.permissions {
		if id != p.ID && other.Name == p.Name {
			return auth.ErrConflict
		}
	}
	cp := *p
	s.permissions[p.ID] = &cp
	return nil
}

func (s *permStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.permissions, id)
	for _, linked := range s.rolePerms {
		delete(linked, id)
	}
	return nil
}

func (s *permStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for i := range perms {
		p := perms[i]
		if _, err := s.FindByName(ctx, p.Name); err == nil {
			continue
		}
		if err := s.Create(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

func (s *permStore) SetForRole(_ context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, ok := s.permissions[id]; !ok {
			return auth.ErrNotFound
		}
		set[id] = struct{}{}
	}
	s.rolePerms[roleID] = set
	return nil
}

func (s *permStore) ForRole(_ context.Context, roleID string) ([]*auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Permission
	for id := range s.rolePerms[roleID] {
		if p, ok := s.permissions[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Refresh tokens ------------------------------------------------------

type tokenStore Store

func (s *tokenStore) Create(_ context.Context, rec *auth.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	rec.CreatedAt = s.now()
	cp := *rec
	s.refresh[rec.ID] = &cp
	return nil
}

func (s *tokenStore) FindByToken(_ context.Context, token string) (*auth.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.refresh {
		if rec.Token == token {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Revoke flips revoked_at exactly once. The check and the write share
// one critical section, mirroring the pg store's conditional UPDATE.
func (s *tokenStore) Revoke(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[id]
	if !ok {
		return false, auth.ErrNotFound
	}
	if rec.RevokedAt != nil {
		return false, nil
	}
	at := s.now()
	rec.RevokedAt = &at
	return true, nil
}

func (s *tokenStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	for _, rec := range s.refresh {
		if rec.UserID == userID && rec.RevokedAt == nil {
			t := at
			rec.RevokedAt = &t
		}
	}
	return nil
}
