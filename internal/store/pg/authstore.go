package pg

import (
	"context"
	"database/sql"

	"keygate.org/internal/auth"
	"keygate.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

func (s *Store) Users(context.Context) auth.UserStore { return &userStore{db: s.db} }
func (s *Store) Roles(context.Context) auth.RoleStore { return &roleStore{db: s.db} }
func (s *Store) Permissions(context.Context) auth.PermissionStore {
	return &permissionStore{db: s.db}
}
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash, first_name, last_name, status, is_email_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Status, &u.IsEmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, first_name, last_name, status, is_email_verified)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Status, u.IsEmailVerified)
	return mapErr(row.Scan(&u.CreatedAt, &u.UpdatedAt))
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s *userStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, mapErr(rows.Err())
}

func (s *userStore) Update(ctx context.Context, u *auth.User) error {
	row := s.db.QueryRowContext(ctx, `
		update users
		set email = $2, password_hash = $3, first_name = $4, last_name = $5,
		    status = $6, is_email_verified = $7, updated_at = now()
		where id = $1
		returning updated_at
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Status, u.IsEmailVerified)
	return mapErr(row.Scan(&u.UpdatedAt))
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

const roleColumns = `id, name, description, coalesce(parent_role_id, ''), created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*auth.Role, error) {
	var r auth.Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.ParentRoleID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, parent_role_id)
		values ($1, $2, $3, nullif($4, ''))
		returning created_at, updated_at
	`, role.ID, role.Name, role.Description, role.ParentRoleID)
	return mapErr(row.Scan(&role.CreatedAt, &role.UpdatedAt))
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where name = $1`, name))
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, mapErr(rows.Err())
}

func (s *roleStore) Update(ctx context.Context, role *auth.Role) error {
	row := s.db.QueryRowContext(ctx, `
		update roles
		set name = $2, description = $3, parent_role_id = nullif($4, ''), updated_at = now()
		where id = $1
		returning updated_at
	`, role.ID, role.Name, role.Description, role.ParentRoleID)
	return mapErr(row.Scan(&role.UpdatedAt))
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *roleStore) Assign(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	return mapErr(err)
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *roleStore) Assignments(ctx context.Context, userID string) ([]auth.UserRoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select user_id, role_id, created_at from user_roles where user_id = $1`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []auth.UserRoleAssignment
	for rows.Next() {
		var a auth.UserRoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		result = append(result, a)
	}
	return result, mapErr(rows.Err())
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

const permColumns = `id, name, description, resource, action, created_at`

func scanPermission(row interface{ Scan(...any) error }) (*auth.Permission, error) {
	var p auth.Permission
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *permissionStore) Create(ctx context.Context, p *auth.Permission) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description, resource, action)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, p.ID, p.Name, p.Description, p.Resource, p.Action)
	return mapErr(row.Scan(&p.CreatedAt))
}

func (s *permissionStore) Find(ctx context.Context, id string) (*auth.Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx,
		`select `+permColumns+` from permissions where id = $1`, id))
}

func (s *permissionStore) FindByName(ctx context.Context, name string) (*auth.Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx,
		`select `+permColumns+` from permissions where name = $1`, name))
}

func (s *permissionStore) List(ctx context.Context) ([]*auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+permColumns+` from permissions order by name`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var perms []*auth.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, mapErr(rows.Err())
}

func (s *permissionStore) Update(ctx context.Context, p *auth.Permission) error {
	res, err := s.db.ExecContext(ctx, `
		update permissions
		set name = $2, description = $3, resource = $4, action = $5
		where id = $1
	`, p.ID, p.Name, p.Description, p.Resource, p.Action)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name, description, resource, action)
			values ($1, $2, $3, $4, $5)
			on conflict (name) do nothing
		`, p.ID, p.Name, p.Description, p.Resource, p.Action)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return mapErr(err)
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions (role_id, permission_id) values ($1, $2)`,
			roleID, permID); err != nil {
			return mapErr(err)
		}
	}
	return mapErr(tx.Commit())
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]*auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.resource, p.action, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var perms []*auth.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, mapErr(rows.Err())
}

// Refresh token store -------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, rec *auth.RefreshTokenRecord) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into refresh_tokens (id, token, user_id, expires_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, rec.ID, rec.Token, rec.UserID, rec.ExpiresAt)
	return mapErr(row.Scan(&rec.CreatedAt))
}

func (s *refreshTokenStore) FindByToken(ctx context.Context, token string) (*auth.RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, token, user_id, expires_at, revoked_at, created_at
		from refresh_tokens
		where token = $1
	`, token)
	var (
		rec       auth.RefreshTokenRecord
		revokedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.Token, &rec.UserID, &rec.ExpiresAt, &revokedAt, &rec.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

// Revoke is the single conditional update that serializes rotation:
// the `revoked_at is null` predicate makes concurrent refreshes of one
// token race on the row, and exactly one update reports an affected row.
func (s *refreshTokenStore) Revoke(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = now()
		where id = $1 and revoked_at is null
	`, id)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = now()
		where user_id = $1 and revoked_at is null
	`, userID)
	return mapErr(err)
}
