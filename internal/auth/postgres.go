package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"idhub.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore        { return &userStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore        { return &roleStore{db: s.db} }
func (s *PGStore) Permissions(context.Context) PermissionStore {
	return &permissionStore{db: s.db}
}
func (s *PGStore) LoginHistory(context.Context) LoginHistoryStore {
	return &loginHistoryStore{db: s.db}
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translatePGError maps constraint-violation signals from the store into the
// package taxonomy. Uniqueness is surfaced from the write itself, not from a
// pre-check, so concurrent registrations cannot race past it.
func translatePGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func pageOffset(page, size int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * size
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into users(id, username, email, password_hash, active)
		 values($1,$2,$3,nullif($4,''),$5)
		 returning created_at, updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Active,
	)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return translatePGError(err)
	}
	return nil
}

const userColumns = `id, username, email, coalesce(password_hash, ''), active, created_at, updated_at`

func (s *userStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	u, err := s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadRoles(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username))
	if err != nil {
		return nil, err
	}
	if err := s.loadRoles(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
	if err != nil {
		return nil, err
	}
	if err := s.loadRoles(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// loadRoles attaches role membership and each role's permissions.
func (s *userStore) loadRoles(ctx context.Context, u *User) error {
	rows, err := s.db.QueryContext(ctx,
		`select r.id, r.name, r.description, r.created_at, r.updated_at
		 from roles r join user_roles ur on ur.role_id = r.id
		 where ur.user_id=$1 order by r.name`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return err
		}
		index[role.ID] = len(u.Roles)
		u.Roles = append(u.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(u.Roles) == 0 {
		return nil
	}

	permRows, err := s.db.QueryContext(ctx,
		`select rp.role_id, p.id, p.name, p.description, p.created_at
		 from role_permissions rp
		 join permissions p on p.id = rp.permission_id
		 join user_roles ur on ur.role_id = rp.role_id
		 where ur.user_id=$1 order by p.name`, u.ID)
	if err != nil {
		return err
	}
	defer permRows.Close()

	for permRows.Next() {
		var (
			roleID string
			perm   Permission
		)
		if err := permRows.Scan(&roleID, &perm.ID, &perm.Name, &perm.Description, &perm.CreatedAt); err != nil {
			return err
		}
		if i, ok := index[roleID]; ok {
			u.Roles[i].Permissions = append(u.Roles[i].Permissions, perm)
		}
	}
	return permRows.Err()
}

func (s *userStore) List(ctx context.Context, page, size int) ([]User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at limit $1 offset $2`,
		size, pageOffset(page, size))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (s *userStore) Update(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	var (
		username = sql.NullString{}
		email    = sql.NullString{}
		active   = sql.NullBool{}
	)
	if upd.Username != nil {
		username = sql.NullString{String: *upd.Username, Valid: true}
	}
	if upd.Email != nil {
		email = sql.NullString{String: *upd.Email, Valid: true}
	}
	if upd.Active != nil {
		active = sql.NullBool{Bool: *upd.Active, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`update users set
		   username = coalesce($2, username),
		   email = coalesce($3, email),
		   active = coalesce($4, active),
		   updated_at = now()
		 where id=$1`,
		id, username, email, active,
	)
	if err != nil {
		return nil, translatePGError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *userStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		id, passwordHash,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete hard-deletes the user, cascading role assignments and login history.
func (s *userStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from login_history where user_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *userStore) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
		userID, roleID,
	)
	return translatePGError(err)
}

func (s *userStore) RemoveRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id=$1 and role_id=$2`,
		userID, roleID,
	)
	return err
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into roles(id, name, description) values($1,$2,$3)
		 returning created_at, updated_at`,
		role.ID, role.Name, role.Description,
	)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *roleStore) find(ctx context.Context, query string, arg any) (*Role, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.loadPermissions(ctx, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	return s.find(ctx,
		`select id, name, description, created_at, updated_at from roles where id=$1`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	return s.find(ctx,
		`select id, name, description, created_at, updated_at from roles where name=$1`, name)
}

func (s *roleStore) loadPermissions(ctx context.Context, role *Role) error {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.name, p.description, p.created_at
		 from permissions p join role_permissions rp on rp.permission_id = p.id
		 where rp.role_id=$1 order by p.name`, role.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.CreatedAt); err != nil {
			return err
		}
		role.Permissions = append(role.Permissions, perm)
	}
	return rows.Err()
}

func (s *roleStore) List(ctx context.Context, page, size int) ([]Role, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from roles`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at, updated_at from roles order by name limit $1 offset $2`,
		size, pageOffset(page, size))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	var (
		name        = sql.NullString{}
		description = sql.NullString{}
	)
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
	}
	if upd.Description != nil {
		description = sql.NullString{String: *upd.Description, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`update roles set
		   name = coalesce($2, name),
		   description = coalesce($3, description),
		   updated_at = now()
		 where id=$1`,
		id, name, description,
	)
	if err != nil {
		return nil, translatePGError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

// Delete removes the role from every user's role set and unlinks its
// permissions in one transaction.
func (s *roleStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where role_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *roleStore) AttachPermission(ctx context.Context, roleID, permID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into role_permissions(role_id, permission_id) values($1,$2) on conflict do nothing`,
		roleID, permID,
	)
	return translatePGError(err)
}

func (s *roleStore) DetachPermission(ctx context.Context, roleID, permID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from role_permissions where role_id=$1 and permission_id=$2`,
		roleID, permID,
	)
	return err
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Create(ctx context.Context, perm *Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into permissions(id, name, description) values($1,$2,$3)
		 returning created_at`,
		perm.ID, perm.Name, perm.Description,
	)
	if err := row.Scan(&perm.CreatedAt); err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *permissionStore) Find(ctx context.Context, id string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from permissions where id=$1`, id)
	var perm Permission
	if err := row.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &perm, nil
}

func (s *permissionStore) List(ctx context.Context, page, size int) ([]Permission, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from permissions`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at from permissions order by name limit $1 offset $2`,
		size, pageOffset(page, size))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.CreatedAt); err != nil {
			return nil, 0, err
		}
		perms = append(perms, perm)
	}
	return perms, total, rows.Err()
}

func (s *permissionStore) Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error) {
	var (
		name        = sql.NullString{}
		description = sql.NullString{}
	)
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
	}
	if upd.Description != nil {
		description = sql.NullString{String: *upd.Description, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`update permissions set
		   name = coalesce($2, name),
		   description = coalesce($3, description)
		 where id=$1`,
		id, name, description,
	)
	if err != nil {
		return nil, translatePGError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

// Delete removes the permission and its links to every role.
func (s *permissionStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where permission_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from permissions where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Login history store ------------------------------------------------------

type loginHistoryStore struct{ db *sql.DB }

func (s *loginHistoryStore) Append(ctx context.Context, entry *LoginHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into login_history(id, user_id, ip_address, user_agent)
		 values($1,$2,$3,$4) returning login_at`,
		entry.ID, entry.UserID, entry.IPAddress, entry.UserAgent,
	)
	if err := row.Scan(&entry.LoginAt); err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *loginHistoryStore) ListByUser(ctx context.Context, userID string, page, size int) ([]LoginHistoryEntry, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from login_history where user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, ip_address, user_agent, login_at
		 from login_history where user_id=$1 order by login_at desc limit $2 offset $3`,
		userID, size, pageOffset(page, size))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []LoginHistoryEntry
	for rows.Next() {
		var e LoginHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.IPAddress, &e.UserAgent, &e.LoginAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
