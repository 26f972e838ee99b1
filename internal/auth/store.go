package auth

import "context"

// Store describes persistence operations required by the identity core.
// Uniqueness of username, email, role name, and permission name is enforced
// by the store itself; constraint violations surface as ErrAlreadyExists.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	LoginHistory(ctx context.Context) LoginHistoryStore
}

// UserStore manages user records and their role memberships. Find variants
// load role membership and role permissions.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, page, size int) ([]User, int, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
}

// RoleStore manages the role catalog and role-permission links.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context, page, size int) ([]Role, int, error)
	Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error)
	Delete(ctx context.Context, id string) error
	AttachPermission(ctx context.Context, roleID, permID string) error
	DetachPermission(ctx context.Context, roleID, permID string) error
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	List(ctx context.Context, page, size int) ([]Permission, int, error)
	Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error)
	Delete(ctx context.Context, id string) error
}

// LoginHistoryStore appends and lists the write-only login audit trail.
type LoginHistoryStore interface {
	Append(ctx context.Context, entry *LoginHistoryEntry) error
	ListByUser(ctx context.Context, userID string, page, size int) ([]LoginHistoryEntry, int, error)
}
