package auth

import "time"

const (
	// DefaultRoleName is granted to freshly registered users when the role exists.
	DefaultRoleName = "USER"
	// AdminRoleName guards the administrative surface.
	AdminRoleName = "ADMIN"
)

// User is an account known to the identity directory. PasswordHash is empty
// for federated-only accounts.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role groups permissions. Name is globally unique.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Permission is a fine-grained capability. Name is globally unique.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LoginHistoryEntry is an append-only audit record of a successful
// register/login. The core never reads it back except for paginated listing.
type LoginHistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	LoginAt   time.Time `json:"login_at"`
}

// UserUpdate carries optional profile changes; nil fields are left untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	Active   *bool
}

// RoleUpdate carries optional role changes.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// PermissionUpdate carries optional permission changes.
type PermissionUpdate struct {
	Name        *string
	Description *string
}
