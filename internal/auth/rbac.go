package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// EffectivePermissions returns the deduplicated union of permission names
// over all of the user's roles, sorted for stable output.
func EffectivePermissions(u *User) []string {
	if u == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, role := range u.Roles {
		for _, perm := range role.Permissions {
			set[perm.Name] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether the user holds a role with the given name.
func HasRole(u *User, name string) bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if strings.EqualFold(role.Name, name) {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the user's roles carries the permission.
func HasPermission(u *User, name string) bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		for _, perm := range role.Permissions {
			if perm.Name == name {
				return true
			}
		}
	}
	return false
}

// RBACService manages the role and permission catalog. Each mutation commits
// independently; there is no transaction spanning separate entities.
type RBACService struct {
	store Store
}

// NewRBACService constructs an RBACService over the primary store.
func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	return &RBACService{store: store}, nil
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Roles(ctx).Create(ctx, &role); err != nil {
		return Role{}, err
	}
	return role, nil
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	return *role, nil
}

func (s *RBACService) ListRoles(ctx context.Context, page, size int) ([]Role, int, error) {
	return s.store.Roles(ctx).List(ctx, page, size)
}

func (s *RBACService) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	role, err := s.store.Roles(ctx).Update(ctx, roleID, upd)
	if err != nil {
		return Role{}, err
	}
	return *role, nil
}

// DeleteRole removes the role together with its user assignments and
// permission links.
func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Delete(ctx, roleID)
}

func (s *RBACService) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	perm := Permission{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Permissions(ctx).Create(ctx, &perm); err != nil {
		return Permission{}, err
	}
	return perm, nil
}

func (s *RBACService) GetPermission(ctx context.Context, permID string) (Permission, error) {
	permID = strings.TrimSpace(permID)
	if permID == "" {
		return Permission{}, fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	perm, err := s.store.Permissions(ctx).Find(ctx, permID)
	if err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

func (s *RBACService) ListPermissions(ctx context.Context, page, size int) ([]Permission, int, error) {
	return s.store.Permissions(ctx).List(ctx, page, size)
}

func (s *RBACService) UpdatePermission(ctx context.Context, permID string, upd PermissionUpdate) (Permission, error) {
	permID = strings.TrimSpace(permID)
	if permID == "" {
		return Permission{}, fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	perm, err := s.store.Permissions(ctx).Update(ctx, permID, upd)
	if err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

// DeletePermission removes the permission and its links to every role.
func (s *RBACService) DeletePermission(ctx context.Context, permID string) error {
	permID = strings.TrimSpace(permID)
	if permID == "" {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).Delete(ctx, permID)
}

func (s *RBACService) AttachPermission(ctx context.Context, roleID, permID string) error {
	roleID = strings.TrimSpace(roleID)
	permID = strings.TrimSpace(permID)
	if roleID == "" || permID == "" {
		return fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).AttachPermission(ctx, roleID, permID)
}

func (s *RBACService) DetachPermission(ctx context.Context, roleID, permID string) error {
	roleID = strings.TrimSpace(roleID)
	permID = strings.TrimSpace(permID)
	if roleID == "" || permID == "" {
		return fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).DetachPermission(ctx, roleID, permID)
}
