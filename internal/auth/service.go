package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"idhub.org/internal/obs"
)

// Credentials is the registration/admin-creation input.
type Credentials struct {
	Username string
	Email    string
	Password string
}

// ClientInfo describes the caller for the login audit trail.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// UserService drives the user lifecycle: registration, login, password
// changes, administration, and the login history trail. Token issuance is
// delegated to the TokenService.
type UserService struct {
	store       Store
	tokens      *TokenService
	defaultRole string
}

// NewUserService constructs a UserService. defaultRole is granted to freshly
// registered users when such a role exists; pass "" to use DefaultRoleName.
func NewUserService(store Store, tokens *TokenService, defaultRole string) (*UserService, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	defaultRole = strings.TrimSpace(defaultRole)
	if defaultRole == "" {
		defaultRole = DefaultRoleName
	}
	return &UserService{store: store, tokens: tokens, defaultRole: defaultRole}, nil
}

func (s *UserService) validateCredentials(creds Credentials) (Credentials, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	creds.Email = strings.TrimSpace(strings.ToLower(creds.Email))
	if creds.Username == "" {
		return creds, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if creds.Email == "" || !strings.Contains(creds.Email, "@") {
		return creds, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if creds.Password == "" {
		return creds, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return creds, nil
}

// Register creates a user, grants the default role when it exists, issues a
// token pair, and records the login. Username/email collisions surface as
// ErrAlreadyExists from the store's own uniqueness constraints.
func (s *UserService) Register(ctx context.Context, creds Credentials, client ClientInfo) (TokenPair, *User, error) {
	creds, err := s.validateCredentials(creds)
	if err != nil {
		return TokenPair{}, nil, err
	}
	hash, err := HashPassword(creds.Password)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user := &User{
		Username:     creds.Username,
		Email:        creds.Email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return TokenPair{}, nil, err
	}

	role, err := s.store.Roles(ctx).FindByName(ctx, s.defaultRole)
	switch {
	case err == nil:
		if err := s.store.Users(ctx).AssignRole(ctx, user.ID, role.ID); err != nil {
			return TokenPair{}, nil, err
		}
		user.Roles = append(user.Roles, *role)
	case errors.Is(err, ErrNotFound):
		// No default role provisioned yet; the user starts without roles.
	default:
		return TokenPair{}, nil, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.recordLogin(ctx, user.ID, client)
	return pair, user, nil
}

// Login authenticates by username and password. A missing user reports
// ErrNotFound; a bad password reports ErrWrongPassword. The two are
// deliberately distinguishable at this layer.
func (s *UserService) Login(ctx context.Context, username, password string, client ClientInfo) (TokenPair, *User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrWrongPassword
	}
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.recordLogin(ctx, user.ID, client)
	return pair, user, nil
}

// Logout invalidates the presented token. It never fails the caller.
func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.tokens.Invalidate(ctx, token)
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token is echoed back unchanged. The subject must still resolve to a user.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	subject, err := s.tokens.Verify(ctx, refreshToken, TokenKindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.store.Users(ctx).Find(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthenticated
		}
		return TokenPair{}, err
	}
	if !user.Active {
		return TokenPair{}, ErrUnauthenticated
	}
	access, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:     access,
		RefreshToken:    refreshToken,
		AccessExpiresAt: s.tokens.now().UTC().Add(s.tokens.AccessTTL()),
	}, nil
}

// ChangePassword replaces the stored hash once the current password verifies.
// Already-issued tokens stay valid until natural expiry.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrWrongPassword
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// CreateUser is the administrative creation path: no tokens, no default role.
func (s *UserService) CreateUser(ctx context.Context, creds Credentials) (*User, error) {
	creds, err := s.validateCredentials(creds)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     creds.Username,
		Email:        creds.Email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Find(ctx, userID)
}

func (s *UserService) ListUsers(ctx context.Context, page, size int) ([]User, int, error) {
	return s.store.Users(ctx).List(ctx, page, size)
}

func (s *UserService) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		upd.Username = &name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	return s.store.Users(ctx).Update(ctx, userID, upd)
}

// DeleteUser hard-deletes the user; role links and history cascade.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Delete(ctx, userID)
}

func (s *UserService) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Users(ctx).AssignRole(ctx, userID, roleID)
}

func (s *UserService) RemoveRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Users(ctx).RemoveRole(ctx, userID, roleID)
}

func (s *UserService) LoginHistory(ctx context.Context, userID string, page, size int) ([]LoginHistoryEntry, int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, 0, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.LoginHistory(ctx).ListByUser(ctx, userID, page, size)
}

// recordLogin appends to the audit trail. A write failure must not fail the
// login itself, only be logged.
func (s *UserService) recordLogin(ctx context.Context, userID string, client ClientInfo) {
	entry := &LoginHistoryEntry{
		UserID:    userID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	}
	if err := s.store.LoginHistory(ctx).Append(ctx, entry); err != nil {
		obs.LogEvent("auth.login_history.append_failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
