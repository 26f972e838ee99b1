package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"idhub.org/internal/auth"
)

// fakeStore is a map-backed auth.Store for handler tests.
type fakeStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]*auth.User
	roles     map[string]*auth.Role
	perms     map[string]*auth.Permission
	userRoles map[string]map[string]bool
	rolePerms map[string]map[string]bool
	history   []auth.LoginHistoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*auth.User),
		roles:     make(map[string]*auth.Role),
		perms:     make(map[string]*auth.Permission),
		userRoles: make(map[string]map[string]bool),
		rolePerms: make(map[string]map[string]bool),
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) Users(context.Context) auth.UserStore               { return (*fakeUsers)(f) }
func (f *fakeStore) Roles(context.Context) auth.RoleStore               { return (*fakeRoles)(f) }
func (f *fakeStore) Permissions(context.Context) auth.PermissionStore   { return (*fakePerms)(f) }
func (f *fakeStore) LoginHistory(context.Context) auth.LoginHistoryStore { return (*fakeHistory)(f) }

func (f *fakeStore) loadUser(u *auth.User) *auth.User {
	out := *u
	out.Roles = nil
	for roleID := range f.userRoles[u.ID] {
		if role, ok := f.roles[roleID]; ok {
			out.Roles = append(out.Roles, f.loadRole(role))
		}
	}
	return &out
}

func (f *fakeStore) loadRole(r *auth.Role) auth.Role {
	out := *r
	out.Permissions = nil
	for permID := range f.rolePerms[r.ID] {
		if perm, ok := f.perms[permID]; ok {
			out.Permissions = append(out.Permissions, *perm)
		}
	}
	return out
}

type fakeUsers fakeStore

func (f *fakeUsers) Create(_ context.Context, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrAlreadyExists
		}
	}
	u.ID = (*fakeStore)(f).nextID("user")
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) Find(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return (*fakeStore)(f).loadUser(u), nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return (*fakeStore)(f).loadUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return (*fakeStore)(f).loadUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) List(_ context.Context, page, size int) ([]auth.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *(*fakeStore)(f).loadUser(u))
	}
	return out, len(out), nil
}

func (f *fakeUsers) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	f.mu.Lock()
	u, ok := f.users[id]
	if !ok {
		f.mu.Unlock()
		return nil, auth.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	f.mu.Unlock()
	return f.Find(ctx, id)
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(f.users, id)
	delete(f.userRoles, id)
	return nil
}

func (f *fakeUsers) AssignRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := f.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	if f.userRoles[userID] == nil {
		f.userRoles[userID] = make(map[string]bool)
	}
	f.userRoles[userID][roleID] = true
	return nil
}

func (f *fakeUsers) RemoveRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.userRoles[userID], roleID)
	return nil
}

type fakeRoles fakeStore

func (f *fakeRoles) Create(_ context.Context, role *auth.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return auth.ErrAlreadyExists
		}
	}
	role.ID = (*fakeStore)(f).nextID("role")
	role.CreatedAt = time.Now().UTC()
	cp := *role
	f.roles[role.ID] = &cp
	return nil
}

func (f *fakeRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := (*fakeStore)(f).loadRole(role)
	return &out, nil
}

func (f *fakeRoles) FindByName(_ context.Context, name string) (*auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, role := range f.roles {
		if strings.EqualFold(role.Name, name) {
			out := (*fakeStore)(f).loadRole(role)
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeRoles) List(_ context.Context, page, size int) ([]auth.Role, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, (*fakeStore)(f).loadRole(role))
	}
	return out, len(out), nil
}

func (f *fakeRoles) Update(ctx context.Context, id string, upd auth.RoleUpdate) (*auth.Role, error) {
	f.mu.Lock()
	role, ok := f.roles[id]
	if !ok {
		f.mu.Unlock()
		return nil, auth.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	f.mu.Unlock()
	return f.Find(ctx, id)
}

func (f *fakeRoles) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(f.roles, id)
	delete(f.rolePerms, id)
	for _, assigned := range f.userRoles {
		delete(assigned, id)
	}
	return nil
}

func (f *fakeRoles) AttachPermission(_ context.Context, roleID, permID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := f.perms[permID]; !ok {
		return auth.ErrNotFound
	}
	if f.rolePerms[roleID] == nil {
		f.rolePerms[roleID] = make(map[string]bool)
	}
	f.rolePerms[roleID][permID] = true
	return nil
}

func (f *fakeRoles) DetachPermission(_ context.Context, roleID, permID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rolePerms[roleID], permID)
	return nil
}

type fakePerms fakeStore

func (f *fakePerms) Create(_ context.Context, perm *auth.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.perms {
		if strings.EqualFold(existing.Name, perm.Name) {
			return auth.ErrAlreadyExists
		}
	}
	perm.ID = (*fakeStore)(f).nextID("perm")
	perm.CreatedAt = time.Now().UTC()
	cp := *perm
	f.perms[perm.ID] = &cp
	return nil
}

func (f *fakePerms) Find(_ context.Context, id string) (*auth.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	perm, ok := f.perms[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *perm
	return &out, nil
}

func (f *fakePerms) List(_ context.Context, page, size int) ([]auth.Permission, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.Permission, 0, len(f.perms))
	for _, perm := range f.perms {
		out = append(out, *perm)
	}
	return out, len(out), nil
}

func (f *fakePerms) Update(ctx context.Context, id string, upd auth.PermissionUpdate) (*auth.Permission, error) {
	f.mu.Lock()
	perm, ok := f.perms[id]
	if !ok {
		f.mu.Unlock()
		return nil, auth.ErrNotFound
	}
	if upd.Name != nil {
		perm.Name = *upd.Name
	}
	if upd.Description != nil {
		perm.Description = *upd.Description
	}
	f.mu.Unlock()
	return f.Find(ctx, id)
}

func (f *fakePerms) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.perms[id]; !ok {
		return auth.ErrNotFound
	}
	delete(f.perms, id)
	for _, attached := range f.rolePerms {
		delete(attached, id)
	}
	return nil
}

type fakeHistory fakeStore

func (f *fakeHistory) Append(_ context.Context, entry *auth.LoginHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = (*fakeStore)(f).nextID("login")
	entry.LoginAt = time.Now().UTC()
	f.history = append(f.history, *entry)
	return nil
}

func (f *fakeHistory) ListByUser(_ context.Context, userID string, page, size int) ([]auth.LoginHistoryEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []auth.LoginHistoryEntry
	for _, entry := range f.history {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, len(out), nil
}

// testEnv bundles a fully wired API over in-memory collaborators.
type testEnv struct {
	api     *API
	handler http.Handler
	store   *fakeStore
	users   *auth.UserService
	rbac    *auth.RBACService
	tokens  *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()

	ctx := context.Background()
	for _, name := range []string{auth.DefaultRoleName, auth.AdminRoleName} {
		if err := store.Roles(ctx).Create(ctx, &auth.Role{Name: name}); err != nil {
			t.Fatalf("seed role %s: %v", name, err)
		}
	}

	codec, err := auth.NewCodec([]byte("test-secret"), "idhub-test")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	tokens, err := auth.NewTokenService(codec, newMapRevocations())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	users, err := auth.NewUserService(store, tokens, "")
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	gate, err := auth.NewGate(tokens, store.Users(ctx))
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	api := New(users, rbac, gate, ReadyProbe{}, Options{Version: "test"})
	return &testEnv{api: api, handler: api.Handler(), store: store, users: users, rbac: rbac, tokens: tokens}
}

// mapRevocations is a trivial in-memory revocation store.
type mapRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func newMapRevocations() *mapRevocations {
	return &mapRevocations{revoked: make(map[string]bool)}
}

func (m *mapRevocations) Add(_ context.Context, token string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[token] = true
	return nil
}

func (m *mapRevocations) Contains(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[token], nil
}

// do runs a request through the fully wrapped handler chain.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

// registerUser registers through the API and returns the token response.
func (env *testEnv) registerUser(t *testing.T, username string) tokenResponse {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/v1/auth/register", "", registerRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "s3cret",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, rr.Code, rr.Body.String())
	}
	var resp tokenResponse
	decodeBody(t, rr, &resp)
	return resp
}

// adminToken provisions a user holding the ADMIN role and logs them in.
func (env *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	resp := env.registerUser(t, "root")

	ctx := context.Background()
	user, err := env.store.Users(ctx).FindByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	role, err := env.store.Roles(ctx).FindByName(ctx, auth.AdminRoleName)
	if err != nil {
		t.Fatalf("find admin role: %v", err)
	}
	if err := env.store.Users(ctx).AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("assign admin role: %v", err)
	}
	return resp.AccessToken
}
