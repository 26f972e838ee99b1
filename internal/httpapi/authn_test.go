package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"idhub.org/internal/auth"
)

func identityRequest(method, path string, roles ...string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if len(roles) == 0 {
		return req
	}
	user := &auth.User{ID: "user-1", Active: true}
	for _, name := range roles {
		user.Roles = append(user.Roles, auth.Role{Name: name})
	}
	ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{User: user})
	return req.WithContext(ctx)
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	handler := RequireRole("ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, identityRequest(http.MethodGet, "/guarded", "admin"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	handler := RequireRole("ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, identityRequest(http.MethodGet, "/guarded", "USER"))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsAnonymous(t *testing.T) {
	handler := RequireRole("ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, identityRequest(http.MethodGet, "/guarded"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"Bearer abc":          "abc",
		"bearer abc":          "abc",
		"Bearer   abc  ":      "abc",
		"Basic dXNlcjpwYXNz":  "",
		"abc":                 "",
	}
	for header, want := range cases {
		if got := extractBearerToken(header); got != want {
			t.Fatalf("extractBearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestAdminRoutesGuarded(t *testing.T) {
	env := newTestEnv(t)
	resp := env.registerUser(t, "alice")

	// Anonymous callers get a challenge.
	rr := env.do(t, http.MethodGet, "/v1/users", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rr.Code)
	}

	// A plain user is authenticated but not authorized.
	rr = env.do(t, http.MethodGet, "/v1/users", resp.AccessToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("plain user: expected 403, got %d", rr.Code)
	}

	admin := env.adminToken(t)
	rr = env.do(t, http.MethodGet, "/v1/users", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}
