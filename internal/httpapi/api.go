package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"idhub.org/internal/auth"
	"idhub.org/internal/obs"
)

// ReadyProbe checks the external collaborators the service cannot run without.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.Cmdable
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Options tunes the outer middleware chain.
type Options struct {
	Version       string
	RatePerSecond int
	RateBurst     int
	MaxBodyBytes  int64
}

// API is the HTTP layer over the identity core.
type API struct {
	mux        *http.ServeMux
	users      *auth.UserService
	rbac       *auth.RBACService
	gate       *auth.Gate
	readyProbe ReadyProbe
	opts       Options
}

func New(users *auth.UserService, rbac *auth.RBACService, gate *auth.Gate, rp ReadyProbe, opts Options) *API {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		users:      users,
		rbac:       rbac,
		gate:       gate,
		readyProbe: rp,
		opts:       opts,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)

	admin := RequireRole(auth.AdminRoleName)
	a.mux.Handle("/v1/users", admin(http.HandlerFunc(a.handleUsers)))
	a.mux.Handle("/v1/users/", admin(http.HandlerFunc(a.handleUserScoped)))
	a.mux.Handle("/v1/roles", admin(http.HandlerFunc(a.handleRoles)))
	a.mux.Handle("/v1/roles/", admin(http.HandlerFunc(a.handleRoleScoped)))
	a.mux.Handle("/v1/permissions", admin(http.HandlerFunc(a.handlePermissions)))
	a.mux.Handle("/v1/permissions/", admin(http.HandlerFunc(a.handlePermissionScoped)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RequestID(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	h = Logging(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "idhub-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "idhub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}
