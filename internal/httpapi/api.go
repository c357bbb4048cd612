package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"keygate.org/internal/auth"
	"keygate.org/internal/obs"
)

// ReadyProbe reports backend readiness (pings the database when present).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the tunables the HTTP layer needs from configuration.
type Options struct {
	Version       string
	MaxBodyBytes  int64
	AuthPerSecond float64
	AuthBurst     int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	routes     map[string]RouteSpec
	sessions   *auth.SessionManager
	rbac       *auth.RBACService
	resolver   *auth.PermissionResolver
	readyProbe ReadyProbe
	opts       Options
}

func New(sessions *auth.SessionManager, rbac *auth.RBACService, resolver *auth.PermissionResolver, rp ReadyProbe, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		routes:     make(map[string]RouteSpec),
		sessions:   sessions,
		rbac:       rbac,
		resolver:   resolver,
		readyProbe: rp,
		opts:       opts,
	}

	public := RouteSpec{Public: true}
	authed := RouteSpec{}

	// health/ready/info
	a.handle("/healthz", public, http.HandlerFunc(a.Healthz))
	a.handle("/readyz", public, http.HandlerFunc(a.Ready))
	a.handle("GET /v1/info", public, http.HandlerFunc(a.Info))

	// Prometheus metrics
	a.handle("/metrics", public, obs.Handler())

	// session lifecycle; the credential routes get a per-IP rate limit
	authChain := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, opts.AuthBurst, opts.AuthPerSecond)
	}
	a.handle("POST /v1/auth/register", public, authChain(a.handleRegister))
	a.handle("POST /v1/auth/login", public, authChain(a.handleLogin))
	a.handle("POST /v1/auth/refresh", public, authChain(a.handleRefresh))
	a.handle("POST /v1/auth/logout", authed, http.HandlerFunc(a.handleLogout))
	a.handle("GET /v1/auth/me", authed, http.HandlerFunc(a.handleMe))
	a.handle("POST /v1/auth/password", authed, http.HandlerFunc(a.handleChangePassword))

	// user administration
	a.handle("GET /v1/users", perms(auth.PermUserRead), http.HandlerFunc(a.handleListUsers))
	a.handle("GET /v1/users/{id}", perms(auth.PermUserRead), http.HandlerFunc(a.handleGetUser))
	a.handle("PATCH /v1/users/{id}", perms(auth.PermUserUpdate), http.HandlerFunc(a.handleUpdateUser))
	a.handle("DELETE /v1/users/{id}", perms(auth.PermUserDelete), http.HandlerFunc(a.handleDeleteUser))
	a.handle("GET /v1/users/{id}/roles", perms(auth.PermUserRead), http.HandlerFunc(a.handleListUserRoles))
	a.handle("POST /v1/users/{id}/roles", perms(auth.PermUserUpdate, auth.PermRoleRead), http.HandlerFunc(a.handleAssignUserRole))
	a.handle("DELETE /v1/users/{id}/roles/{roleID}", perms(auth.PermUserUpdate), http.HandlerFunc(a.handleUnassignUserRole))
	a.handle("GET /v1/users/{id}/permissions", perms(auth.PermUserRead), http.HandlerFunc(a.handleUserPermissions))

	// role administration
	a.handle("GET /v1/roles", perms(auth.PermRoleRead), http.HandlerFunc(a.handleListRoles))
	a.handle("POST /v1/roles", perms(auth.PermRoleCreate), http.HandlerFunc(a.handleCreateRole))
	a.handle("GET /v1/roles/{id}", perms(auth.PermRoleRead), http.HandlerFunc(a.handleGetRole))
	a.handle("PATCH /v1/roles/{id}", perms(auth.PermRoleUpdate), http.HandlerFunc(a.handleUpdateRole))
	a.handle("DELETE /v1/roles/{id}", perms(auth.PermRoleDelete), http.HandlerFunc(a.handleDeleteRole))
	// rewiring the hierarchy is gated on the admin role, not a permission
	a.handle("PUT /v1/roles/{id}/parent", RouteSpec{Roles: []string{auth.RoleAdmin}}, http.HandlerFunc(a.handleSetRoleParent))
	a.handle("GET /v1/roles/{id}/hierarchy", perms(auth.PermRoleRead), http.HandlerFunc(a.handleRoleHierarchy))
	a.handle("GET /v1/roles/{id}/permissions", perms(auth.PermRoleRead, auth.PermPermissionRead), http.HandlerFunc(a.handleRolePermissions))
	a.handle("PUT /v1/roles/{id}/permissions", perms(auth.PermRoleUpdate, auth.PermPermissionRead), http.HandlerFunc(a.handleSetRolePermissions))

	// permission catalog
	a.handle("GET /v1/permissions", perms(auth.PermPermissionRead), http.HandlerFunc(a.handleListPermissions))
	a.handle("POST /v1/permissions", perms(auth.PermPermissionCreate), http.HandlerFunc(a.handleCreatePermission))
	a.handle("GET /v1/permissions/{id}", perms(auth.PermPermissionRead), http.HandlerFunc(a.handleGetPermission))
	a.handle("PUT /v1/permissions/{id}", perms(auth.PermPermissionUpdate), http.HandlerFunc(a.handleUpdatePermission))
	a.handle("DELETE /v1/permissions/{id}", perms(auth.PermPermissionDelete), http.HandlerFunc(a.handleDeletePermission))

	a.handle("/", public, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	return a
}

// handle registers the handler and records the route's authorization
// spec under the same pattern, so withAuth can look it up by match.
func (a *API) handle(pattern string, spec RouteSpec, h http.Handler) {
	a.routes[pattern] = spec
	a.mux.Handle(pattern, h)
}

func perms(names ...string) RouteSpec {
	return RouteSpec{Permissions: names}
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "keygate-api",
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
		"name":    "keygate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
