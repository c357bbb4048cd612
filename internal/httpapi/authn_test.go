package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"keygate.org/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		token   string
		wantErr bool
	}{
		{"Bearer abc123", "abc123", false},
		{"bearer abc123", "abc123", false},
		{"  Bearer   abc123  ", "abc123", false},
		{"", "", true},
		{"Basic abc123", "", true},
		{"Bearer ", "", true},
		{"abc123", "", true},
	}
	for _, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("extractBearerToken(%q): expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Fatalf("extractBearerToken(%q): %v", tc.header, err)
		}
		if token != tc.token {
			t.Fatalf("extractBearerToken(%q)=%q, want %q", tc.header, token, tc.token)
		}
	}
}

func TestRouteSpecsDeclareAccessControl(t *testing.T) {
	env := newTestEnv(t)

	public := []string{
		"/healthz", "/readyz", "/metrics", "GET /v1/info",
		"POST /v1/auth/register", "POST /v1/auth/login", "POST /v1/auth/refresh", "/",
	}
	for _, pattern := range public {
		spec, ok := env.api.routes[pattern]
		if !ok || !spec.Public {
			t.Fatalf("expected %s to be declared public", pattern)
		}
	}

	private := []string{"POST /v1/auth/logout", "GET /v1/auth/me", "GET /v1/users", "GET /v1/roles"}
	for _, pattern := range private {
		spec, ok := env.api.routes[pattern]
		if !ok {
			t.Fatalf("missing route spec for %s", pattern)
		}
		if spec.Public {
			t.Fatalf("expected %s to require auth", pattern)
		}
	}

	spec := env.api.routes["GET /v1/users"]
	if len(spec.Permissions) != 1 || spec.Permissions[0] != auth.PermUserRead {
		t.Fatalf("unexpected permissions for GET /v1/users: %v", spec.Permissions)
	}
	spec = env.api.routes["PUT /v1/roles/{id}/parent"]
	if len(spec.Roles) != 1 || spec.Roles[0] != auth.RoleAdmin {
		t.Fatalf("unexpected roles for PUT /v1/roles/{id}/parent: %v", spec.Roles)
	}
}

// seedRoleChain creates admin <- moderator and two users, one
// assigned admin and one with no roles at all.
func seedRoleChain(t *testing.T, env *testEnv) (adminUserID, bareUserID string) {
	t.Helper()
	ctx := context.Background()

	admin, err := env.rbac.CreateRole(ctx, auth.RoleAdmin, "")
	if err != nil {
		t.Fatalf("create admin role: %v", err)
	}
	mod, err := env.rbac.CreateRole(ctx, auth.RoleModerator, "")
	if err != nil {
		t.Fatalf("create moderator role: %v", err)
	}
	if _, err := env.rbac.SetRoleParent(ctx, mod.ID, admin.ID); err != nil {
		t.Fatalf("set parent: %v", err)
	}

	holder := &auth.User{Email: "holder@b.com", PasswordHash: "x", Status: auth.UserStatusActive}
	if err := env.store.Users(ctx).Create(ctx, holder); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := env.rbac.AssignRole(ctx, holder.ID, admin.ID); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	bare := &auth.User{Email: "bare@b.com", PasswordHash: "x", Status: auth.UserStatusActive}
	if err := env.store.Users(ctx).Create(ctx, bare); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return holder.ID, bare.ID
}

func roleCheckRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/v1/roles/any/parent", nil)
	ctx := auth.ContextWithIdentity(req.Context(), auth.IdentityView{ID: userID})
	return req.WithContext(ctx)
}

func TestRoleCheckAcceptsAnyRequiredRole(t *testing.T) {
	env := newTestEnv(t)
	adminUserID, _ := seedRoleChain(t, env)

	// Holding one of the listed roles is enough.
	rec := httptest.NewRecorder()
	if !env.api.ensureRoles(rec, roleCheckRequest(adminUserID), auth.RoleAdmin, auth.RoleModerator) {
		t.Fatalf("holding %s must satisfy an any-of requirement: %s", auth.RoleAdmin, rec.Body.String())
	}
}

func TestRoleCheckDenialReportsFullRequiredList(t *testing.T) {
	env := newTestEnv(t)
	_, bareUserID := seedRoleChain(t, env)

	rec := httptest.NewRecorder()
	if env.api.ensureRoles(rec, roleCheckRequest(bareUserID), auth.RoleAdmin, auth.RoleModerator) {
		t.Fatal("expected denial for a user with no roles")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	denied := decodeBody[struct {
		MissingRoles []string `json:"missing_roles"`
	}](t, rec)
	if len(denied.MissingRoles) != 2 || denied.MissingRoles[0] != auth.RoleAdmin || denied.MissingRoles[1] != auth.RoleModerator {
		t.Fatalf("expected the full required list, got %v", denied.MissingRoles)
	}
}

func TestRoleCheckAncestorDoesNotSatisfyDescendant(t *testing.T) {
	env := newTestEnv(t)
	adminUserID, _ := seedRoleChain(t, env)

	// admin is moderator's ancestor; inheritance flows from the
	// assigned role up to its parents, never downward.
	rec := httptest.NewRecorder()
	if env.api.ensureRoles(rec, roleCheckRequest(adminUserID), auth.RoleModerator) {
		t.Fatal("holding an ancestor role must not satisfy a descendant requirement")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
