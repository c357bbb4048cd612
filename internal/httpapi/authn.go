package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keygate.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// RouteSpec declares a route's authorization contract at registration
// time. Public routes skip authentication entirely. Roles is
// satisfied when the caller holds ANY of the listed names, directly
// or through the role hierarchy; Permissions requires ALL of the
// listed grants. withAuth consumes the spec, so handlers never carry
// authorization logic themselves.
type RouteSpec struct {
	Public      bool
	Roles       []string
	Permissions []string
}

// withAuth is the single authorization gate. It resolves the matched
// route's spec, short-circuits public routes, verifies the bearer
// token, attaches the caller identity plus the raw token to the
// context, then applies the role and permission checks in order.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		_, pattern := a.mux.Handler(r)
		spec, known := a.routes[pattern]
		if !known || spec.Public {
			// Unknown patterns are the mux's own 404/405 responses;
			// they carry no resource data.
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		identity, err := a.sessions.AuthenticateRequest(r.Context(), token)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		r = r.WithContext(ctx)

		if len(spec.Roles) > 0 && !a.ensureRoles(w, r, spec.Roles...) {
			return
		}
		if len(spec.Permissions) > 0 && !a.ensurePermissions(w, r, spec.Permissions...) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ensurePermissions checks the caller holds every named permission.
// Writes the 403 response itself and reports whether to proceed.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, required ...string) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrAuthRequired)
		return false
	}
	ok, missing, err := a.resolver.HasAll(r.Context(), identity.ID, required)
	if err != nil {
		handleAuthError(w, r, err)
		return false
	}
	if !ok {
		handleAuthError(w, r, &auth.AccessDeniedError{MissingPermissions: missing})
		return false
	}
	return true
}

// ensureRoles passes when the caller holds at least one of the named
// roles, either assigned directly or implied through the role
// hierarchy. A denial reports the full required list.
func (a *API) ensureRoles(w http.ResponseWriter, r *http.Request, required ...string) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrAuthRequired)
		return false
	}
	held, err := a.rbac.UserRoleNames(r.Context(), identity.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return false
	}
	for _, name := range required {
		if _, ok := held[name]; ok {
			return true
		}
	}
	handleAuthError(w, r, &auth.AccessDeniedError{MissingRoles: required})
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
