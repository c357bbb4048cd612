package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"keygate.org/internal/auth"
)

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps the auth error taxonomy onto HTTP statuses.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *auth.AccessDeniedError
	switch {
	case errors.As(err, &denied):
		payload := map[string]any{"error": denied.Error()}
		if len(denied.MissingRoles) > 0 {
			payload["missing_roles"] = denied.MissingRoles
		}
		if len(denied.MissingPermissions) > 0 {
			payload["missing_permissions"] = denied.MissingPermissions
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrAuthRequired):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidHierarchy),
		errors.Is(err, auth.ErrCycleDetected):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
