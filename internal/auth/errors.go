package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password and any
	// bad, expired or replayed token. Callers must not be able to tell
	// which case occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = errors.New("account is deactivated")

	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken indicates a malformed token or a bad signature.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAuthRequired indicates no identity was resolved for the request.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInvalidHierarchy rejects role parent assignments that would
	// self-reference or close a cycle.
	ErrInvalidHierarchy = errors.New("invalid role hierarchy")

	// ErrCycleDetected is raised defensively when a hierarchy walk
	// revisits a role. It signals corrupted data, not a normal path.
	ErrCycleDetected = errors.New("role hierarchy cycle detected")

	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable wraps transport-level persistence failures.
	// The core never retries; retry policy belongs to the store client.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// AccessDeniedError reports an authorization failure along with the
// exact roles or permissions the principal lacked.
type AccessDeniedError struct {
	MissingRoles       []string
	MissingPermissions []string
}

func (e *AccessDeniedError) Error() string {
	switch {
	case len(e.MissingPermissions) > 0:
		return fmt.Sprintf("access denied: missing permissions: %s", strings.Join(e.MissingPermissions, ", "))
	case len(e.MissingRoles) > 0:
		return fmt.Sprintf("access denied: required roles: %s", strings.Join(e.MissingRoles, ", "))
	default:
		return "access denied"
	}
}

// storeErr normalizes unexpected persistence failures while letting
// taxonomy errors pass through untouched.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidInput):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
