package auth

import (
	"context"
	"sort"
)

// PermissionResolver aggregates the permissions reachable from a
// user's assigned roles into a set.
//
// Aggregation reads direct role→permission edges only; it does not
// walk the role hierarchy. This is asymmetric with role-name checks,
// where holding a role also satisfies checks for its ancestors. The
// asymmetry is inherited behavior that downstream authorization
// depends on, so it is preserved rather than reconciled; see
// DESIGN.md before changing it.
type PermissionResolver struct {
	store Store
}

// NewPermissionResolver constructs a resolver over the store.
func NewPermissionResolver(store Store) *PermissionResolver {
	return &PermissionResolver{store: store}
}

// PermissionsFor returns the deduplicated permission names granted to
// the user through directly assigned roles.
func (r *PermissionResolver) PermissionsFor(ctx context.Context, userID string) (map[string]struct{}, error) {
	assignments, err := r.store.Roles(ctx).Assignments(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	set := make(map[string]struct{})
	for _, a := range assignments {
		perms, err := r.store.Permissions(ctx).ForRole(ctx, a.RoleID)
		if err != nil {
			return nil, storeErr(err)
		}
		for _, p := range perms {
			set[p.Name] = struct{}{}
		}
	}
	return set, nil
}

// HasAll reports whether the user holds every required permission and,
// when not, which ones are missing (sorted, for stable diagnostics).
func (r *PermissionResolver) HasAll(ctx context.Context, userID string, required []string) (bool, []string, error) {
	if len(required) == 0 {
		return true, nil, nil
	}
	held, err := r.PermissionsFor(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	var missing []string
	for _, name := range required {
		if _, ok := held[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return false, missing, nil
	}
	return true, nil, nil
}
