package auth

import (
	"context"
	"fmt"
)

// RoleGraph is an in-memory index over the role forest, built once
// from the store's flat role list so hierarchy walks never hit the
// store per step. Rebuild the graph whenever a role's parent changes.
type RoleGraph struct {
	byID     map[string]*Role
	byName   map[string]*Role
	children map[string][]string // parent id -> child ids
}

// BuildRoleGraph loads every role and indexes parent and child edges.
func BuildRoleGraph(ctx context.Context, roles RoleStore) (*RoleGraph, error) {
	list, err := roles.List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return NewRoleGraph(list), nil
}

// NewRoleGraph indexes an already-loaded role list.
func NewRoleGraph(roles []*Role) *RoleGraph {
	g := &RoleGraph{
		byID:     make(map[string]*Role, len(roles)),
		byName:   make(map[string]*Role, len(roles)),
		children: make(map[string][]string),
	}
	for _, r := range roles {
		g.byID[r.ID] = r
		g.byName[r.Name] = r
		if r.ParentRoleID != "" {
			g.children[r.ParentRoleID] = append(g.children[r.ParentRoleID], r.ID)
		}
	}
	return g
}

// Role returns a role by id.
func (g *RoleGraph) Role(id string) (*Role, bool) {
	r, ok := g.byID[id]
	return r, ok
}

// RoleByName returns a role by its unique name.
func (g *RoleGraph) RoleByName(name string) (*Role, bool) {
	r, ok := g.byName[name]
	return r, ok
}

// Parents returns the names of every ancestor of the role, nearest
// first, by walking parent pointers until the root. A revisited role
// fails with ErrCycleDetected; that guards against corrupted data, not
// a normal path, since parent assignment rejects cycles up front.
func (g *RoleGraph) Parents(roleID string) ([]string, error) {
	role, ok := g.byID[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	seen := map[string]struct{}{role.ID: {}}
	var names []string
	for role.ParentRoleID != "" {
		parent, ok := g.byID[role.ParentRoleID]
		if !ok {
			break
		}
		if _, dup := seen[parent.ID]; dup {
			return nil, fmt.Errorf("%w: via role %s", ErrCycleDetected, parent.Name)
		}
		seen[parent.ID] = struct{}{}
		names = append(names, parent.Name)
		role = parent
	}
	return names, nil
}

// Children returns the names of every descendant of the role, walked
// recursively breadth-first.
func (g *RoleGraph) Children(roleID string) ([]string, error) {
	if _, ok := g.byID[roleID]; !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	var names []string
	seen := map[string]struct{}{roleID: {}}
	queue := append([]string(nil), g.children[roleID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: via role %s", ErrCycleDetected, id)
		}
		seen[id] = struct{}{}
		if child, ok := g.byID[id]; ok {
			names = append(names, child.Name)
		}
		queue = append(queue, g.children[id]...)
	}
	return names, nil
}

// ValidateParent rejects a parent assignment that would self-reference
// or close a cycle. It must run before any store write so a failed
// assignment leaves both roles untouched.
func (g *RoleGraph) ValidateParent(roleID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if roleID == parentID {
		return fmt.Errorf("%w: role cannot be its own parent", ErrInvalidHierarchy)
	}
	role, ok := g.byID[roleID]
	if !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	if _, ok := g.byID[parentID]; !ok {
		return fmt.Errorf("%w: parent role %s", ErrNotFound, parentID)
	}
	ancestors, err := g.Parents(parentID)
	if err != nil {
		return err
	}
	for _, name := range ancestors {
		if name == role.Name {
			return fmt.Errorf("%w: %s is an ancestor of the proposed parent", ErrInvalidHierarchy, role.Name)
		}
	}
	return nil
}
