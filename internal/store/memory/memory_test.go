package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keygate.org/internal/auth"
)

func TestUserEmailUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Users(ctx).Create(ctx, &auth.User{Email: "a@b.com", Status: auth.UserStatusActive}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Users(ctx).Create(ctx, &auth.User{Email: "a@b.com", Status: auth.UserStatusActive})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateDoesNotAliasCallerStruct(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := &auth.User{Email: "a@b.com", Status: auth.UserStatusActive}
	if err := s.Users(ctx).Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	u.Email = "mutated@b.com"

	got, err := s.Users(ctx).Find(ctx, u.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Email != "a@b.com" {
		t.Fatalf("store aliased caller memory: %s", got.Email)
	}
}

func TestRevokeIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &auth.RefreshTokenRecord{
		ID:        "tok-1",
		Token:     "raw",
		UserID:    "u1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	won, err := s.RefreshTokens(ctx).Revoke(ctx, "tok-1")
	if err != nil || !won {
		t.Fatalf("first revoke: won=%v err=%v", won, err)
	}
	won, err = s.RefreshTokens(ctx).Revoke(ctx, "tok-1")
	if err != nil || won {
		t.Fatalf("second revoke: won=%v err=%v", won, err)
	}
}

func TestRevokeRaceSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &auth.RefreshTokenRecord{
		ID:        "tok-1",
		Token:     "raw",
		UserID:    "u1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const racers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.RefreshTokens(ctx).Revoke(ctx, "tok-1")
			if err != nil {
				t.Errorf("Revoke: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestRolePermissionLinks(t *testing.T) {
	s := New()
	ctx := context.Background()

	role := &auth.Role{Name: "editor"}
	if err := s.Roles(ctx).Create(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	p1 := &auth.Permission{Name: "doc:edit", Resource: "doc", Action: "edit"}
	p2 := &auth.Permission{Name: "doc:read", Resource: "doc", Action: "read"}
	for _, p := range []*auth.Permission{p1, p2} {
		if err := s.Permissions(ctx).Create(ctx, p); err != nil {
			t.Fatalf("create permission: %v", err)
		}
	}

	if err := s.Permissions(ctx).SetForRole(ctx, role.ID, []string{p1.ID, p2.ID}); err != nil {
		t.Fatalf("SetForRole: %v", err)
	}
	perms, err := s.Permissions(ctx).ForRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("ForRole: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}

	// Replacement drops stale links.
	if err := s.Permissions(ctx).SetForRole(ctx, role.ID, []string{p2.ID}); err != nil {
		t.Fatalf("SetForRole: %v", err)
	}
	perms, err = s.Permissions(ctx).ForRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("ForRole: %v", err)
	}
	if len(perms) != 1 || perms[0].Name != "doc:read" {
		t.Fatalf("unexpected permissions after replace: %v", perms)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Permissions(ctx).Ensure(ctx, auth.BuiltinPermissions); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := s.Permissions(ctx).Ensure(ctx, auth.BuiltinPermissions); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	perms, err := s.Permissions(ctx).List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(perms) != len(auth.BuiltinPermissions) {
		t.Fatalf("expected %d permissions, got %d", len(auth.BuiltinPermissions), len(perms))
	}
}
