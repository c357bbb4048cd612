package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keygate.org/internal/auth"
	"keygate.org/internal/store/memory"
)

func newSessionFixture(t *testing.T, codecOpts ...auth.CodecOption) (*auth.SessionManager, auth.Store) {
	t.Helper()
	codec, err := auth.NewTokenCodec("access-secret", "refresh-secret", codecOpts...)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	store := memory.New()
	sessions, err := auth.NewSessionManager(store, codec, auth.NewBlacklist(codec), auth.NewHasher(4))
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return sessions, store
}

func TestRegisterAndLogin(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	user, pair, err := sessions.Register(ctx, "Ada@Example.com", "hunter22", "Ada", "Lovelace")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens issued")
	}

	if _, _, err := sessions.Register(ctx, "ada@example.com", "other", "", ""); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate email: expected ErrConflict, got %v", err)
	}

	if _, _, err := sessions.Login(ctx, "ada@example.com", "hunter22"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, _, err := sessions.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	// Unknown email fails identically to a wrong password.
	if _, _, err := sessions.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	sessions, store := newSessionFixture(t)
	ctx := context.Background()

	user, _, err := sessions.Register(ctx, "a@b.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	user.Status = auth.UserStatusDisabled
	if err := store.Users(ctx).Update(ctx, user); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := sessions.Login(ctx, "a@b.com", "pw"); !errors.Is(err, auth.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	_, pair, err := sessions.Register(ctx, "a@b.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, next, err := sessions.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation reissued the same refresh token")
	}

	// Replaying the consumed token must fail like any bad credential.
	if _, _, err := sessions.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("replay: expected ErrInvalidCredentials, got %v", err)
	}

	// The rotated-out pair's successor still works.
	if _, _, err := sessions.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("second rotation: %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	if _, _, err := sessions.Refresh(context.Background(), "not-a-token"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	_, pair, err := sessions.Register(ctx, "a@b.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	const racers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := sessions.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			if errors.Is(err, auth.ErrInvalidCredentials) {
				errs++
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if errs != racers-1 {
		t.Fatalf("expected %d losers with ErrInvalidCredentials, got %d", racers-1, errs)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	_, pair, err := sessions.Register(ctx, "a@b.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := sessions.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := sessions.Logout(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("double logout: expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := sessions.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("refresh after logout: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRevokeAllEndsEverySession(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	user, first, err := sessions.Register(ctx, "a@b.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, second, err := sessions.Login(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := sessions.RevokeAll(ctx, user.ID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, _, err := sessions.Refresh(ctx, token); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("refresh after RevokeAll: expected ErrInvalidCredentials, got %v", err)
		}
	}
}

func TestAuthenticateRequest(t *testing.T) {
	sessions, _ := newSessionFixture(t)
	ctx := context.Background()

	user, pair, err := sessions.Register(ctx, "a@b.com", "pw", "Ada", "L")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	identity, err := sessions.AuthenticateRequest(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if identity.ID != user.ID || identity.Email != "a@b.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	// Blacklisting the access token denies it immediately even though
	// the signature and expiry are still valid.
	sessions.Blacklist().Add(pair.AccessToken)
	if _, err := sessions.AuthenticateRequest(ctx, pair.AccessToken); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("blacklisted token: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshExpiredRecord(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	codec, err := auth.NewTokenCodec("access-secret", "refresh-secret", auth.WithCodecClock(clock))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	store := memory.New()
	sessions, err := auth.NewSessionManager(store, codec, auth.NewBlacklist(codec), auth.NewHasher(4),
		auth.WithSessionClock(clock))
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	ctx := context.Background()

	_, pair, err := sessions.Register(ctx, "a@b.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Jump past the refresh lifetime; the JWT itself reports expiry.
	now = now.Add(8 * 24 * time.Hour)
	if _, _, err := sessions.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("expected expired refresh to fail")
	}
}
