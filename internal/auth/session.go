package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionManager orchestrates the credential lifecycle: login issues a
// pair, refresh rotates it, logout and RevokeAll end it. Each pair
// moves Issued → Active → {Rotated | Revoked | Expired}; none of the
// terminal states ever transitions back.
type SessionManager struct {
	store     Store
	codec     *TokenCodec
	blacklist *Blacklist
	hasher    Hasher
	now       func() time.Time
}

// SessionOption configures SessionManager.
type SessionOption func(*SessionManager)

// WithSessionClock overrides the time source (tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(store Store, codec *TokenCodec, blacklist *Blacklist, hasher Hasher, opts ...SessionOption) (*SessionManager, error) {
	if store == nil || codec == nil || blacklist == nil {
		return nil, errors.New("store, codec and blacklist are required")
	}
	m := &SessionManager{
		store:     store,
		codec:     codec,
		blacklist: blacklist,
		hasher:    hasher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Blacklist exposes the revocation cache so the HTTP layer can revoke
// the outstanding access token on logout.
func (m *SessionManager) Blacklist() *Blacklist { return m.blacklist }

// Register creates a user account and immediately issues a credential
// pair. Duplicate emails fail with ErrConflict.
func (m *SessionManager) Register(ctx context.Context, email, password, firstName, lastName string) (*User, TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, TokenPair{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, TokenPair{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	user := &User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Status:       UserStatusActive,
	}
	if err := m.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, TokenPair{}, storeErr(err)
	}
	pair, err := m.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Login authenticates email/password credentials and issues a fresh
// pair. Unknown email and wrong password fail identically to prevent
// user enumeration.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	user, err := m.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, storeErr(err)
	}
	if !user.IsActive() {
		return nil, TokenPair{}, ErrAccountDisabled
	}
	if err := m.hasher.Verify(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	pair, err := m.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the old record is revoked and a
// brand-new pair bound to a new token id is issued. Rotation is
// single-use — replaying an already-rotated token fails exactly like
// any other invalid token, which makes theft observable.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*User, TokenPair, error) {
	if _, err := m.codec.Verify(TokenKindRefresh, refreshToken); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens := m.store.RefreshTokens(ctx)
	record, err := tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, storeErr(err)
	}
	if record.RevokedAt != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if m.now().After(record.ExpiresAt) {
		return nil, TokenPair{}, ErrTokenExpired
	}
	user, err := m.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, storeErr(err)
	}
	if !user.IsActive() {
		return nil, TokenPair{}, ErrAccountDisabled
	}

	// The conditional revoke is the rotation's linearization point: of
	// two concurrent refreshes with the same token, exactly one flips
	// revoked_at and proceeds; the loser sees revoked=false here.
	revoked, err := tokens.Revoke(ctx, record.ID)
	if err != nil {
		return nil, TokenPair{}, storeErr(err)
	}
	if !revoked {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := m.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Logout verifies a refresh token and revokes its record. It does not
// touch the outstanding access token; callers wanting immediate
// access-token invalidation add it to the blacklist separately.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	if _, err := m.codec.Verify(TokenKindRefresh, refreshToken); err != nil {
		return ErrInvalidCredentials
	}
	tokens := m.store.RefreshTokens(ctx)
	record, err := tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return storeErr(err)
	}
	if record.RevokedAt != nil {
		return ErrInvalidCredentials
	}
	if _, err := tokens.Revoke(ctx, record.ID); err != nil {
		return storeErr(err)
	}
	return nil
}

// RevokeAll revokes every active refresh record for the user, e.g. on
// password change or a security incident.
func (m *SessionManager) RevokeAll(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := m.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID); err != nil {
		return storeErr(err)
	}
	return nil
}

// AuthenticateRequest verifies an access token, consults the
// blacklist, loads the subject and returns its identity view. The
// returned view never includes the password hash.
func (m *SessionManager) AuthenticateRequest(ctx context.Context, accessToken string) (IdentityView, error) {
	claims, err := m.codec.Verify(TokenKindAccess, accessToken)
	if err != nil {
		return IdentityView{}, ErrInvalidCredentials
	}
	if m.blacklist.IsRevoked(accessToken) {
		return IdentityView{}, ErrInvalidCredentials
	}
	user, err := m.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return IdentityView{}, ErrInvalidCredentials
		}
		return IdentityView{}, storeErr(err)
	}
	if !user.IsActive() {
		return IdentityView{}, ErrAccountDisabled
	}
	return ViewOf(user), nil
}

// issuePair mints an access+refresh pair bound to a fresh token id and
// persists the refresh record.
func (m *SessionManager) issuePair(ctx context.Context, user *User) (TokenPair, error) {
	tokenID := uuid.NewString()
	access, accessExp, err := m.codec.IssueAccess(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := m.codec.IssueRefresh(user.ID, tokenID)
	if err != nil {
		return TokenPair{}, err
	}
	record := &RefreshTokenRecord{
		ID:        tokenID,
		Token:     refresh,
		UserID:    user.ID,
		ExpiresAt: refreshExp,
	}
	if err := m.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return TokenPair{}, storeErr(err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
