package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenKind distinguishes the two credential types. Access and refresh
// tokens are signed with independent secrets so a leaked access secret
// cannot be used to mint refresh tokens, and vice versa.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims is the payload carried by both token kinds. Email is set on
// access tokens only, TokenID on refresh tokens only.
type Claims struct {
	Email   string `json:"email,omitempty"`
	TokenID string `json:"tokenId,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies compact bearer tokens using HS256.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// CodecOption configures TokenCodec.
type CodecOption func(*TokenCodec)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if ttl >= 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if ttl >= 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithIssuer sets the iss claim stamped on issued tokens.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) { c.issuer = strings.TrimSpace(issuer) }
}

// WithCodecClock overrides the time source (tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec constructs a codec. Both secrets are required and must
// differ; sharing one secret across kinds collapses the blast-radius
// separation between short-lived and long-lived credentials.
func NewTokenCodec(accessSecret, refreshSecret string, opts ...CodecOption) (*TokenCodec, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("%w: both token secrets are required", ErrInvalidInput)
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidInput)
	}
	c := &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs an access token for the user.
func (c *TokenCodec) IssueAccess(userID, email string) (string, time.Time, error) {
	return c.issue(TokenKindAccess, Claims{Email: email}, userID, c.accessTTL)
}

// IssueRefresh signs a refresh token bound to tokenID. The tokenID ties
// the wire token to its RefreshTokenRecord.
func (c *TokenCodec) IssueRefresh(userID, tokenID string) (string, time.Time, error) {
	return c.issue(TokenKindRefresh, Claims{TokenID: tokenID}, userID, c.refreshTTL)
}

func (c *TokenCodec) issue(kind TokenKind, claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secretFor(kind))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// Verify checks signature and expiry for the given kind and returns the
// claims. Expired tokens fail with ErrTokenExpired, anything malformed
// with ErrInvalidToken; the HTTP boundary maps both to one 401 outcome
// so callers cannot distinguish the failure mode.
func (c *TokenCodec) Verify(kind TokenKind, tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secretFor(kind), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrInvalidToken
	}
	if kind == TokenKindRefresh && claims.TokenID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// DecodeUnverified reads claims without checking the signature. It
// exists solely so the revocation cache can learn a token's expiry;
// it must never gate access.
func (c *TokenCodec) DecodeUnverified(tokenString string) (*Claims, bool) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(tokenString), claims); err != nil {
		return nil, false
	}
	return claims, true
}

func (c *TokenCodec) secretFor(kind TokenKind) []byte {
	if kind == TokenKindRefresh {
		return c.refreshSecret
	}
	return c.accessSecret
}
