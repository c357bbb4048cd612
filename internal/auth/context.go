package auth

import "context"

type identityContextKey struct{}
type tokenContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, identity IdentityView) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &identity)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (IdentityView, bool) {
	if ctx == nil {
		return IdentityView{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*IdentityView)
	if !ok || v == nil {
		return IdentityView{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context so
// logout can blacklist the access token that authenticated the request.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
