package auth

import (
	"context"
	"strings"
)

// Context is the per-request authentication result. The zero value is anonymous.
type Context struct {
	UserID        uint
	Email         string
	Authenticated bool
}

// Anonymous returns an unauthenticated context.
func Anonymous() Context {
	return Context{}
}

// Resolve turns a raw bearer token into a Context. Missing or invalid tokens
// yield an anonymous context, never an error.
func (t *TokenIssuer) Resolve(raw string) Context {
	if raw == "" {
		return Anonymous()
	}
	claims, err := t.Verify(raw)
	if err != nil {
		return Anonymous()
	}
	return Context{UserID: claims.UserID, Email: claims.Email, Authenticated: true}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type ctxKey struct{}

// WithContext stores ac in ctx.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext returns the Context stored in ctx, or an anonymous one.
func FromContext(ctx context.Context) Context {
	if ac, ok := ctx.Value(ctxKey{}).(Context); ok {
		return ac
	}
	return Anonymous()
}
