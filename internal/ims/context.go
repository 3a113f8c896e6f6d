package ims

import "context"

type contextKey string

const (
	claimsKey contextKey = "ims_claims"
	tokenKey  contextKey = "ims_token"
)

// ContextWithAuth stores the validated claims and the raw bearer token on
// the context. The raw token is kept so handlers can pass it through to
// the console API on the caller's behalf.
func ContextWithAuth(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, tokenKey, token)
}

// ClaimsFromContext returns the validated claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// TokenFromContext returns the raw bearer token, or "" for anonymous
// requests.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}
