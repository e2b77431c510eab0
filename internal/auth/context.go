package auth

import "context"

type contextKey struct{}

// WithClaims returns a context carrying the validated claims for a request.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext retrieves the claims stored by WithClaims. The second return is
// false for requests that bypassed the middleware, such as health checks.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}
