package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/jwt"
)

type claimsContextKey struct{}

// WithClaims attaches verified token claims to ctx. The middleware package
// calls it after a successful bearer check.
func WithClaims(ctx context.Context, claims jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims attached by WithClaims.
func ClaimsFromContext(ctx context.Context) (jwt.Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsContextKey{}).(jwt.Claims)
	return claims, ok && claims != nil
}
