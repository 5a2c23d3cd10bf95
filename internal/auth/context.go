package auth

import (
	"context"
	"errors"
	"fmt"
)

type contextKey struct{}

// ErrForbidden is returned by Authorize when the claims lack the scope.
var ErrForbidden = errors.New("scope not granted")

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Authorize checks the request identity for scope. It returns ErrMissingToken
// when no claims are attached and ErrForbidden when the scope is absent.
func Authorize(ctx context.Context, scope Scope) (*Claims, error) {
	claims, ok := FromContext(ctx)
	if !ok {
		return nil, ErrMissingToken
	}
	if !claims.HasScope(scope) {
		return claims, fmt.Errorf("%w: %s requires %s", ErrForbidden, claims.Subject, scope)
	}
	return claims, nil
}
