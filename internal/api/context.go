package api

import (
	"context"
	"errors"

	"github.com/hyperengineering/fieldops/internal/types"
)

// userContextKey is the context key for the acting user.
type userContextKey struct{}

// ErrNoUserInContext indicates no user was found in the context.
var ErrNoUserInContext = errors.New("no user in context")

// WithUser returns a new context with the acting user attached.
func WithUser(ctx context.Context, u *types.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext extracts the acting user from the context.
// Returns ErrNoUserInContext if not present or nil.
func UserFromContext(ctx context.Context) (*types.User, error) {
	u, ok := ctx.Value(userContextKey{}).(*types.User)
	if !ok || u == nil {
		return nil, ErrNoUserInContext
	}
	return u, nil
}

// MustUserFromContext extracts the user or panics.
// Use only behind UserMiddleware.
func MustUserFromContext(ctx context.Context) *types.User {
	u, err := UserFromContext(ctx)
	if err != nil {
		panic("user not in context: middleware misconfiguration")
	}
	return u
}
