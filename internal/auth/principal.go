package auth

import (
	"context"

	"coursehub/internal/models"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   models.Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == models.RoleAdmin
}

// Is reports whether the principal is the given user.
func (p *Principal) Is(userID string) bool {
	return p != nil && p.UserID == userID
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
