package auth

import (
	"context"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/google/uuid"
)

// UserContext holds authenticated user information for one request
type UserContext struct {
	UserID uuid.UUID
	Email  string
	Role   domain.UserRole
	// ImpersonatedBy is set when this session was minted by an admin
	// acting as the user.
	ImpersonatedBy *uuid.UUID
	// Token is the raw bearer token, kept for logout.
	Token string
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok
}

// MustFromContext extracts user context or panics
func MustFromContext(ctx context.Context) *UserContext {
	user, ok := FromContext(ctx)
	if !ok {
		panic("user context not found in context")
	}
	return user
}

// IsAdmin checks if the user holds the ADMIN role
func (u *UserContext) IsAdmin() bool {
	return u.Role == domain.RoleAdmin
}

// IsImpersonated reports whether this session was created via login-as-client
func (u *UserContext) IsImpersonated() bool {
	return u.ImpersonatedBy != nil
}
