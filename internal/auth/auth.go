// Package auth resolves caller identity for the access policy. Actual
// authentication happens upstream: this package only extracts the
// already-resolved identity from a signed bearer token, or marks the request
// anonymous, or bypasses identity entirely when auth is disabled.
package auth

import (
	"context"
)

// Role is a coarse caller role carried in the identity claims.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the resolved caller. A nil *Identity means the caller is
// anonymous.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

type contextKey int

const identityContextKey contextKey = iota

// WithIdentity stores the resolved identity in the request context.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, ident)
}

// IdentityFromContext returns the resolved identity, or nil if the caller is
// anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(identityContextKey).(*Identity)
	return ident
}
