package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission is the level of access a participant or share token carries.
type Permission string

const (
	PermissionOwner    Permission = "owner"
	PermissionView     Permission = "view"
	PermissionInteract Permission = "interact"
)

// ValidTokenPermission reports whether p is a permission a share token may
// carry. Owner permission is never delegated through a token.
func ValidTokenPermission(p Permission) bool {
	return p == PermissionView || p == PermissionInteract
}

// ShareToken is an opaque capability scoped to a single session. Anyone
// holding the token string gets the token's permission on that session,
// subject to expiry and use limits; there is no per-user ACL.
type ShareToken struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`

	// Token is the raw capability string. It is returned once on creation
	// and must never appear in list output.
	Token string `json:"token,omitempty"`

	Permission     Permission `json:"permission"`
	AllowAnonymous bool       `json:"allowAnonymous"`

	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"` // nil means never expires
	MaxUses   *int       `json:"maxUses,omitempty"`   // nil means unlimited
	UseCount  int        `json:"useCount"`
}

// Expired reports whether the token's expiry has passed. A token expiring at
// exactly now is expired.
func (t *ShareToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Exhausted reports whether the token's use limit has been reached. A token
// with MaxUses of zero is unusable from creation.
func (t *ShareToken) Exhausted() bool {
	return t.MaxUses != nil && t.UseCount >= *t.MaxUses
}

// Valid reports whether the token may still be redeemed.
func (t *ShareToken) Valid(now time.Time) bool {
	return !t.Expired(now) && !t.Exhausted()
}
