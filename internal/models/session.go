package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the persisted lifecycle state of a session. It reflects what the
// repository last recorded, not necessarily what the runtime is doing right
// now; reads merge it with a live runtime check to produce an effective
// status.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusStopping   Status = "stopping"
	StatusIdle       Status = "idle"
	StatusTerminated Status = "terminated"
	StatusError      Status = "error"
)

// ValidStatus reports whether s is one of the known session statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusStarting, StatusRunning, StatusStopping, StatusIdle, StatusTerminated, StatusError:
		return true
	}
	return false
}

// Session is a long-running terminal-backed work session.
//
// OwnerID is nil for sessions created before ownership was introduced; those
// legacy sessions are universally accessible.
type Session struct {
	ID      uuid.UUID `json:"id"`
	OwnerID *string   `json:"ownerId,omitempty"`
	Name    string    `json:"name"`

	IsPublic bool   `json:"isPublic"`
	Status   Status `json:"status"`

	// WorkspaceID links the session to its provisioned workspace.
	WorkspaceID *uuid.UUID `json:"workspaceId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Owned reports whether the session has an owner. Ownerless sessions predate
// ownership and bypass all ownership checks.
func (s *Session) Owned() bool {
	return s.OwnerID != nil && *s.OwnerID != ""
}

// OwnedBy reports whether userID owns the session.
func (s *Session) OwnedBy(userID string) bool {
	return s.Owned() && *s.OwnerID == userID
}
