package models

import (
	"time"

	"github.com/google/uuid"
)

// CursorPosition is a participant's last reported editing position.
type CursorPosition struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Filename string `json:"filename,omitempty"`
}

// Participant is a user currently joined to a session. Presence is ephemeral
// and best-effort: records live only as long as the participant keeps
// heartbeating, and are never persisted across the session's lifetime.
//
// The ID is unique within a session, not globally.
type Participant struct {
	ID        string    `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`

	Name       string     `json:"name"`
	Color      string     `json:"color"`
	Permission Permission `json:"permission"`

	IsAnonymous bool `json:"isAnonymous"`

	JoinedAt   time.Time       `json:"joinedAt"`
	LastSeenAt time.Time       `json:"lastSeenAt"`
	Cursor     *CursorPosition `json:"cursorPosition,omitempty"`
}
