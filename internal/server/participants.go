package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/coterm/coterm/internal/auth"
	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/presence"
)

// handleListParticipants returns the current participants in join order.
// Clients poll this endpoint; it is an idempotent full-list snapshot.
// Presenting a share token here validates it without burning a use.
func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorizeRead(w, r, sess, false); !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"participants": s.presence.List(sess.ID),
	})
}

type joinSessionRequest struct {
	Name       string            `json:"name"`
	Permission models.Permission `json:"permission,omitempty"`
}

// handleJoinSession adds the caller to a session's presence. Joining is gated
// by the same access policy as reading the session, and a join that rides on
// a share token redeems it. The granted permission comes from the caller's
// standing: owners join as owner, token holders get the token's permission,
// everyone else gets what they asked for (view by default).
func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var req joinSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeValidationError(w, "name is required")
		return
	}
	if len(req.Name) > 100 {
		writeValidationError(w, "name must be at most 100 characters")
		return
	}
	if req.Permission == "" {
		req.Permission = models.PermissionView
	}
	if !models.ValidTokenPermission(req.Permission) {
		writeValidationError(w, "permission must be view or interact")
		return
	}

	grantToken, ok := s.authorizeRead(w, r, sess, true)
	if !ok {
		return
	}

	ident := auth.IdentityFromContext(r.Context())

	permission := req.Permission
	switch {
	case ident != nil && sess.OwnedBy(ident.UserID):
		permission = models.PermissionOwner
	case grantToken != nil:
		permission = grantToken.Permission
	}

	participant := s.presence.Join(sess.ID, req.Name, permission, ident == nil)
	writeJSON(w, http.StatusCreated, participant)
}

// handleLeaveSession removes a participant. Leaving is idempotent: an
// unknown participant id is a successful no-op.
func (s *Server) handleLeaveSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeNotFound(w, "session")
		return
	}

	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		writeValidationError(w, "participantId is required")
		return
	}

	s.presence.Leave(id, participantID)
	w.WriteHeader(http.StatusNoContent)
}

type heartbeatRequest struct {
	CursorPosition *models.CursorPosition `json:"cursorPosition,omitempty"`
}

// handleHeartbeat refreshes a participant's presence and optionally its
// cursor position. Participants that stop heartbeating are swept out by the
// stale eviction loop.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeNotFound(w, "session")
		return
	}

	var req heartbeatRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeValidationError(w, err.Error())
			return
		}
	}

	err := s.presence.Heartbeat(id, r.PathValue("pid"), req.CursorPosition)
	if err != nil {
		if errors.Is(err, presence.ErrParticipantNotFound) {
			writeNotFound(w, "participant")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
