package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/coterm/coterm/internal/access"
	"github.com/coterm/coterm/internal/auth"
	httpmiddleware "github.com/coterm/coterm/internal/http"
	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/runtime"
	"github.com/coterm/coterm/internal/store"
	"github.com/coterm/coterm/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sessionView is the session as returned to callers: the persisted record
// plus the effective status computed against the live runtime.
type sessionView struct {
	ID              string        `json:"id"`
	OwnerID         *string       `json:"ownerId,omitempty"`
	Name            string        `json:"name"`
	IsPublic        bool          `json:"isPublic"`
	Status          models.Status `json:"status"`
	EffectiveStatus models.Status `json:"effectiveStatus"`
	PID             *int          `json:"pid,omitempty"`
	WorkspaceID     *string       `json:"workspaceId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func toSessionView(sess *models.Session, effective models.Status, pid int) sessionView {
	view := sessionView{
		ID:              sess.ID.String(),
		OwnerID:         sess.OwnerID,
		Name:            sess.Name,
		IsPublic:        sess.IsPublic,
		Status:          sess.Status,
		EffectiveStatus: effective,
		CreatedAt:       sess.CreatedAt,
		UpdatedAt:       sess.UpdatedAt,
	}
	if sess.WorkspaceID != nil {
		ws := sess.WorkspaceID.String()
		view.WorkspaceID = &ws
	}
	if effective == models.StatusRunning && pid > 0 {
		view.PID = &pid
	}
	return view
}

// sessionID parses the {id} path value, translating parse failures into a
// not-found so malformed ids are indistinguishable from missing sessions.
func sessionID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// loadSession fetches the session record and writes the error response when
// it cannot be served.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	id, ok := sessionID(r)
	if !ok {
		writeNotFound(w, "session")
		return nil, false
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeNotFound(w, "session")
		} else {
			writeInternalError(w, r, err)
		}
		return nil, false
	}
	return sess, true
}

// authorizeRead applies the read-access policy, including share token
// handling. When access hinges on the presented token (the caller has no
// standing of their own) the token is atomically redeemed; redemption losing
// the race to the last use denies the request. Mere validation never burns a
// use.
func (s *Server) authorizeRead(w http.ResponseWriter, r *http.Request, sess *models.Session, redeem bool) (*models.ShareToken, bool) {
	ctx := r.Context()
	ident := auth.IdentityFromContext(ctx)

	var token *models.ShareToken
	tokenStr := httpmiddleware.ShareTokenFromRequest(r)
	if tokenStr != "" {
		t, err := s.tokens.GetByToken(ctx, tokenStr)
		if err == nil {
			token = t
		} else if !errors.Is(err, store.ErrShareTokenNotFound) {
			writeInternalError(w, r, err)
			return nil, false
		}
	}

	if !access.CanAccess(sess, ident, s.authDisabled, token) {
		writeAccessDenied(w, r)
		return nil, false
	}

	// The token carried the decision only if access fails without it
	tokenGranted := token != nil && !access.CanAccess(sess, ident, s.authDisabled, nil)
	if tokenGranted && redeem {
		redeemed, err := s.tokens.Redeem(ctx, tokenStr)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrShareTokenNotFound),
				errors.Is(err, store.ErrShareTokenExpired),
				errors.Is(err, store.ErrShareTokenExhausted):
				// Lost the race to the last use, or revoked in between
				telemetry.GetMetrics().TokenRejectionsTotal.Add(ctx, 1)
				writeAccessDenied(w, r)
			default:
				writeInternalError(w, r, err)
			}
			return nil, false
		}
		telemetry.GetMetrics().TokenRedemptionsTotal.Add(ctx, 1)
		return redeemed, true
	}

	if tokenGranted {
		return token, true
	}
	return nil, true
}

// authorizeWrite applies the mutation policy: owner or auth disabled, never a
// share token.
func (s *Server) authorizeWrite(w http.ResponseWriter, r *http.Request, sess *models.Session) bool {
	if !access.CanModify(sess, auth.IdentityFromContext(r.Context()), s.authDisabled) {
		writeAccessDenied(w, r)
		return false
	}
	return true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	if _, ok := s.authorizeRead(w, r, sess, true); !ok {
		return
	}

	rt := s.runtime.SafeStatus(r.Context(), sess.ID)
	writeJSON(w, http.StatusOK, toSessionView(sess, access.EffectiveStatus(sess.Status, rt), rt.PID))
}

// handleListSessions returns the sessions visible to the caller: owned,
// public and legacy ownerless records. Statuses are as persisted; the
// effective-status merge happens on individual session reads, not here, to
// keep listing from fanning out runtime calls.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())

	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		if !access.CanAccess(sess, ident, s.authDisabled, nil) {
			continue
		}
		views = append(views, toSessionView(sess, sess.Status, 0))
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

type updateSessionRequest struct {
	Name     *string `json:"name,omitempty"`
	IsPublic *bool   `json:"isPublic,omitempty"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !s.authorizeWrite(w, r, sess) {
		return
	}

	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if req.Name == nil && req.IsPublic == nil {
		writeValidationError(w, "nothing to update")
		return
	}
	if req.Name != nil && (*req.Name == "" || len(*req.Name) > 200) {
		writeValidationError(w, "name must be between 1 and 200 characters")
		return
	}

	if req.Name != nil {
		sess.Name = *req.Name
	}
	if req.IsPublic != nil {
		sess.IsPublic = *req.IsPublic
	}

	if err := s.sessions.Update(r.Context(), sess); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeNotFound(w, "session")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionView(sess, sess.Status, 0))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !s.authorizeWrite(w, r, sess) {
		return
	}

	ctx := r.Context()

	// Best-effort remote stop before dropping the record; a dead runtime
	// must not make sessions undeletable
	if err := s.runtime.Stop(ctx, sess.ID, true); err != nil && !errors.Is(err, runtime.ErrNotRunning) {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("session_id", sess.ID.String()).
			Msg("Best-effort stop before delete failed")
	}

	if _, err := s.tokens.DeleteBySession(ctx, sess.ID); err != nil {
		writeInternalError(w, r, err)
		return
	}
	s.presence.DropSession(sess.ID)

	if err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		writeInternalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type stopSessionRequest struct {
	Force bool `json:"force"`
}

type stopSessionResponse struct {
	Stopped bool          `json:"stopped"`
	Status  models.Status `json:"status"`
}

// handleStopSession stops the session's runtime process. Stopping an
// already-stopped session succeeds; the runtime reporting "not running" is
// the desired state, not an error.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !s.authorizeWrite(w, r, sess) {
		return
	}

	var req stopSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeValidationError(w, err.Error())
			return
		}
	}

	ctx := r.Context()
	err := s.runtime.Stop(ctx, sess.ID, req.Force)
	switch {
	case err == nil:
		if err := s.sessions.UpdateStatus(ctx, sess.ID, models.StatusIdle); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stopSessionResponse{Stopped: true, Status: models.StatusIdle})
	case errors.Is(err, runtime.ErrNotRunning):
		// Already stopped; leave the persisted status alone
		writeJSON(w, http.StatusOK, stopSessionResponse{Stopped: true, Status: sess.Status})
	default:
		// The caller needs to know the stop may not have happened
		writeError(w, http.StatusBadGateway, KindRuntimeUnavailable, err.Error())
	}
}
