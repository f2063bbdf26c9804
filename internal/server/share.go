package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/store"
	"github.com/google/uuid"
)

// shareTokenView is a share token as it appears in list output. The raw
// capability string is deliberately absent: it is returned exactly once, on
// creation.
type shareTokenView struct {
	ID             string            `json:"id"`
	SessionID      string            `json:"sessionId"`
	Permission     models.Permission `json:"permission"`
	AllowAnonymous bool              `json:"allowAnonymous"`
	CreatedAt      time.Time         `json:"createdAt"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	MaxUses        *int              `json:"maxUses,omitempty"`
	UseCount       int               `json:"useCount"`
}

func toShareTokenView(t *models.ShareToken) shareTokenView {
	return shareTokenView{
		ID:             t.ID.String(),
		SessionID:      t.SessionID.String(),
		Permission:     t.Permission,
		AllowAnonymous: t.AllowAnonymous,
		CreatedAt:      t.CreatedAt,
		ExpiresAt:      t.ExpiresAt,
		MaxUses:        t.MaxUses,
		UseCount:       t.UseCount,
	}
}

func (s *Server) handleListShareTokens(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !s.authorizeWrite(w, r, sess) {
		return
	}

	tokens, err := s.tokens.ListBySession(r.Context(), sess.ID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	views := make([]shareTokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, toShareTokenView(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{"tokens": views})
}

type createShareTokenRequest struct {
	Permission     models.Permission `json:"permission"`
	AllowAnonymous bool              `json:"allowAnonymous,omitempty"`
	ExpiresInHours *int              `json:"expiresInHours,omitempty"`
	MaxUses        *int              `json:"maxUses,omitempty"`
}

func (s *Server) handleCreateShareToken(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !s.authorizeWrite(w, r, sess) {
		return
	}

	var req createShareTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if !models.ValidTokenPermission(req.Permission) {
		writeValidationError(w, "permission must be view or interact")
		return
	}
	if req.ExpiresInHours != nil && *req.ExpiresInHours <= 0 {
		writeValidationError(w, "expiresInHours must be positive")
		return
	}
	if req.MaxUses != nil && *req.MaxUses < 0 {
		writeValidationError(w, "maxUses must not be negative")
		return
	}

	tokenStr, err := store.NewTokenString()
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	now := time.Now()
	token := &models.ShareToken{
		ID:             uuid.Must(uuid.NewV7()),
		SessionID:      sess.ID,
		Token:          tokenStr,
		Permission:     req.Permission,
		AllowAnonymous: req.AllowAnonymous,
		CreatedAt:      now,
		MaxUses:        req.MaxUses,
	}
	if req.ExpiresInHours != nil {
		expires := now.Add(time.Duration(*req.ExpiresInHours) * time.Hour)
		token.ExpiresAt = &expires
	}

	if err := s.tokens.Create(r.Context(), token); err != nil {
		writeInternalError(w, r, err)
		return
	}

	// The only response that ever carries the raw token
	writeJSON(w, http.StatusCreated, token)
}

// handleRevokeShareTokens deletes one token (?tokenId=) or every token for
// the session.
func (s *Server) handleRevokeShareTokens(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !s.authorizeWrite(w, r, sess) {
		return
	}

	ctx := r.Context()

	rawID := r.URL.Query().Get("tokenId")
	if rawID == "" {
		count, err := s.tokens.DeleteBySession(ctx, sess.ID)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": count})
		return
	}

	tokenID, err := uuid.Parse(rawID)
	if err != nil {
		writeValidationError(w, "invalid tokenId")
		return
	}

	// The id must belong to this session; owners cannot reach across
	// sessions through the query parameter
	tokens, err := s.tokens.ListBySession(ctx, sess.ID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	found := false
	for _, t := range tokens {
		if t.ID == tokenID {
			found = true
			break
		}
	}
	if !found {
		writeNotFound(w, "share token")
		return
	}

	if err := s.tokens.Delete(ctx, tokenID); err != nil {
		if errors.Is(err, store.ErrShareTokenNotFound) {
			writeNotFound(w, "share token")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
}
