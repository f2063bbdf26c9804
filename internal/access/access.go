// Package access is the decision point for every inbound session request:
// pure functions over the session record, the resolved caller, and an
// optional share token lookup. No I/O happens here.
package access

import (
	"time"

	"github.com/coterm/coterm/internal/auth"
	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/runtime"
)

// CanAccess decides whether a caller may observe a session.
//
// Access is granted if any of the following hold:
//   - ownership enforcement is disabled process-wide
//   - the session predates ownership (no owner)
//   - the session is public
//   - the caller is the owner
//   - a valid share token for this session was presented, and either the
//     token allows anonymous use or the caller is authenticated
//
// Tokens are bearer capabilities: a non-anonymous token admits any
// authenticated caller holding it, not one specific identity. That is the
// link-sharing model, deliberately simpler than a per-user ACL.
func CanAccess(session *models.Session, ident *auth.Identity, authDisabled bool, token *models.ShareToken) bool {
	if authDisabled {
		return true
	}
	if !session.Owned() {
		return true
	}
	if session.IsPublic {
		return true
	}
	if ident != nil && session.OwnedBy(ident.UserID) {
		return true
	}
	if token != nil && token.SessionID == session.ID && token.Valid(time.Now()) {
		return token.AllowAnonymous || ident != nil
	}
	return false
}

// CanModify decides whether a caller may mutate a session record (update,
// delete, stop). Strictly owner-or-auth-disabled: share tokens never grant
// write access at the record level, and ownerless sessions are mutable by
// anyone.
func CanModify(session *models.Session, ident *auth.Identity, authDisabled bool) bool {
	if authDisabled {
		return true
	}
	if !session.Owned() {
		return true
	}
	return ident != nil && session.OwnedBy(ident.UserID)
}

// EffectiveStatus merges the persisted session status with the runtime's live
// view. The runtime wins when it reports a live process. When the repository
// believes the session is active but the runtime disagrees, the session is
// reported idle so a stale "starting" or "running" record heals itself on
// display instead of sticking. Nothing is written back; this is recomputed on
// every read.
func EffectiveStatus(persisted models.Status, rt runtime.StatusResult) models.Status {
	if rt.Running {
		return models.StatusRunning
	}
	if persisted == models.StatusRunning || persisted == models.StatusStarting {
		return models.StatusIdle
	}
	return persisted
}
