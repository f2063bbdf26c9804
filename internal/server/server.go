package server

import (
	"context"
	"net/http"

	"github.com/coterm/coterm/internal/presence"
	"github.com/coterm/coterm/internal/runtime"
	"github.com/coterm/coterm/internal/store"
	"github.com/google/uuid"
)

// RuntimeClient is the slice of the runtime service client the handlers use.
type RuntimeClient interface {
	// SafeStatus reports a session's live state, degrading to not-running
	// when the runtime is unreachable.
	SafeStatus(ctx context.Context, sessionID uuid.UUID) runtime.StatusResult
	// Stop terminates a session's process. runtime.ErrNotRunning means the
	// session was already stopped.
	Stop(ctx context.Context, sessionID uuid.UUID, force bool) error
}

// Server wires the session API handlers to their stores and the runtime
// service client.
type Server struct {
	sessions store.SessionStore
	tokens   store.ShareTokenStore
	presence *presence.Manager
	runtime  RuntimeClient

	// authDisabled bypasses every ownership check. Operator/local-mode
	// switch, read once at startup and applied uniformly.
	authDisabled bool
}

// NewServer creates a new server with the given stores and runtime client.
func NewServer(sessions store.SessionStore, tokens store.ShareTokenStore, pres *presence.Manager, rt RuntimeClient, authDisabled bool) *Server {
	return &Server{
		sessions:     sessions,
		tokens:       tokens,
		presence:     pres,
		runtime:      rt,
		authDisabled: authDisabled,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.handleUpdateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/stop", s.handleStopSession)

	mux.HandleFunc("GET /sessions/{id}/participants", s.handleListParticipants)
	mux.HandleFunc("POST /sessions/{id}/participants", s.handleJoinSession)
	mux.HandleFunc("DELETE /sessions/{id}/participants", s.handleLeaveSession)
	mux.HandleFunc("POST /sessions/{id}/participants/{pid}/heartbeat", s.handleHeartbeat)

	mux.HandleFunc("GET /sessions/{id}/share", s.handleListShareTokens)
	mux.HandleFunc("POST /sessions/{id}/share", s.handleCreateShareToken)
	mux.HandleFunc("DELETE /sessions/{id}/share", s.handleRevokeShareTokens)

	mux.HandleFunc("POST /admin/sessions/bulk-terminate", s.handleBulkTerminate)

	return mux
}
