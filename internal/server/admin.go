package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coterm/coterm/internal/auth"
	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/runtime"
	"github.com/coterm/coterm/internal/store"
	"github.com/coterm/coterm/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// maxBulkTerminate bounds a bulk-terminate batch; oversized batches are
	// rejected before any work begins.
	maxBulkTerminate = 100

	// bulkTerminateWorkers bounds concurrent stop calls against the runtime
	// so one batch cannot flood it.
	bulkTerminateWorkers = 8
)

type bulkTerminateRequest struct {
	SessionIDs []string `json:"sessionIds"`
}

type bulkTerminateFailure struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type bulkTerminateResponse struct {
	Terminated []string               `json:"terminated"`
	Failed     []bulkTerminateFailure `json:"failed"`
}

// handleBulkTerminate stops a batch of sessions administratively, session
// ownership notwithstanding. Items are processed independently: one failure
// never aborts the batch, and the response always carries the full accounting
// of successes and failures.
func (s *Server) handleBulkTerminate(w http.ResponseWriter, r *http.Request) {
	if !s.authDisabled && !auth.IdentityFromContext(r.Context()).IsAdmin() {
		writeAccessDenied(w, r)
		return
	}

	var req bulkTerminateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if len(req.SessionIDs) == 0 {
		writeValidationError(w, "sessionIds must not be empty")
		return
	}
	if len(req.SessionIDs) > maxBulkTerminate {
		writeValidationError(w, "sessionIds must contain at most 100 ids")
		return
	}

	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	resp := bulkTerminateResponse{
		Terminated: []string{},
		Failed:     []bulkTerminateFailure{},
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, bulkTerminateWorkers)
	)

	for _, rawID := range req.SessionIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			reason := s.terminateOne(ctx, rawID)

			mu.Lock()
			defer mu.Unlock()
			if reason == "" {
				resp.Terminated = append(resp.Terminated, rawID)
			} else {
				resp.Failed = append(resp.Failed, bulkTerminateFailure{SessionID: rawID, Reason: reason})
			}
		}()
	}
	wg.Wait()

	telemetry.GetMetrics().BulkTerminateItemsTotal.Add(ctx, int64(len(req.SessionIDs)))
	telemetry.GetMetrics().BulkTerminateFailedTotal.Add(ctx, int64(len(resp.Failed)))

	log.Info().
		Int("terminated", len(resp.Terminated)).
		Int("failed", len(resp.Failed)).
		Msg("Bulk terminate completed")

	writeJSON(w, http.StatusOK, resp)
}

// terminateOne stops a single session and records the terminated status.
// Returns an empty string on success, otherwise the failure reason.
func (s *Server) terminateOne(ctx context.Context, rawID string) string {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "invalid session id"
	}

	if _, err := s.sessions.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return "session not found"
		}
		return err.Error()
	}

	// Already-stopped is the desired outcome, not a failure
	if err := s.runtime.Stop(ctx, id, true); err != nil && !errors.Is(err, runtime.ErrNotRunning) {
		return err.Error()
	}

	if err := s.sessions.UpdateStatus(ctx, id, models.StatusTerminated); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return err.Error()
	}

	return ""
}
