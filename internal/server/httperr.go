package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	httpmiddleware "github.com/coterm/coterm/internal/http"
	"github.com/coterm/coterm/internal/telemetry"
	"github.com/rs/zerolog"
)

// ErrorKind is the machine-readable error classification returned to callers.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindAccessDenied       ErrorKind = "access_denied"
	KindValidation         ErrorKind = "validation_error"
	KindRuntimeUnavailable ErrorKind = "runtime_unavailable"
	KindInternal           ErrorKind = "internal"
)

type errorResponse struct {
	Error   ErrorKind `json:"error"`
	Message string    `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind ErrorKind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func writeNotFound(w http.ResponseWriter, what string) {
	writeError(w, http.StatusNotFound, KindNotFound, what+" not found")
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, KindValidation, message)
}

// writeAccessDenied rejects a request without explaining which policy rule
// failed; ownership details must not leak to unauthorized callers. The denial
// is audit-logged with the caller's address.
func writeAccessDenied(w http.ResponseWriter, r *http.Request) {
	telemetry.GetMetrics().AccessDeniedTotal.Add(r.Context(), 1)
	zerolog.Ctx(r.Context()).Warn().
		Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).
		Str("path", r.URL.Path).
		Msg("Access denied")
	writeError(w, http.StatusForbidden, KindAccessDenied, "access denied")
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, KindInternal, "internal error")
}

// maxBodyBytes bounds request bodies; no operation here carries bulk payloads.
const maxBodyBytes = 64 * 1024

// decodeJSON decodes a request body into a typed request struct, rejecting
// unknown fields so malformed shapes fail validation before any state is
// touched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	// Trailing garbage after the JSON document is also malformed
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: unexpected trailing data")
	}
	return nil
}
