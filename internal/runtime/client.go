// Package runtime is the HTTP client for the external runtime service that
// actually hosts the terminal processes behind sessions. This service never
// spawns or signals processes itself; it only asks the runtime what is alive
// and requests stops.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coterm/coterm/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotRunning is returned by Stop when the runtime reports the session has
// no live process. Callers treat this as "already stopped", not a failure.
var ErrNotRunning = errors.New("session not running")

// StatusResult is the runtime's live view of one session.
type StatusResult struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}

// Client talks to the runtime service. Every call carries a bounded timeout
// so a hung runtime cannot block unrelated requests.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a runtime service client. timeout bounds each outbound
// call; zero falls back to 5 seconds.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
		log:        log,
	}
}

// Status queries the runtime for a session's live state. Transport errors and
// non-2xx responses are returned as errors; most callers want SafeStatus.
func (c *Client) Status(ctx context.Context, sessionID uuid.UUID) (StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		telemetry.GetMetrics().RuntimeStatusDuration.Record(ctx,
			float64(time.Since(started).Milliseconds()))
	}()

	url := fmt.Sprintf("%s/api/sessions/%s/status", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("runtime status request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusResult{}, fmt.Errorf("runtime status returned %d", resp.StatusCode)
	}

	var result StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return StatusResult{}, fmt.Errorf("failed to decode runtime status: %w", err)
	}

	return result, nil
}

// SafeStatus is the degrading wrapper used by read paths: under any failure or
// timeout it reports "not running" instead of surfacing an error, so a
// runtime outage degrades session views to idle rather than breaking them.
// The degradation is logged and counted, never silent.
func (c *Client) SafeStatus(ctx context.Context, sessionID uuid.UUID) StatusResult {
	result, err := c.Status(ctx, sessionID)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("session_id", sessionID.String()).
			Msg("Runtime service unreachable, assuming not running")
		telemetry.GetMetrics().RuntimeUnreachableTotal.Add(ctx, 1)
		return StatusResult{Running: false}
	}
	return result
}

type stopRequest struct {
	Force bool `json:"force"`
}

type stopError struct {
	Error string `json:"error"`
}

// Stop asks the runtime to terminate a session's process. A 4xx response
// means the runtime has no live process for the session and maps to
// ErrNotRunning; stopping is idempotent from the caller's side. Other
// failures surface with the remote's message so the caller knows the stop may
// not have happened. No retries here: a failed stop must stay distinguishable
// from an already-stopped one.
func (c *Client) Stop(ctx context.Context, sessionID uuid.UUID, force bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	telemetry.GetMetrics().RuntimeStopsTotal.Add(ctx, 1)

	body, err := json.Marshal(stopRequest{Force: force})
	if err != nil {
		return fmt.Errorf("failed to encode stop request: %w", err)
	}

	url := fmt.Sprintf("%s/api/sessions/%s/stop", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build stop request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.GetMetrics().RuntimeStopErrorsTotal.Add(ctx, 1)
		return fmt.Errorf("runtime stop request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return ErrNotRunning
	default:
		telemetry.GetMetrics().RuntimeStopErrorsTotal.Add(ctx, 1)
		return fmt.Errorf("runtime stop returned %d: %s", resp.StatusCode, remoteMessage(resp.Body))
	}
}

// remoteMessage extracts the runtime's error message from a failure response.
func remoteMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var remote stopError
	if err := json.Unmarshal(data, &remote); err == nil && remote.Error != "" {
		return remote.Error
	}

	return string(data)
}
