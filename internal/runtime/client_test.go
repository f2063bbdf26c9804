package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClient_Status(t *testing.T) {
	sessionID := uuid.Must(uuid.NewV7())

	t.Run("running session", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, fmt.Sprintf("/api/sessions/%s/status", sessionID), r.URL.Path)
			_ = json.NewEncoder(w).Encode(StatusResult{Running: true, PID: 4242})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		result, err := client.Status(context.Background(), sessionID)
		require.NoError(t, err)
		require.True(t, result.Running)
		require.Equal(t, 4242, result.PID)
	})

	t.Run("not running session", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(StatusResult{Running: false})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		result, err := client.Status(context.Background(), sessionID)
		require.NoError(t, err)
		require.False(t, result.Running)
		require.Zero(t, result.PID)
	})

	t.Run("non-2xx response is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		_, err := client.Status(context.Background(), sessionID)
		require.Error(t, err)
		require.Contains(t, err.Error(), "500")
	})

	t.Run("unreachable runtime is an error", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", 100*time.Millisecond, zerolog.Nop())
		_, err := client.Status(context.Background(), sessionID)
		require.Error(t, err)
	})
}

func TestClient_SafeStatus(t *testing.T) {
	sessionID := uuid.Must(uuid.NewV7())

	t.Run("passes through a healthy answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(StatusResult{Running: true, PID: 7})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		result := client.SafeStatus(context.Background(), sessionID)
		require.True(t, result.Running)
	})

	t.Run("degrades failures to not running", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		result := client.SafeStatus(context.Background(), sessionID)
		require.False(t, result.Running)
	})

	t.Run("degrades a hung runtime to not running", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		client := NewClient(srv.URL, 50*time.Millisecond, zerolog.Nop())
		started := time.Now()
		result := client.SafeStatus(context.Background(), sessionID)
		require.False(t, result.Running)
		require.Less(t, time.Since(started), time.Second)
	})
}

func TestClient_Stop(t *testing.T) {
	sessionID := uuid.Must(uuid.NewV7())

	t.Run("successful stop", func(t *testing.T) {
		var gotForce bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, fmt.Sprintf("/api/sessions/%s/stop", sessionID), r.URL.Path)

			var body struct {
				Force bool `json:"force"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotForce = body.Force
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		require.NoError(t, client.Stop(context.Background(), sessionID, true))
		require.True(t, gotForce)
	})

	t.Run("4xx maps to ErrNotRunning", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		err := client.Stop(context.Background(), sessionID, false)
		require.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("5xx surfaces the remote message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "process wedged"})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, zerolog.Nop())
		err := client.Stop(context.Background(), sessionID, false)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrNotRunning)
		require.Contains(t, err.Error(), "process wedged")
	})

	t.Run("transport failure is not ErrNotRunning", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", 100*time.Millisecond, zerolog.Nop())
		err := client.Stop(context.Background(), sessionID, false)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrNotRunning)
	})
}
