package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/coterm/coterm/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestManager_Join(t *testing.T) {
	t.Run("join assigns id color and timestamps", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		p := m.Join(sessionID, "alice", models.PermissionOwner, false)
		require.NotEmpty(t, p.ID)
		require.NotEmpty(t, p.Color)
		require.Equal(t, sessionID, p.SessionID)
		require.Equal(t, models.PermissionOwner, p.Permission)
		require.False(t, p.JoinedAt.IsZero())
		require.Equal(t, p.JoinedAt, p.LastSeenAt)
	})

	t.Run("same name twice produces distinct participants", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		first := m.Join(sessionID, "alice", models.PermissionView, false)
		second := m.Join(sessionID, "alice", models.PermissionView, false)

		require.NotEqual(t, first.ID, second.ID)
		require.NotEqual(t, first.Color, second.Color)
	})

	t.Run("adjacent joins get distinct colors", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		var prev string
		for i := 0; i < len(palette); i++ {
			p := m.Join(sessionID, "user", models.PermissionView, true)
			require.NotEqual(t, prev, p.Color)
			prev = p.Color
		}
	})

	t.Run("concurrent joins produce no duplicate entries", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		const joins = 32
		var wg sync.WaitGroup
		for range joins {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Join(sessionID, "user", models.PermissionView, true)
			}()
		}
		wg.Wait()

		participants := m.List(sessionID)
		require.Len(t, participants, joins)

		seen := make(map[string]bool)
		for _, p := range participants {
			require.False(t, seen[p.ID])
			seen[p.ID] = true
		}
	})
}

func TestManager_Leave(t *testing.T) {
	t.Run("leave removes the participant", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		p := m.Join(sessionID, "alice", models.PermissionView, false)
		m.Leave(sessionID, p.ID)

		require.Empty(t, m.List(sessionID))
	})

	t.Run("leaving an unknown participant is a no-op", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		m.Join(sessionID, "alice", models.PermissionView, false)

		m.Leave(sessionID, "no-such-participant")
		m.Leave(uuid.Must(uuid.NewV7()), "anything")

		require.Len(t, m.List(sessionID), 1)
	})

	t.Run("leaving twice is a no-op", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		p := m.Join(sessionID, "alice", models.PermissionView, false)
		m.Leave(sessionID, p.ID)
		m.Leave(sessionID, p.ID)

		require.Empty(t, m.List(sessionID))
	})
}

func TestManager_List(t *testing.T) {
	t.Run("list preserves join order", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		names := []string{"alice", "bob", "carol"}
		for _, name := range names {
			m.Join(sessionID, name, models.PermissionView, false)
		}

		participants := m.List(sessionID)
		require.Len(t, participants, len(names))
		for i, p := range participants {
			require.Equal(t, names[i], p.Name)
		}
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		m := NewManager()
		first := uuid.Must(uuid.NewV7())
		second := uuid.Must(uuid.NewV7())

		m.Join(first, "alice", models.PermissionView, false)

		require.Len(t, m.List(first), 1)
		require.Empty(t, m.List(second))
	})
}

func TestManager_Heartbeat(t *testing.T) {
	t.Run("heartbeat refreshes last seen", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		p := m.Join(sessionID, "alice", models.PermissionView, false)
		time.Sleep(5 * time.Millisecond)

		require.NoError(t, m.Heartbeat(sessionID, p.ID, nil))

		participants := m.List(sessionID)
		require.True(t, participants[0].LastSeenAt.After(p.LastSeenAt))
	})

	t.Run("heartbeat records cursor position", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		p := m.Join(sessionID, "alice", models.PermissionInteract, false)
		cursor := &models.CursorPosition{Line: 12, Column: 4, Filename: "main.go"}
		require.NoError(t, m.Heartbeat(sessionID, p.ID, cursor))

		participants := m.List(sessionID)
		require.NotNil(t, participants[0].Cursor)
		require.Equal(t, 12, participants[0].Cursor.Line)
		require.Equal(t, "main.go", participants[0].Cursor.Filename)
	})

	t.Run("heartbeat for unknown participant fails", func(t *testing.T) {
		m := NewManager()

		err := m.Heartbeat(uuid.Must(uuid.NewV7()), "ghost", nil)
		require.Equal(t, ErrParticipantNotFound, err)
	})
}

func TestManager_EvictStale(t *testing.T) {
	t.Run("evicts only participants past the ttl", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		stale := m.Join(sessionID, "stale", models.PermissionView, true)
		fresh := m.Join(sessionID, "fresh", models.PermissionView, true)

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, m.Heartbeat(sessionID, fresh.ID, nil))

		evicted := m.EvictStale(10 * time.Millisecond)
		require.Equal(t, 1, evicted)

		participants := m.List(sessionID)
		require.Len(t, participants, 1)
		require.Equal(t, fresh.ID, participants[0].ID)
		require.NotEqual(t, stale.ID, participants[0].ID)
	})

	t.Run("nothing to evict returns zero", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		m.Join(sessionID, "alice", models.PermissionView, false)
		require.Equal(t, 0, m.EvictStale(time.Hour))
	})
}

func TestManager_SessionEntries(t *testing.T) {
	t.Run("unknown session traffic allocates no entries", func(t *testing.T) {
		m := NewManager()

		for i := 0; i < 1000; i++ {
			id := uuid.Must(uuid.NewV7())
			m.Leave(id, "ghost")
			require.Equal(t, ErrParticipantNotFound, m.Heartbeat(id, "ghost", nil))
			require.Empty(t, m.List(id))
		}

		require.Zero(t, m.entryCount())
	})

	t.Run("entry is freed when the last participant leaves", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		first := m.Join(sessionID, "alice", models.PermissionView, false)
		second := m.Join(sessionID, "bob", models.PermissionView, false)
		require.Equal(t, 1, m.entryCount())

		m.Leave(sessionID, first.ID)
		require.Equal(t, 1, m.entryCount())

		m.Leave(sessionID, second.ID)
		require.Zero(t, m.entryCount())
	})

	t.Run("entry is freed when eviction empties it", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		m.Join(sessionID, "alice", models.PermissionView, true)
		time.Sleep(5 * time.Millisecond)

		require.Equal(t, 1, m.EvictStale(time.Nanosecond))
		require.Zero(t, m.entryCount())
	})

	t.Run("join after the entry was freed starts fresh", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		p := m.Join(sessionID, "alice", models.PermissionView, false)
		m.Leave(sessionID, p.ID)
		require.Zero(t, m.entryCount())

		m.Join(sessionID, "alice", models.PermissionView, false)
		require.Equal(t, 1, m.entryCount())
		require.Len(t, m.List(sessionID), 1)
	})

	t.Run("drop session frees the entry", func(t *testing.T) {
		m := NewManager()
		sessionID := uuid.Must(uuid.NewV7())

		m.Join(sessionID, "alice", models.PermissionView, false)
		m.DropSession(sessionID)
		require.Zero(t, m.entryCount())
	})
}

func TestManager_DropSession(t *testing.T) {
	m := NewManager()
	sessionID := uuid.Must(uuid.NewV7())

	m.Join(sessionID, "alice", models.PermissionView, false)
	m.Join(sessionID, "bob", models.PermissionView, false)

	m.DropSession(sessionID)
	require.Empty(t, m.List(sessionID))

	// Dropping an unknown session is harmless
	m.DropSession(uuid.Must(uuid.NewV7()))
}
