// Package presence tracks who is currently joined to each session. Presence
// is ephemeral and best-effort: it lives in process memory, reflects
// "currently connected" rather than authoritative membership, and records
// disappear when the participant leaves or stops heartbeating.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrParticipantNotFound is returned by Heartbeat for unknown participants.
// Leave deliberately does not return it; leaving twice is a no-op.
var ErrParticipantNotFound = errors.New("participant not found")

// palette is cycled in join order so participants joining close together get
// visually distinct colors.
var palette = []string{
	"#e06c75",
	"#61afef",
	"#98c379",
	"#e5c07b",
	"#c678dd",
	"#56b6c2",
	"#d19a66",
	"#abb2bf",
}

// sessionPresence holds one session's participants behind its own lock, so
// join/leave traffic on one session never contends with another's.
//
// dead marks an entry that has been removed from the session map; a join that
// raced the removal retries against a fresh entry instead of writing into a
// detached one.
type sessionPresence struct {
	mu           sync.Mutex
	dead         bool
	participants map[string]*models.Participant
	order        []string // participant ids in join order
	joins        int      // total joins ever, drives palette cycling
}

// Manager is the participant presence registry for all sessions. The outer
// lock only guards the session map; per-session state has its own lock.
//
// Entries are allocated on join only and reaped as soon as their last
// participant leaves or is evicted. Lookups for unknown session ids must
// never allocate: leave and heartbeat are open endpoints, and an entry per
// probed uuid would grow the map without bound.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionPresence
}

// NewManager creates an empty presence manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*sessionPresence),
	}
}

// session returns the entry for id, allocating it if absent. Join only.
func (m *Manager) session(id uuid.UUID) *sessionPresence {
	m.mu.RLock()
	sp, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sp, ok := m.sessions[id]; ok {
		return sp
	}
	sp = &sessionPresence{participants: make(map[string]*models.Participant)}
	m.sessions[id] = sp
	return sp
}

// peek returns the entry for id without allocating, or nil.
func (m *Manager) peek(id uuid.UUID) *sessionPresence {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// reap removes a session's entry once its participant map has emptied. Both
// locks are taken, outer first, so a concurrent join either lands before the
// emptiness check or retries against a fresh entry.
func (m *Manager) reap(id uuid.UUID, sp *sessionPresence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if len(sp.participants) == 0 && m.sessions[id] == sp {
		sp.dead = true
		delete(m.sessions, id)
	}
}

// Join adds a participant to a session and assigns its color. Joining the
// same name twice produces two distinct participants; the id, not the name,
// identifies a presence record.
func (m *Manager) Join(sessionID uuid.UUID, name string, permission models.Permission, isAnonymous bool) *models.Participant {
	for {
		sp := m.session(sessionID)
		if p := sp.add(sessionID, name, permission, isAnonymous); p != nil {
			telemetry.GetMetrics().ActiveParticipants.Add(context.Background(), 1)
			return p
		}
		// Entry was reaped between lookup and add; take a fresh one
	}
}

// add inserts a participant, or reports a dead entry by returning nil.
func (sp *sessionPresence) add(sessionID uuid.UUID, name string, permission models.Permission, isAnonymous bool) *models.Participant {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.dead {
		return nil
	}

	now := time.Now()
	p := &models.Participant{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Name:        name,
		Color:       palette[sp.joins%len(palette)],
		Permission:  permission,
		IsAnonymous: isAnonymous,
		JoinedAt:    now,
		LastSeenAt:  now,
	}
	sp.joins++
	sp.participants[p.ID] = p
	sp.order = append(sp.order, p.ID)

	clone := *p
	return &clone
}

// Leave removes a participant. Removing an unknown participant is a no-op,
// not an error: the client may retry a leave it already won.
func (m *Manager) Leave(sessionID uuid.UUID, participantID string) {
	sp := m.peek(sessionID)
	if sp == nil {
		return
	}

	sp.mu.Lock()
	if _, ok := sp.participants[participantID]; !ok {
		sp.mu.Unlock()
		return
	}
	sp.remove(participantID)
	empty := len(sp.participants) == 0
	sp.mu.Unlock()

	telemetry.GetMetrics().ActiveParticipants.Add(context.Background(), -1)

	if empty {
		m.reap(sessionID, sp)
	}
}

// remove deletes a participant from the map and the join order. Caller holds
// sp.mu.
func (sp *sessionPresence) remove(participantID string) {
	delete(sp.participants, participantID)
	for i, id := range sp.order {
		if id == participantID {
			sp.order = append(sp.order[:i], sp.order[i+1:]...)
			break
		}
	}
}

// List returns a session's participants in join order. Clients poll this;
// the fetch is an idempotent full snapshot, there is no push channel.
func (m *Manager) List(sessionID uuid.UUID) []*models.Participant {
	sp := m.peek(sessionID)
	if sp == nil {
		return []*models.Participant{}
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	participants := make([]*models.Participant, 0, len(sp.order))
	for _, id := range sp.order {
		clone := *sp.participants[id]
		participants = append(participants, &clone)
	}
	return participants
}

// Heartbeat refreshes a participant's last-seen time and optionally its
// cursor position.
func (m *Manager) Heartbeat(sessionID uuid.UUID, participantID string, cursor *models.CursorPosition) error {
	sp := m.peek(sessionID)
	if sp == nil {
		return ErrParticipantNotFound
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	p, ok := sp.participants[participantID]
	if !ok {
		return ErrParticipantNotFound
	}

	p.LastSeenAt = time.Now()
	if cursor != nil {
		c := *cursor
		p.Cursor = &c
	}
	return nil
}

// DropSession discards all presence for a session, used when the session
// record itself is deleted.
func (m *Manager) DropSession(sessionID uuid.UUID) {
	m.mu.Lock()
	sp, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	sp.mu.Lock()
	sp.dead = true
	count := len(sp.participants)
	sp.mu.Unlock()

	if count > 0 {
		telemetry.GetMetrics().ActiveParticipants.Add(context.Background(), int64(-count))
	}
}

// EvictStale removes participants whose last heartbeat is older than ttl and
// returns how many were evicted. Sessions left empty are reaped.
func (m *Manager) EvictStale(ttl time.Duration) int {
	type entry struct {
		id uuid.UUID
		sp *sessionPresence
	}

	m.mu.RLock()
	entries := make([]entry, 0, len(m.sessions))
	for id, sp := range m.sessions {
		entries = append(entries, entry{id: id, sp: sp})
	}
	m.mu.RUnlock()

	cutoff := time.Now().Add(-ttl)
	evicted := 0

	for _, e := range entries {
		e.sp.mu.Lock()
		for id, p := range e.sp.participants {
			if p.LastSeenAt.Before(cutoff) {
				e.sp.remove(id)
				evicted++
			}
		}
		empty := len(e.sp.participants) == 0
		e.sp.mu.Unlock()

		if empty {
			m.reap(e.id, e.sp)
		}
	}

	if evicted > 0 {
		telemetry.GetMetrics().ActiveParticipants.Add(context.Background(), int64(-evicted))
		telemetry.GetMetrics().StaleParticipantsEvicted.Add(context.Background(), int64(evicted))
	}

	return evicted
}

// RunSweeper evicts stale participants on an interval until ctx is done.
// Intended to run as a goroutine alongside the server.
func (m *Manager) RunSweeper(ctx context.Context, interval, ttl time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := m.EvictStale(ttl); evicted > 0 {
				log.Debug().Int("evicted", evicted).Msg("Evicted stale participants")
			}
		}
	}
}

// entryCount reports how many session entries exist. Test hook for the
// no-leak guarantees around allocation and reaping.
func (m *Manager) entryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
