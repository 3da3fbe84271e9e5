package core

import (
	"context"
	"sync"
	"time"

	"github.com/calleq/calleq/pkg/core/types"
)

// HistoryStore holds per-session conversation history. Turns are strictly
// append-only; the only deletion is whole-session teardown via Drop.
//
// The in-memory implementation below is the default. A Redis-backed
// implementation lives in pkg/core/history/redisstore for deployments that
// need history to survive a process restart.
type HistoryStore interface {
	// Create reserves an empty history for a new session.
	Create(ctx context.Context, sessionID string) error

	// Append adds one turn, assigning its ordinal. Fails with a
	// session_not_found error if the session is unknown or dropped.
	Append(ctx context.Context, sessionID string, role types.Role, text string) (types.Turn, error)

	// Recent returns the last k turns, fewer if the history is shorter.
	// This is the read-time window handed to the responder; it never
	// mutates the stored record.
	Recent(ctx context.Context, sessionID string, k int) ([]types.Turn, error)

	// All returns the full history. Audit/export use only.
	All(ctx context.Context, sessionID string) ([]types.Turn, error)

	// Drop discards a session's history. Dropping an unknown session is
	// a no-op.
	Drop(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}

// MemoryHistory is the in-process HistoryStore.
type MemoryHistory struct {
	mu       sync.RWMutex
	sessions map[string][]types.Turn
	now      func() time.Time
}

// NewMemoryHistory creates an empty in-memory history store.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		sessions: make(map[string][]types.Turn),
		now:      time.Now,
	}
}

func (m *MemoryHistory) Create(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.sessions[sessionID] = make([]types.Turn, 0, 16)
	}
	return nil
}

func (m *MemoryHistory) Append(ctx context.Context, sessionID string, role types.Role, text string) (types.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns, ok := m.sessions[sessionID]
	if !ok {
		return types.Turn{}, NewSessionNotFoundError(sessionID)
	}
	turn := types.Turn{
		Role:      role,
		Text:      text,
		Ordinal:   len(turns),
		Timestamp: m.now().UTC(),
	}
	m.sessions[sessionID] = append(turns, turn)
	return turn, nil
}

func (m *MemoryHistory) Recent(ctx context.Context, sessionID string, k int) ([]types.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns, ok := m.sessions[sessionID]
	if !ok {
		return nil, NewSessionNotFoundError(sessionID)
	}
	if k < 0 {
		k = 0
	}
	start := len(turns) - k
	if start < 0 {
		start = 0
	}
	out := make([]types.Turn, len(turns)-start)
	copy(out, turns[start:])
	return out, nil
}

func (m *MemoryHistory) All(ctx context.Context, sessionID string) ([]types.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns, ok := m.sessions[sessionID]
	if !ok {
		return nil, NewSessionNotFoundError(sessionID)
	}
	out := make([]types.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *MemoryHistory) Drop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryHistory) Close() error {
	return nil
}
