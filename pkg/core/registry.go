package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one call's identity and lifecycle state. It is owned
// exclusively by the Registry; the pipeline only ever sees it for the
// duration of a single turn.
type Session struct {
	ID        string
	CreatedAt time.Time

	// turnMu serializes turns within the session. History append order
	// defines the prompt window for the next turn, so a session never has
	// two turns in flight.
	turnMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	lastActive time.Time
	cancelTurn context.CancelFunc
	warn       func(code, message string) error
}

// BindTransport attaches the transport's warning callback so the registry
// can notify the client during drain. A nil warn detaches.
func (s *Session) BindTransport(warn func(code, message string) error) {
	s.mu.Lock()
	s.warn = warn
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Registry creates, looks up, and destroys sessions. It owns the only
// mapping shared across concurrently-active sessions, and doubles as the
// tracked set used for graceful shutdown.
type Registry struct {
	history HistoryStore
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*registered
	wg       sync.WaitGroup
}

type registered struct {
	session *Session
	once    sync.Once
}

// NewRegistry creates a registry backed by the given history store.
func NewRegistry(history HistoryStore) *Registry {
	return &Registry{
		history:  history,
		now:      time.Now,
		sessions: make(map[string]*registered),
	}
}

// History exposes the backing store for audit reads.
func (r *Registry) History() HistoryStore {
	return r.history
}

// Create registers a new ACTIVE session with an empty history and returns it.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	now := r.now().UTC()

	if err := r.history.Create(ctx, id); err != nil {
		return nil, err
	}

	s := &Session{
		ID:         id,
		CreatedAt:  now,
		lastActive: now,
	}

	r.mu.Lock()
	r.sessions[id] = &registered{session: s}
	r.wg.Add(1)
	r.mu.Unlock()

	return s, nil
}

// Get looks up an active session. Unknown or closed IDs fail with
// session_not_found.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	entry := r.sessions[id]
	r.mu.Unlock()

	if entry == nil || entry.session.isClosed() {
		return nil, NewSessionNotFoundError(id)
	}
	return entry.session, nil
}

// Close tears down a session: marks it CLOSED, cancels any in-flight turn,
// and releases its history. Closing an unknown or already-closed session is
// a no-op; teardown races between client disconnect and server-side expiry
// are expected.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	entry := r.sessions[id]
	r.mu.Unlock()
	if entry == nil {
		return
	}

	entry.once.Do(func() {
		s := entry.session
		s.mu.Lock()
		s.closed = true
		cancel := s.cancelTurn
		s.cancelTurn = nil
		s.warn = nil
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		r.mu.Lock()
		if r.sessions[id] == entry {
			delete(r.sessions, id)
		}
		r.mu.Unlock()

		_ = r.history.Drop(context.Background(), id)
		r.wg.Done()
	})
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// WarnAll sends a warning to every session with a bound transport.
// Used to announce draining before shutdown.
func (r *Registry) WarnAll(code, message string) (sent int) {
	var warns []func(code, message string) error
	r.mu.Lock()
	for _, entry := range r.sessions {
		entry.session.mu.Lock()
		if entry.session.warn != nil {
			warns = append(warns, entry.session.warn)
		}
		entry.session.mu.Unlock()
	}
	r.mu.Unlock()

	for _, warn := range warns {
		_ = warn(code, message)
		sent++
	}
	return sent
}

// CloseAll force-closes every remaining session.
func (r *Registry) CloseAll() (closed int) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Close(id)
		closed++
	}
	return closed
}

// Wait blocks until every session has been closed or ctx expires.
// Returns false on timeout.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// CloseIdle closes sessions that have been inactive for at least ttl.
// Bounds registry memory for clients that vanish without disconnecting.
func (r *Registry) CloseIdle(ttl time.Duration) (closed int) {
	if ttl <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	var idle []string
	for id, entry := range r.sessions {
		if entry.session.idleSince(now) >= ttl {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.Close(id)
		closed++
	}
	return closed
}
