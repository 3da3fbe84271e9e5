package core

import (
	"context"
	"testing"
	"time"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryHistory())

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" {
		t.Fatalf("session ID is empty")
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Fatalf("Get() returned a different session")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	// History is reserved at creation time.
	if _, err := r.History().All(ctx, s.ID); err != nil {
		t.Fatalf("History().All() error = %v", err)
	}
}

func TestRegistry_GetUnknownID(t *testing.T) {
	r := NewRegistry(NewMemoryHistory())
	if _, err := r.Get("no-such-session"); !IsSessionNotFound(err) {
		t.Fatalf("Get() error = %v, want session_not_found", err)
	}
}

func TestRegistry_CloseReleasesSessionAndHistory(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryHistory())
	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	r.Close(s.ID)

	if _, err := r.Get(s.ID); !IsSessionNotFound(err) {
		t.Fatalf("Get() after Close error = %v, want session_not_found", err)
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", r.Count())
	}
	if _, err := r.History().All(ctx, s.ID); !IsSessionNotFound(err) {
		t.Fatalf("history survived Close: %v", err)
	}

	// Closing again is a no-op.
	r.Close(s.ID)
	r.Close("never-existed")
}

func TestRegistry_CloseCancelsInFlightTurn(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryHistory())
	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelTurn = cancel
	s.mu.Unlock()

	r.Close(s.ID)

	select {
	case <-turnCtx.Done():
	case <-time.After(time.Second):
		t.Fatalf("in-flight turn context was not canceled")
	}
}

func TestRegistry_WarnAllReachesBoundTransports(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryHistory())

	bound, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create(ctx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var gotCode, gotMessage string
	bound.BindTransport(func(code, message string) error {
		gotCode, gotMessage = code, message
		return nil
	})

	if sent := r.WarnAll("shutting_down", "bye"); sent != 1 {
		t.Fatalf("WarnAll() = %d, want 1", sent)
	}
	if gotCode != "shutting_down" || gotMessage != "bye" {
		t.Fatalf("warn = (%q, %q)", gotCode, gotMessage)
	}
}

func TestRegistry_WaitReturnsAfterCloseAll(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryHistory())
	for i := 0; i < 3; i++ {
		if _, err := r.Create(ctx); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if r.Wait(waitCtx) {
		t.Fatalf("Wait() = true with sessions still open")
	}

	if closed := r.CloseAll(); closed != 3 {
		t.Fatalf("CloseAll() = %d, want 3", closed)
	}

	waitCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	defer cancel2()
	if !r.Wait(waitCtx2) {
		t.Fatalf("Wait() = false after CloseAll")
	}
}

func TestRegistry_CloseIdleExpiresOnlyStaleSessions(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemoryHistory())

	current := time.Now()
	r.now = func() time.Time { return current }

	stale, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	current = current.Add(time.Hour)
	fresh, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if closed := r.CloseIdle(30 * time.Minute); closed != 1 {
		t.Fatalf("CloseIdle() = %d, want 1", closed)
	}
	if _, err := r.Get(stale.ID); !IsSessionNotFound(err) {
		t.Fatalf("stale session still active")
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Fatalf("fresh session was expired: %v", err)
	}

	if closed := r.CloseIdle(0); closed != 0 {
		t.Fatalf("CloseIdle(0) = %d, want 0 (disabled)", closed)
	}
}
