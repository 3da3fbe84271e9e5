package core

import (
	"context"
	"testing"

	"github.com/calleq/calleq/pkg/core/types"
)

func TestMemoryHistory_AppendAssignsOrdinals(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	if err := h.Create(ctx, "s1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first, err := h.Append(ctx, "s1", types.RoleUser, "hello")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	second, err := h.Append(ctx, "s1", types.RoleAssistant, "hi there")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if first.Ordinal != 0 || second.Ordinal != 1 {
		t.Fatalf("ordinals = %d, %d, want 0, 1", first.Ordinal, second.Ordinal)
	}
	if first.Role != types.RoleUser || second.Role != types.RoleAssistant {
		t.Fatalf("roles = %q, %q", first.Role, second.Role)
	}
	if first.Timestamp.IsZero() {
		t.Fatalf("Timestamp is zero")
	}
}

func TestMemoryHistory_RecentWindowsWithoutMutating(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	if err := h.Create(ctx, "s1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		if _, err := h.Append(ctx, "s1", role, "turn"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	recent, err := h.Recent(ctx, "s1", 6)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 6 {
		t.Fatalf("len(recent) = %d, want 6", len(recent))
	}
	if recent[0].Ordinal != 4 || recent[5].Ordinal != 9 {
		t.Fatalf("window = [%d..%d], want [4..9]", recent[0].Ordinal, recent[5].Ordinal)
	}

	all, err := h.All(ctx, "s1")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("len(all) = %d, want 10: windowing must not mutate the record", len(all))
	}
}

func TestMemoryHistory_RecentShorterThanWindow(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	if err := h.Create(ctx, "s1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := h.Append(ctx, "s1", types.RoleUser, "only turn"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	recent, err := h.Recent(ctx, "s1", 6)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("len(recent) = %d, want 1", len(recent))
	}
}

func TestMemoryHistory_UnknownSession(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()

	if _, err := h.Append(ctx, "missing", types.RoleUser, "hello"); !IsSessionNotFound(err) {
		t.Fatalf("Append() error = %v, want session_not_found", err)
	}
	if _, err := h.Recent(ctx, "missing", 6); !IsSessionNotFound(err) {
		t.Fatalf("Recent() error = %v, want session_not_found", err)
	}
	if _, err := h.All(ctx, "missing"); !IsSessionNotFound(err) {
		t.Fatalf("All() error = %v, want session_not_found", err)
	}
}

func TestMemoryHistory_DropIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	if err := h.Create(ctx, "s1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h.Drop(ctx, "s1"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if err := h.Drop(ctx, "s1"); err != nil {
		t.Fatalf("second Drop() error = %v", err)
	}
	if _, err := h.All(ctx, "s1"); !IsSessionNotFound(err) {
		t.Fatalf("All() after Drop error = %v, want session_not_found", err)
	}
}
