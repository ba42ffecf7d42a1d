package redisstore_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/hearthware/applicall/internal/session"
	"github.com/hearthware/applicall/internal/session/redisstore"
)

// testStore connects to the Redis instance named by APPLICALL_TEST_REDIS_URL,
// or skips the test when the variable is not set.
func testStore(t *testing.T) *redisstore.Store {
	t.Helper()
	url := os.Getenv("APPLICALL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("APPLICALL_TEST_REDIS_URL not set — skipping Redis integration tests")
	}

	ctx := context.Background()
	store, err := redisstore.New(ctx, url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// endQuietly removes a session so tests can rerun against a shared instance.
func endQuietly(t *testing.T, store *redisstore.Store, callID string) {
	t.Helper()
	t.Cleanup(func() {
		_, _ = store.End(context.Background(), callID)
	})
}

func TestLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	const callID = "redis-test-CA1"
	endQuietly(t, store, callID)

	state, err := store.Create(ctx, callID, "+15551234567", 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if state.Phase != session.PhaseGreeting || state.TurnCount != 0 {
		t.Fatalf("Create: phase = %q turns = %d, want greeting / 0", state.Phase, state.TurnCount)
	}

	if _, err := store.Create(ctx, callID, "+15551234567", 3); !errors.Is(err, session.ErrDuplicateSession) {
		t.Fatalf("Create duplicate: expected ErrDuplicateSession, got %v", err)
	}

	state.AddKeyFact("User said: the dryer squeals")
	if err := store.Update(ctx, state); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.TurnCount != 1 {
		t.Fatalf("Update: turn_count = %d, want 1", state.TurnCount)
	}

	got, err := store.Get(ctx, callID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TurnCount != 1 || len(got.KeyFacts) != 1 {
		t.Fatalf("Get after Update: turns = %d facts = %d, want 1 / 1", got.TurnCount, len(got.KeyFacts))
	}

	if _, err := store.Transition(ctx, callID, session.PhaseScheduling); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	got, err = store.Get(ctx, callID)
	if err != nil {
		t.Fatalf("Get after Transition: %v", err)
	}
	if got.Phase != session.PhaseScheduling {
		t.Fatalf("phase = %q, want %q", got.Phase, session.PhaseScheduling)
	}

	ended, err := store.End(ctx, callID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended == nil || ended.Phase != session.PhaseScheduling {
		t.Fatalf("End: returned %+v, want the scheduling-phase state", ended)
	}

	again, err := store.End(ctx, callID)
	if err != nil {
		t.Fatalf("End second: %v", err)
	}
	if again != nil {
		t.Fatal("End second: expected nil for already-ended session")
	}

	if _, err := store.Get(ctx, callID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("Get after End: expected ErrSessionNotFound, got %v", err)
	}
}

func TestUpdateAfterEndDoesNotResurrect(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	const callID = "redis-test-CA2"
	endQuietly(t, store, callID)

	state, err := store.Create(ctx, callID, "+1555", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.End(ctx, callID); err != nil {
		t.Fatalf("End: %v", err)
	}

	if err := store.Update(ctx, state); err != nil {
		t.Fatalf("Update after End: %v", err)
	}
	if _, err := store.Get(ctx, callID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("Get: expected ErrSessionNotFound after update-after-end, got %v", err)
	}
}

func TestActiveListsLiveSessions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	ids := []string{"redis-test-CA3", "redis-test-CA4"}
	for _, id := range ids {
		endQuietly(t, store, id)
		if _, err := store.Create(ctx, id, "+1555", 0); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	snap, err := store.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	for _, id := range ids {
		if _, ok := snap[id]; !ok {
			t.Fatalf("Active: missing %s in snapshot of %d sessions", id, len(snap))
		}
	}
}
