package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// entry pairs the live state with a read-only snapshot. The live state is
// mutated by the owning call's goroutines without the store lock; snap is
// replaced (never mutated) inside Create/Update/Transition, which those same
// goroutines call, so Active can hand it out without reading live fields.
type entry struct {
	live *ConversationState
	snap *ConversationState
}

// MemStore is the default, process-local implementation of [Store]: a single
// mutex over one map. Get returns the live state instance so the owning
// call's goroutines mutate it in place; Active hands out snapshots refreshed
// on every store call.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*entry),
	}
}

// Create implements [Store.Create].
func (m *MemStore) Create(ctx context.Context, callID, callerPhone string, customerID int) (*ConversationState, error) {
	state := New(callID, callerPhone, customerID, time.Now().UTC())

	m.mu.Lock()
	if _, exists := m.sessions[callID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("create session %q: %w", callID, ErrDuplicateSession)
	}
	m.sessions[callID] = &entry{live: state, snap: state.Clone()}
	n := len(m.sessions)
	m.mu.Unlock()

	slog.Info("session created", "call_id", callID, "caller", callerPhone, "active", n)
	return state, nil
}

// Get implements [Store.Get].
func (m *MemStore) Get(ctx context.Context, callID string) (*ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("get session %q: %w", callID, ErrSessionNotFound)
	}
	return e.live, nil
}

// Update implements [Store.Update].
func (m *MemStore) Update(ctx context.Context, state *ConversationState) error {
	if state == nil {
		return fmt.Errorf("update session: nil state")
	}
	state.LastInteractionAt = time.Now().UTC()
	state.TurnCount++

	m.mu.Lock()
	if e, ok := m.sessions[state.CallID]; ok {
		e.live = state
		e.snap = state.Clone()
	}
	m.mu.Unlock()
	return nil
}

// End implements [Store.End].
func (m *MemStore) End(ctx context.Context, callID string) (*ConversationState, error) {
	m.mu.Lock()
	e, ok := m.sessions[callID]
	if ok {
		delete(m.sessions, callID)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	slog.Info("session ended", "call_id", callID, "turns", e.snap.TurnCount, "active", n)
	return e.live, nil
}

// Transition implements [Store.Transition].
func (m *MemStore) Transition(ctx context.Context, callID string, phase Phase) (*ConversationState, error) {
	m.mu.Lock()
	e, ok := m.sessions[callID]
	var old Phase
	if ok {
		old = e.live.Phase
		e.live.Phase = phase
		e.snap = e.live.Clone()
	}
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("transition session %q: %w", callID, ErrSessionNotFound)
	}
	slog.Info("session phase transition", "call_id", callID, "from", old, "to", phase)
	return e.live, nil
}

// Active implements [Store.Active].
func (m *MemStore) Active(ctx context.Context) (map[string]*ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]*ConversationState, len(m.sessions))
	for id, e := range m.sessions {
		snapshot[id] = e.snap
	}
	return snapshot, nil
}
