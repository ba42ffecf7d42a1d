package session

import (
	"context"

	"github.com/hearthware/applicall/internal/observe"
)

// Instrument wraps store so every operation is counted on m's session
// operation counter, labeled by op name. Behavior is otherwise unchanged.
func Instrument(store Store, m *observe.Metrics) Store {
	return &instrumentedStore{inner: store, metrics: m}
}

type instrumentedStore struct {
	inner   Store
	metrics *observe.Metrics
}

var _ Store = (*instrumentedStore)(nil)

func (s *instrumentedStore) Create(ctx context.Context, callID, callerPhone string, customerID int) (*ConversationState, error) {
	s.metrics.RecordSessionOp(ctx, "create")
	return s.inner.Create(ctx, callID, callerPhone, customerID)
}

func (s *instrumentedStore) Get(ctx context.Context, callID string) (*ConversationState, error) {
	s.metrics.RecordSessionOp(ctx, "get")
	return s.inner.Get(ctx, callID)
}

func (s *instrumentedStore) Update(ctx context.Context, state *ConversationState) error {
	s.metrics.RecordSessionOp(ctx, "update")
	return s.inner.Update(ctx, state)
}

func (s *instrumentedStore) End(ctx context.Context, callID string) (*ConversationState, error) {
	s.metrics.RecordSessionOp(ctx, "end")
	return s.inner.End(ctx, callID)
}

func (s *instrumentedStore) Transition(ctx context.Context, callID string, phase Phase) (*ConversationState, error) {
	s.metrics.RecordSessionOp(ctx, "transition")
	return s.inner.Transition(ctx, callID, phase)
}

func (s *instrumentedStore) Active(ctx context.Context) (map[string]*ConversationState, error) {
	s.metrics.RecordSessionOp(ctx, "active")
	return s.inner.Active(ctx)
}
