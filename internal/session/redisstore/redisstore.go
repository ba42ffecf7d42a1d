// Package redisstore implements the session store on Redis, for deployments
// where live call state must survive a process swap. One JSON value per call
// under applicall:session:{call_id}; SETNX detects duplicates, GETDEL makes
// End atomic. Sessions carry no TTL; End or the status webhook remove them.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hearthware/applicall/internal/session"
)

// keyPrefix namespaces all session keys in the shared Redis instance.
const keyPrefix = "applicall:session:"

// Compile-time assertion that Store satisfies the session.Store interface.
var _ session.Store = (*Store)(nil)

// Store is a Redis-backed [session.Store].
type Store struct {
	rdb *redis.Client
}

// New connects to the Redis instance at url (a redis:// URL) and verifies the
// connection with a ping.
func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore: connect: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping reports whether the Redis connection is healthy. Used by readiness
// checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func key(callID string) string {
	return keyPrefix + callID
}

// Create implements [session.Store.Create].
func (s *Store) Create(ctx context.Context, callID, callerPhone string, customerID int) (*session.ConversationState, error) {
	state := session.New(callID, callerPhone, customerID, time.Now().UTC())
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("redisstore: marshal session %q: %w", callID, err)
	}

	ok, err := s.rdb.SetNX(ctx, key(callID), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: create session %q: %w", callID, err)
	}
	if !ok {
		return nil, fmt.Errorf("create session %q: %w", callID, session.ErrDuplicateSession)
	}

	slog.Info("session created", "call_id", callID, "caller", callerPhone, "backend", "redis")
	return state, nil
}

// Get implements [session.Store.Get]. The returned state is this process's
// private copy; Update writes it back.
func (s *Store) Get(ctx context.Context, callID string) (*session.ConversationState, error) {
	raw, err := s.rdb.Get(ctx, key(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get session %q: %w", callID, session.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get session %q: %w", callID, err)
	}

	var state session.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("redisstore: decode session %q: %w", callID, err)
	}
	return &state, nil
}

// Update implements [session.Store.Update]. The write uses SET XX so an
// already-ended session is never resurrected.
func (s *Store) Update(ctx context.Context, state *session.ConversationState) error {
	if state == nil {
		return fmt.Errorf("redisstore: update session: nil state")
	}
	state.LastInteractionAt = time.Now().UTC()
	state.TurnCount++

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redisstore: marshal session %q: %w", state.CallID, err)
	}
	if err := s.rdb.SetXX(ctx, key(state.CallID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: update session %q: %w", state.CallID, err)
	}
	return nil
}

// End implements [session.Store.End].
func (s *Store) End(ctx context.Context, callID string) (*session.ConversationState, error) {
	raw, err := s.rdb.GetDel(ctx, key(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: end session %q: %w", callID, err)
	}

	var state session.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("redisstore: decode ended session %q: %w", callID, err)
	}
	slog.Info("session ended", "call_id", callID, "turns", state.TurnCount, "backend", "redis")
	return &state, nil
}

// Transition implements [session.Store.Transition].
func (s *Store) Transition(ctx context.Context, callID string, phase session.Phase) (*session.ConversationState, error) {
	state, err := s.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	old := state.Phase
	state.Phase = phase

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("redisstore: marshal session %q: %w", callID, err)
	}
	if err := s.rdb.SetXX(ctx, key(callID), raw, 0).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: transition session %q: %w", callID, err)
	}

	slog.Info("session phase transition", "call_id", callID, "from", old, "to", phase)
	return state, nil
}

// Active implements [session.Store.Active]. SCAN keeps the listing
// non-blocking on large instances; sessions deleted mid-scan are skipped.
func (s *Store) Active(ctx context.Context) (map[string]*session.ConversationState, error) {
	snapshot := make(map[string]*session.ConversationState)

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		raw, err := s.rdb.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redisstore: scan session %q: %w", k, err)
		}
		var state session.ConversationState
		if err := json.Unmarshal(raw, &state); err != nil {
			slog.Warn("skipping undecodable session", "key", k, "err", err)
			continue
		}
		snapshot[state.CallID] = &state
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: scan sessions: %w", err)
	}
	return snapshot, nil
}
