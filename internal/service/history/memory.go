package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// MemoryStore keeps turns in process memory. It is the default for local runs and the
// store used by handler tests.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]chat.Turn
	clock *clock
}

// NewMemoryStore bootstraps an empty in-memory log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns: make(map[string][]chat.Turn),
		clock: newClock(time.Nanosecond),
	}
}

// Append stores the turn and returns it with id and timestamp assigned.
func (s *MemoryStore) Append(_ context.Context, turn chat.Turn) (chat.Turn, error) {
	if err := validate(turn); err != nil {
		return chat.Turn{}, storageErr("append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turn.ID = uuid.NewString()
	turn.Timestamp = s.clock.next()
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return turn, nil
}

// ListBySession returns a copy of the session's turns in insertion order.
func (s *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close(context.Context) error { return nil }
