// Package history persists the append-only log of chat turns.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// ErrStorage matches every StorageError with errors.Is.
var ErrStorage = errors.New("storage error")

// Store is an append-only log of turns grouped by session.
//
// Append assigns the id and timestamp, ignoring whatever the caller put there, and
// persists the turn with a single insert. ListBySession returns the session's turns
// oldest first, and an empty slice when there are none.
type Store interface {
	Append(ctx context.Context, turn chat.Turn) (chat.Turn, error)
	ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// StorageError reports a failure of the persistence backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func validate(turn chat.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("invalid role %q", turn.Role)
	}
	return nil
}

// clock hands out non-decreasing timestamps truncated to the backend's precision.
type clock struct {
	mu        sync.Mutex
	last      time.Time
	now       func() time.Time
	precision time.Duration
}

func newClock(precision time.Duration) *clock {
	return &clock{
		now:       time.Now,
		precision: precision,
	}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UTC().Truncate(c.precision)
	if ts.Before(c.last) {
		ts = c.last
	}
	c.last = ts
	return ts
}
