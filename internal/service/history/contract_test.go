package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store, concurrent bool) {
	t.Run("RoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		before := time.Now().UTC().Truncate(time.Millisecond)

		saved, err := store.Append(ctx, chat.UserTurn("s-1", "Bonjour, qui es-tu ?"))
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.False(t, saved.Timestamp.Before(before))

		turns, err := store.ListBySession(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, chat.RoleUser, turns[0].Role)
		assert.Equal(t, "Bonjour, qui es-tu ?", turns[0].Content)
		assert.Equal(t, "s-1", turns[0].SessionID)
		assert.Equal(t, saved.ID, turns[0].ID)
		assert.True(t, saved.Timestamp.Equal(turns[0].Timestamp))
	})

	t.Run("EmptySession", func(t *testing.T) {
		store := newStore(t)

		turns, err := store.ListBySession(context.Background(), "nobody")
		require.NoError(t, err)
		assert.NotNil(t, turns)
		assert.Empty(t, turns)
	})

	t.Run("OrderedAndIsolated", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			_, err := store.Append(ctx, chat.UserTurn("a", fmt.Sprintf("question %d", i)))
			require.NoError(t, err)
			_, err = store.Append(ctx, chat.BotTurn("a", fmt.Sprintf("answer %d", i)))
			require.NoError(t, err)
			_, err = store.Append(ctx, chat.UserTurn("b", "noise"))
			require.NoError(t, err)
		}

		turns, err := store.ListBySession(ctx, "a")
		require.NoError(t, err)
		require.Len(t, turns, 8)
		for i, turn := range turns {
			if i%2 == 0 {
				assert.Equal(t, chat.RoleUser, turn.Role)
				assert.Equal(t, fmt.Sprintf("question %d", i/2), turn.Content)
			} else {
				assert.Equal(t, chat.RoleBot, turn.Role)
				assert.Equal(t, fmt.Sprintf("answer %d", i/2), turn.Content)
			}
			if i > 0 {
				assert.False(t, turn.Timestamp.Before(turns[i-1].Timestamp), "timestamps must not decrease")
			}
		}

		other, err := store.ListBySession(ctx, "b")
		require.NoError(t, err)
		assert.Len(t, other, 4)
	})

	t.Run("IgnoresCallerFields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		turn := chat.BotTurn("s-2", "ok")
		turn.ID = "caller-id"
		turn.Timestamp = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

		saved, err := store.Append(ctx, turn)
		require.NoError(t, err)
		assert.NotEqual(t, "caller-id", saved.ID)
		assert.True(t, saved.Timestamp.After(turn.Timestamp))
	})

	t.Run("RejectsUnknownRole", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Append(context.Background(), chat.Turn{SessionID: "s", Role: "system", Content: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStorage))

		var storageErr *StorageError
		require.True(t, errors.As(err, &storageErr))
		assert.Equal(t, "append", storageErr.Op)
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})

	if !concurrent {
		return
	}

	t.Run("ConcurrentAppends", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Append(ctx, chat.UserTurn("busy", fmt.Sprintf("m%d", i)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		turns, err := store.ListBySession(ctx, "busy")
		require.NoError(t, err)
		assert.Len(t, turns, 20)
		for i := 1; i < len(turns); i++ {
			assert.False(t, turns[i].Timestamp.Before(turns[i-1].Timestamp), "timestamps must not decrease at %d", i)
		}
	})
}
