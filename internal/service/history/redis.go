package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// turnEntry is the JSON value pushed onto a session list.
type turnEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RedisStore keeps one Redis list per session; RPUSH is the append and list order
// is insertion order.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  *clock
}

// OpenRedis connects using a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStore(client, cfg.RedisKeyPrefix), nil
}

// NewRedisStore wraps an existing client. Keys are "<prefix>turns:<sessionId>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		clock:  newClock(time.Microsecond),
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + "turns:" + sessionID
}

// Append pushes the encoded turn onto the session list.
func (s *RedisStore) Append(ctx context.Context, turn chat.Turn) (chat.Turn, error) {
	if err := validate(turn); err != nil {
		return chat.Turn{}, storageErr("append", err)
	}

	entry := turnEntry{
		ID:        uuid.NewString(),
		SessionID: turn.SessionID,
		Role:      string(turn.Role),
		Content:   turn.Content,
		Timestamp: s.clock.next(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return chat.Turn{}, storageErr("append", err)
	}

	if err := s.client.RPush(ctx, s.key(turn.SessionID), data).Err(); err != nil {
		return chat.Turn{}, storageErr("append", err)
	}
	return entry.turn(), nil
}

// ListBySession reads the whole session list. Concurrent appends may push out of clock
// order, so turns are stably sorted by timestamp; ties keep list order.
func (s *RedisStore) ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	values, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, storageErr("list", err)
	}

	turns := make([]chat.Turn, 0, len(values))
	for _, value := range values {
		var entry turnEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			return nil, storageErr("list", fmt.Errorf("decode turn: %w", err))
		}
		turns = append(turns, entry.turn())
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	return turns, nil
}

func (e turnEntry) turn() chat.Turn {
	return chat.Turn{
		ID:        e.ID,
		SessionID: e.SessionID,
		Role:      chat.Role(e.Role),
		Content:   e.Content,
		Timestamp: e.Timestamp.UTC(),
	}
}

// Ping checks the server.
func (s *RedisStore) Ping(ctx context.Context) error {
	return storageErr("ping", s.client.Ping(ctx).Err())
}

// Close closes the client.
func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}
