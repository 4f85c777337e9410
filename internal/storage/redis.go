package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const chatKeyPrefix = "chat:"

// RedisChatHistoryStore is the durable ChatHistoryStore, matching the
// `chat:<user_id>` JSON-encoded-list key layout.
type RedisChatHistoryStore struct {
	client *redis.Client
}

// NewRedisChatHistoryStore wraps an existing Redis client.
func NewRedisChatHistoryStore(client *redis.Client) *RedisChatHistoryStore {
	return &RedisChatHistoryStore{client: client}
}

func (s *RedisChatHistoryStore) Append(ctx context.Context, userID string, turn ChatTurn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, chatKeyPrefix+userID, payload).Err()
}

func (s *RedisChatHistoryStore) History(ctx context.Context, userID string) ([]ChatTurn, error) {
	raw, err := s.client.LRange(ctx, chatKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]ChatTurn, 0, len(raw))
	for _, r := range raw {
		var turn ChatTurn
		if err := json.Unmarshal([]byte(r), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// RedisRingStore implements trace.RingStore as a durable lpush-then-ltrim
// list per key, matching the `logs:all` / `logs:<event_type>` layout.
type RedisRingStore struct {
	client *redis.Client
}

// NewRedisRingStore wraps an existing Redis client.
func NewRedisRingStore(client *redis.Client) *RedisRingStore {
	return &RedisRingStore{client: client}
}

func (s *RedisRingStore) Push(ctx context.Context, key string, line string, cap int) error {
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, line)
	pipe.LTrim(ctx, key, 0, int64(cap)-1)
	_, err := pipe.Exec(ctx)
	return err
}
