package approval

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "approval:"

// RedisStore is the durable Store, matching the `approval:<uuid>` hash key
// layout and `approvals:pending` pub/sub channel.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, logger: logger}
}

func fieldMap(req Request) map[string]any {
	m := map[string]any{
		"id":          req.ID,
		"action":      req.Action,
		"zone":        req.Zone,
		"risk_level":  req.RiskLevel,
		"description": req.Description,
		"target":      req.Target,
		"status":      string(req.Status),
		"created_at":  strconv.FormatFloat(req.CreatedAt, 'f', -1, 64),
	}
	if req.ProposedContent != "" {
		m["proposed_content"] = req.ProposedContent
	}
	return m
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, req Request, expiry time.Duration) error {
	key := keyPrefix + req.ID
	if err := s.client.HSet(ctx, key, fieldMap(req)).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, expiry).Err()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (Request, bool) {
	data, err := s.client.HGetAll(ctx, keyPrefix+id).Result()
	if err != nil || len(data) == 0 {
		return Request{}, false
	}
	return requestFromFields(data), true
}

// CompareAndResolve implements Store. It uses WATCH/MULTI to ensure the
// pending check and the write are atomic even under concurrent resolvers.
func (s *RedisStore) CompareAndResolve(ctx context.Context, id string, status Status, resolvedBy string, resolvedAt float64) (bool, error) {
	key := keyPrefix + id
	resolved := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "status").Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if current != string(StatusPending) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]any{
				"status":      string(status),
				"resolved_at": strconv.FormatFloat(resolvedAt, 'f', -1, 64),
				"resolved_by": resolvedBy,
			})
			return nil
		})
		if err == nil {
			resolved = true
		}
		return err
	}, key)

	if err != nil {
		return false, err
	}
	return resolved, nil
}

// ListPending implements Store by scanning approval:* keys. For startup
// catch-up and the inspection endpoint; not on any hot path.
func (s *RedisStore) ListPending(ctx context.Context) ([]Request, error) {
	var pending []Request
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil || len(data) == 0 {
			continue
		}
		req := requestFromFields(data)
		if req.Status == StatusPending {
			pending = append(pending, req)
		}
	}
	return pending, iter.Err()
}

// Publish best-effort notifies approvals:pending. Errors are logged, never
// returned — waiters poll the durable record regardless.
func (s *RedisStore) Publish(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.Warn("approval: marshal notification failed", "error", err)
		return
	}
	if err := s.client.Publish(ctx, notifyChannel, payload).Err(); err != nil {
		s.logger.Warn("approval: publish notification failed", "error", err)
	}
}

func requestFromFields(data map[string]string) Request {
	createdAt, _ := strconv.ParseFloat(data["created_at"], 64)
	resolvedAt, _ := strconv.ParseFloat(data["resolved_at"], 64)
	return Request{
		ID:              data["id"],
		Action:          data["action"],
		Zone:            data["zone"],
		RiskLevel:       data["risk_level"],
		Description:     data["description"],
		Target:          data["target"],
		ProposedContent: data["proposed_content"],
		Status:          Status(data["status"]),
		CreatedAt:       createdAt,
		ResolvedAt:      resolvedAt,
		ResolvedBy:      data["resolved_by"],
	}
}
