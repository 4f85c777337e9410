package policy

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window admission check for a named bucket. Two
// implementations exist — memory and Redis — and must be interchangeable:
// eviction drops entries older than window, admission is rejected once the
// count (after adding the current call) exceeds maxCalls.
type RateLimiter interface {
	Allow(ctx context.Context, bucket string, maxCalls int, window time.Duration) bool
}

// MemoryRateLimiter is a process-local sliding window keyed by bucket name.
// One mutex guards the whole map; the critical section is bounded by
// window size so this is cheap enough not to warrant per-bucket locks.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryRateLimiter constructs an empty in-process limiter.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{windows: make(map[string][]time.Time)}
}

// Allow evicts expired timestamps, then admits the call if the remaining
// count is still under maxCalls.
func (l *MemoryRateLimiter) Allow(_ context.Context, bucket string, maxCalls int, window time.Duration) bool {
	now := time.Now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.windows[bucket]
	kept := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= maxCalls {
		l.windows[bucket] = kept
		return false
	}
	l.windows[bucket] = append(kept, now)
	return true
}

// RedisRateLimiter is a durable sliding window backed by a Redis sorted set
// per bucket, keyed `ratelimit:<bucket>` with member = a fresh call id and
// score = unix timestamp. Eviction, insertion, and counting happen in one
// pipeline so the admission check is atomic; an overshoot rolls back the
// just-added member before returning deny.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter wraps an existing Redis client.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// Allow performs the atomic evict-add-count-rollback sequence described by
// the durable rate-limit bucket's data model. On any Redis error it falls
// back to the package-level in-process fallbackLimiter, whose windows are
// shared by every such call until Redis answers again.
func (l *RedisRateLimiter) Allow(ctx context.Context, bucket string, maxCalls int, window time.Duration) bool {
	now := time.Now()
	key := "ratelimit:" + bucket
	callID := uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).Unix(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: callID})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fallbackLimiter.Allow(ctx, bucket, maxCalls, window)
	}

	if int(card.Val()) > maxCalls {
		l.client.ZRem(ctx, key, callID)
		return false
	}
	return true
}

// fallbackLimiter backs RedisRateLimiter.Allow when Redis is unreachable,
// mirroring the degraded-mode fallback in the reference implementation's
// rate-limit check.
var fallbackLimiter = NewMemoryRateLimiter()
