// Package storage defines the two storage-backed interfaces the gateway and
// tracer need that don't already live closer to their owning package (the
// approval manager and the policy engine's rate limiter define their own
// Store/RateLimiter interfaces) — chat history and the trace ring buffers —
// plus in-memory and Redis-backed implementations of each.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup finds no record for the given key.
	ErrNotFound = errors.New("not found")
)

// ChatTurn is one stored turn of a user's conversation history.
type ChatTurn struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// ChatHistoryStore persists conversation history per user at key
// `chat:<user_id>`, per §6 of the external-interfaces spec. Only
// user-and-assistant turns belong here — the orchestrator's intermediate
// tool-role messages are never appended, matching §4.5's instruction that
// callers must not persist those to long-lived history.
type ChatHistoryStore interface {
	// Append adds turn to userID's history.
	Append(ctx context.Context, userID string, turn ChatTurn) error
	// History returns userID's stored turns in chronological order.
	History(ctx context.Context, userID string) ([]ChatTurn, error)
}
