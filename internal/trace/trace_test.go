package trace

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBindsTraceContextRetrievableViaFromContext(t *testing.T) {
	ctx, traceID := New(context.Background(), "u1", "cli")
	require.NotEmpty(t, traceID)
	require.Len(t, traceID, 16)

	tc := FromContext(ctx)
	require.Equal(t, traceID, tc.TraceID)
	require.Equal(t, "u1", tc.UserID)
	require.Equal(t, "cli", tc.Channel)
}

func TestFromContextZeroValueWithoutBinding(t *testing.T) {
	tc := FromContext(context.Background())
	require.Empty(t, tc.TraceID)
}

// recordingSink captures every emitted line.
type recordingSink struct{ lines []string }

func (s *recordingSink) Write(line string) error {
	s.lines = append(s.lines, line)
	return nil
}

// recordingRingStore captures every push, keyed by ring key.
type recordingRingStore struct{ pushed map[string][]string }

func (r *recordingRingStore) Push(_ context.Context, key, line string, _ int) error {
	if r.pushed == nil {
		r.pushed = make(map[string][]string)
	}
	r.pushed[key] = append(r.pushed[key], line)
	return nil
}

func TestEmitPushesToFirehoseAndPerTypeRing(t *testing.T) {
	sink := &recordingSink{}
	rings := &recordingRingStore{}
	tracer := NewTracer(sink, rings, nil)

	ctx, traceID := New(context.Background(), "u1", "cli")
	tracer.Emit(ctx, EventSkill, map[string]any{"skill_name": "file_read"})

	require.Len(t, sink.lines, 1)
	require.Len(t, rings.pushed["logs:all"], 1)
	require.Len(t, rings.pushed["logs:skill"], 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(sink.lines[0]), &decoded))
	require.Equal(t, traceID, decoded["trace_id"])
	require.Equal(t, "skill", decoded["event_type"])
	require.Equal(t, "file_read", decoded["skill_name"])
}

func TestEmitRedactsSensitiveKeysRecursively(t *testing.T) {
	sink := &recordingSink{}
	tracer := NewTracer(sink, nil, nil)
	ctx, _ := New(context.Background(), "u1", "cli")

	tracer.Emit(ctx, EventSkill, map[string]any{
		"params": map[string]any{
			"api_key": "sk-super-secret",
			"nested": []any{
				map[string]any{"token": "abc123"},
			},
		},
	})

	require.Len(t, sink.lines, 1)
	require.False(t, strings.Contains(sink.lines[0], "sk-super-secret"))
	require.False(t, strings.Contains(sink.lines[0], "abc123"))
	require.True(t, strings.Contains(sink.lines[0], redactedPlaceholder))
}

// failingSink and failingRingStore always error, to prove invariant 4: a
// tracing backend failure must never propagate to Emit's caller.
type failingSink struct{}

func (failingSink) Write(string) error { return errors.New("sink down") }

type failingRingStore struct{}

func (failingRingStore) Push(context.Context, string, string, int) error {
	return errors.New("ring store down")
}

func TestEmitSwallowsSinkAndRingStoreErrors(t *testing.T) {
	tracer := NewTracer(failingSink{}, failingRingStore{}, nil)
	ctx, _ := New(context.Background(), "u1", "cli")

	require.NotPanics(t, func() {
		tracer.Emit(ctx, EventChat, map[string]any{"message_preview": "hi"})
	})
}

func TestTruncateAppendsEllipsisPastMax(t *testing.T) {
	require.Equal(t, "hello", truncate("hello", 10))
	require.Equal(t, "hel...", truncate("hello", 3))
}

func TestLogChatRequestAndResponseEmitChatEvents(t *testing.T) {
	sink := &recordingSink{}
	tracer := NewTracer(sink, nil, nil)
	ctx, _ := New(context.Background(), "u1", "cli")

	tracer.LogChatRequest(ctx, strings.Repeat("a", 150), "claude-3", nil)
	tracer.LogChatResponse(ctx, "claude-3", strings.Repeat("b", 150), 42.5, nil)

	require.Len(t, sink.lines, 2)

	var req map[string]any
	require.NoError(t, json.Unmarshal([]byte(sink.lines[0]), &req))
	require.Equal(t, "chat", req["event_type"])
	require.Equal(t, strings.Repeat("a", 100)+"...", req["message_preview"])

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(sink.lines[1]), &resp))
	require.Equal(t, strings.Repeat("b", 100)+"...", resp["response_preview"])
	require.Equal(t, 42.5, resp["total_duration_ms"])
}

func TestLogApprovalEventOmitsResponseTimeWhenZero(t *testing.T) {
	sink := &recordingSink{}
	tracer := NewTracer(sink, nil, nil)
	ctx, _ := New(context.Background(), "u1", "cli")

	tracer.LogApprovalEvent(ctx, "appr-1", "file_write", "sandbox", "medium", "pending", "write config", 0)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(sink.lines[0]), &decoded))
	_, hasResponseTime := decoded["response_time_ms"]
	require.False(t, hasResponseTime)
}
