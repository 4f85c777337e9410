package trace

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// sensitiveKeys are redacted recursively from any map passed to Emit or its
// typed helpers, regardless of nesting depth, matching invariant 5 of the
// data model: secrets must never appear in trace output.
var sensitiveKeys = map[string]bool{
	"password":   true,
	"token":      true,
	"secret":     true,
	"api_key":    true,
	"apikey":     true,
	"api_secret": true,
}

const redactedPlaceholder = "***REDACTED***"

// redactMap walks m recursively, replacing the value of any key that
// case-insensitively matches sensitiveKeys with redactedPlaceholder. Slices
// of maps are walked too, since skill params and policy payloads commonly
// nest lists of objects.
func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveKeys[strings.ToLower(k)] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return redactMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}

// StdoutSink writes trace lines to an io.Writer (stdout in production) as
// plain lines — the JSON is already serialized by Tracer.Emit.
type StdoutSink struct {
	w io.Writer
}

// NewStdoutSink wraps w as a Sink.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: w}
}

// Write implements Sink.
func (s *StdoutSink) Write(line string) error {
	_, err := io.WriteString(s.w, line+"\n")
	return err
}

// NewSlogLogger builds the application's structured logger: a JSON handler
// over w at the given level, used for operational logs distinct from the
// trace event stream (Tracer has its own Sink for that).
func NewSlogLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

type requestIDKey struct{}

// WithRequestID binds an HTTP-layer request id to ctx, independent of the
// trace_id carried by trace.Context — useful for correlating access logs
// with trace events without coupling the two context keys.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID reads the request id bound by WithRequestID, or "" if none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
