// Package modelclient is the one deliberately thin seam between the
// orchestrator and a real LLM backend. The orchestrator never imports a
// provider SDK directly — it only ever sees Provider, so swapping Anthropic
// for an OpenAI-compatible endpoint is a config change, not a code change.
package modelclient

import (
	"context"
	"encoding/json"
)

// Message is one turn in the conversation the orchestrator is driving.
// Role is "user", "assistant", or "tool" — a tool-role message is the
// executor's sanitized output string re-entering model context, correlated
// back to the call that produced it via ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is one request, from the model, to invoke a named skill with the
// given arguments. Arguments arrives as raw JSON because providers differ on
// whether they hand back a parsed object or a JSON-encoded string — the
// orchestrator decodes it once, tolerating either.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSchema is the model-facing description of one callable skill, built
// from skill.Metadata by the orchestrator before every model call.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionRequest is one call to the model: the running conversation, the
// tool schemas currently on offer (nil/empty when the turn has no skills),
// and generation parameters.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSchema
	MaxTokens int
}

// CompletionResponse is the model's reply to one CompletionRequest. Text is
// the assistant's natural-language content, if any; ToolCalls is non-empty
// exactly when the model wants to invoke one or more skills before
// answering. Providers fill both fields when a turn carries text and tool
// calls together; the orchestrator treats "no tool calls" as the only
// terminal condition, so the Text of a reply with ToolCalls is not used as
// the answer.
type CompletionResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider wraps a single LLM backend behind one blocking call. Streaming is
// deliberately not exposed here — the orchestrator consumes one complete
// turn at a time per the tool-call loop's synchronous step structure, so a
// provider that streams internally (as a real SDK typically does) buffers
// its own output before returning.
type Provider interface {
	// Complete sends req and returns the model's full reply.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Name identifies the provider for logging and routing.
	Name() string

	// DefaultModel is used when a CompletionRequest leaves Model empty.
	DefaultModel() string
}
