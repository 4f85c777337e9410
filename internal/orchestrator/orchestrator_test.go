package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegisrun/aegis/internal/approval"
	"github.com/aegisrun/aegis/internal/modelclient"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
	"github.com/aegisrun/aegis/internal/trace"
)

const testPolicyDoc = `
zones:
  sandbox:
    path: /tmp/aegis-sandbox
    read: allow
    write: allow
    execute: deny
rate_limits:
  default:
    max_calls: 100
    window_seconds: 60
external_access:
  http_get: allow
`

func newTestEngine(t *testing.T) *policy.Engine {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicyDoc), 0o644))
	engine, err := policy.NewEngine(path, policy.NewMemoryRateLimiter())
	require.NoError(t, err)
	return engine
}

func newTestExecutor(t *testing.T) *skill.Executor {
	t.Helper()
	engine := newTestEngine(t)
	approvals := approval.NewManager(approval.NewMemoryStore(), 0)
	tracer := trace.NewTracer(nil, nil, nil)
	return skill.NewExecutor(engine, approvals, tracer, nil)
}

// stubProvider replays a fixed queue of responses, one per Complete call.
type stubProvider struct {
	responses []modelclient.CompletionResponse
	call      int
	requests  []modelclient.CompletionRequest
}

func (p *stubProvider) Complete(_ context.Context, req modelclient.CompletionRequest) (modelclient.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if p.call >= len(p.responses) {
		return modelclient.CompletionResponse{}, nil
	}
	resp := p.responses[p.call]
	p.call++
	return resp, nil
}

func (p *stubProvider) Name() string         { return "stub" }
func (p *stubProvider) DefaultModel() string { return "stub-model" }

// echoSkill validates nothing, echoes back its "value" parameter.
type echoSkill struct {
	calls int
}

func (s *echoSkill) Metadata() skill.Metadata {
	return skill.Metadata{
		Name:            "echo",
		Description:     "echoes a value",
		Parameters:      json.RawMessage(`{"type":"object","properties":{"value":{"type":"string"}}}`),
		RiskLevel:       policy.RiskLow,
		RateLimitKey:    "echo",
		MaxCallsPerTurn: 2,
	}
}

func (s *echoSkill) Validate(map[string]any) (bool, string) { return true, "" }

func (s *echoSkill) Execute(_ context.Context, params map[string]any) (any, error) {
	s.calls++
	v, _ := params["value"].(string)
	return v, nil
}

func (s *echoSkill) Sanitize(result any) (string, error) {
	return result.(string), nil
}

func TestRunNoToolsFastPath(t *testing.T) {
	catalog := skill.NewCatalog()
	provider := &stubProvider{responses: []modelclient.CompletionResponse{{Text: "hello there"}}}
	orch := New(provider, catalog, newTestExecutor(t), newTestEngine(t), 10)

	text, messages, stats, err := orch.Run(context.Background(), nil, "", "stub-model", true, "u1")
	require.NoError(t, err)
	require.Equal(t, "hello there", text)
	require.Equal(t, 0, stats.Iterations)
	require.Nil(t, stats.SkillsCalled)
	require.Len(t, messages, 1)
	require.Equal(t, "assistant", messages[0].Role)
}

func TestRunDispatchesToolCallAndReturnsFinalText(t *testing.T) {
	es := &echoSkill{}
	catalog := skill.NewCatalog(es)
	provider := &stubProvider{responses: []modelclient.CompletionResponse{
		{ToolCalls: []modelclient.ToolCall{{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"value":"ping"}`)}}},
		{Text: "done: ping"},
	}}
	orch := New(provider, catalog, newTestExecutor(t), newTestEngine(t), 10)

	text, _, stats, err := orch.Run(context.Background(), nil, "", "stub-model", true, "u1")
	require.NoError(t, err)
	require.Equal(t, "done: ping", text)
	require.Equal(t, 1, es.calls)
	require.Equal(t, []string{"echo"}, stats.SkillsCalled)
}

func TestRunUnknownSkillSynthesizesMessage(t *testing.T) {
	catalog := skill.NewCatalog()
	provider := &stubProvider{responses: []modelclient.CompletionResponse{
		{ToolCalls: []modelclient.ToolCall{{ID: "1", Name: "ghost", Arguments: json.RawMessage(`{}`)}}},
		{Text: "ok"},
	}}
	orch := New(provider, catalog, newTestExecutor(t), newTestEngine(t), 10)

	_, messages, _, err := orch.Run(context.Background(), nil, "", "stub-model", true, "u1")
	require.NoError(t, err)

	var found bool
	for _, m := range messages {
		if m.Role == "tool" && m.Content == "[ghost] Unknown skill — not registered." {
			found = true
		}
	}
	require.True(t, found, "expected synthesized unknown-skill message, got %+v", messages)
}

func TestRunPerTurnCapSynthesizesMessage(t *testing.T) {
	es := &echoSkill{}
	catalog := skill.NewCatalog(es)
	call := modelclient.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"value":"x"}`)}
	provider := &stubProvider{responses: []modelclient.CompletionResponse{
		{ToolCalls: []modelclient.ToolCall{call, call, call}},
		{Text: "ok"},
	}}
	orch := New(provider, catalog, newTestExecutor(t), newTestEngine(t), 10)

	_, messages, _, err := orch.Run(context.Background(), nil, "", "stub-model", true, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, es.calls)

	var capped bool
	for _, m := range messages {
		if m.Role == "tool" && m.Content == "[echo] Per-turn call limit (2) reached — try a different approach." {
			capped = true
		}
	}
	require.True(t, capped)
}

func TestRunMaxIterationsPrefixesFallback(t *testing.T) {
	es := &echoSkill{}
	catalog := skill.NewCatalog(es)
	call := modelclient.ToolCall{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"value":"x"}`)}
	responses := make([]modelclient.CompletionResponse, 0, 4)
	for i := 0; i < 3; i++ {
		responses = append(responses, modelclient.CompletionResponse{ToolCalls: []modelclient.ToolCall{call}})
	}
	responses = append(responses, modelclient.CompletionResponse{Text: "best guess"})
	provider := &stubProvider{responses: responses}
	orch := New(provider, catalog, newTestExecutor(t), newTestEngine(t), 3)

	text, _, stats, err := orch.Run(context.Background(), nil, "", "stub-model", true, "u1")
	require.NoError(t, err)
	require.Equal(t, "[max iterations reached]\nbest guess", text)
	require.Equal(t, 3, stats.Iterations)
}

func TestRunRefusalNudgeFiresOnceOnFirstIteration(t *testing.T) {
	catalog := skill.NewCatalog(&echoSkill{})
	provider := &stubProvider{responses: []modelclient.CompletionResponse{
		{Text: "I don't have real-time access to that."},
		{Text: "Let me check the web instead."},
	}}
	orch := New(provider, catalog, newTestExecutor(t), newTestEngine(t), 10)

	text, messages, _, err := orch.Run(context.Background(), nil, "", "stub-model", true, "u1")
	require.NoError(t, err)
	require.Equal(t, "Let me check the web instead.", text)

	var nudgeSeen bool
	for _, m := range messages {
		if m.Role == "user" && m.Content == refusalNudge {
			nudgeSeen = true
		}
	}
	require.True(t, nudgeSeen)
	require.Equal(t, 2, provider.call)
}
