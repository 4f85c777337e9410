package skill

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegisrun/aegis/internal/approval"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/trace"
)

const testExecutorPolicyDoc = `
zones:
  sandbox:
    path: /tmp/aegis-executor-test
    read: allow
    write: allow
    execute: deny
rate_limits:
  default:
    max_calls: 1
    window_seconds: 60
  limited:
    max_calls: 0
    window_seconds: 60
external_access:
  http_get: allow
`

func newTestExecutorEngine(t *testing.T) *policy.Engine {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testExecutorPolicyDoc), 0o644))
	engine, err := policy.NewEngine(path, policy.NewMemoryRateLimiter())
	require.NoError(t, err)
	return engine
}

// fakeSkill is a minimal Skill whose behavior at every gate is configurable,
// so each pipeline stage can be exercised in isolation.
type fakeSkill struct {
	meta             Metadata
	valid            bool
	validateReason   string
	executed         bool
	executeErr       error
	sanitizeErr      error
	requiresApproval bool
}

func (s *fakeSkill) Metadata() Metadata { return s.meta }

func (s *fakeSkill) Validate(map[string]any) (bool, string) {
	return s.valid, s.validateReason
}

func (s *fakeSkill) Execute(context.Context, map[string]any) (any, error) {
	s.executed = true
	if s.executeErr != nil {
		return nil, s.executeErr
	}
	return "ok", nil
}

func (s *fakeSkill) Sanitize(result any) (string, error) {
	if s.sanitizeErr != nil {
		return "", s.sanitizeErr
	}
	return result.(string), nil
}

func (s *fakeSkill) RequiresApprovalFor(map[string]any) bool { return s.requiresApproval }

func newFakeSkill(name string) *fakeSkill {
	return &fakeSkill{
		meta: Metadata{
			Name:         name,
			RiskLevel:    policy.RiskLow,
			RateLimitKey: "default",
		},
		valid: true,
	}
}

func newTestExecutor(t *testing.T) (*Executor, *fakeSkill) {
	t.Helper()
	engine := newTestExecutorEngine(t)
	approvals := approval.NewManager(approval.NewMemoryStore(), 100*time.Millisecond)
	tracer := trace.NewTracer(nil, nil, nil)
	executor := NewExecutor(engine, approvals, tracer, NewSchemaValidator())
	return executor, newFakeSkill("fake")
}

func TestRunExecutesWhenNoApprovalRequired(t *testing.T) {
	executor, skill := newTestExecutor(t)
	result, err := executor.Run(context.Background(), skill, map[string]any{}, false, "u1")
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.True(t, skill.executed)
}

func TestRunSkipsExecuteWhenRateLimited(t *testing.T) {
	executor, skill := newTestExecutor(t)
	skill.meta.RateLimitKey = "limited"

	result, err := executor.Run(context.Background(), skill, map[string]any{}, false, "u1")
	require.NoError(t, err)
	require.Contains(t, result, "Rate limit reached")
	require.False(t, skill.executed)
}

func TestRunSkipsExecuteWhenValidateFails(t *testing.T) {
	executor, skill := newTestExecutor(t)
	skill.valid = false
	skill.validateReason = "missing field x"

	result, err := executor.Run(context.Background(), skill, map[string]any{}, false, "u1")
	require.NoError(t, err)
	require.Contains(t, result, "Invalid parameters")
	require.Contains(t, result, "missing field x")
	require.False(t, skill.executed)
}

func TestRunSkipsExecuteWhenApprovalRequiredAndNotAutoApproved(t *testing.T) {
	executor, skill := newTestExecutor(t)
	skill.requiresApproval = true

	result, err := executor.Run(context.Background(), skill, map[string]any{}, false, "u1")
	require.NoError(t, err)
	require.Contains(t, result, "was not approved")
	require.False(t, skill.executed)
}

func TestRunExecutesWhenApprovalRequiredButAutoApproveSet(t *testing.T) {
	executor, skill := newTestExecutor(t)
	skill.requiresApproval = true

	result, err := executor.Run(context.Background(), skill, map[string]any{}, true, "u1")
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.True(t, skill.executed)
}

// TestRunReturnsErrorOnlyForGenuineExecutionFault distinguishes a transport
// fault (non-nil Go error) from every policy refusal above (nil error).
func TestRunReturnsErrorOnlyForGenuineExecutionFault(t *testing.T) {
	executor, skill := newTestExecutor(t)
	skill.executeErr = errors.New("boom")

	result, err := executor.Run(context.Background(), skill, map[string]any{}, false, "u1")
	require.Error(t, err)
	require.Contains(t, result, "Execution error")
	require.True(t, skill.executed)
}

func TestRunReturnsErrorOnSanitizeFault(t *testing.T) {
	executor, skill := newTestExecutor(t)
	skill.sanitizeErr = errors.New("sanitize boom")

	result, err := executor.Run(context.Background(), skill, map[string]any{}, false, "u1")
	require.Error(t, err)
	require.Contains(t, result, "Output sanitization error")
}
