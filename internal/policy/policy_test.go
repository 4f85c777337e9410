package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDoc = `
zones:
  sandbox:
    path: /tmp/aegis-policy-test/sandbox
    read: allow
    write: allow
    execute: deny
  identity:
    path: /tmp/aegis-policy-test/identity
    read: requires_approval
    write: deny
    execute: deny
  system:
    path: /tmp/aegis-policy-test/system
    read: deny
    write: deny
    execute: deny
rate_limits:
  default:
    max_calls: 2
    window_seconds: 60
external_access:
  http_get: allow
  http_post: requires_approval
  denied_url_patterns:
    - "internal\\.corp"
`

func newTestDocEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))
	engine, err := NewEngine(path, NewMemoryRateLimiter())
	require.NoError(t, err)
	return engine
}

func TestCheckFileAccessAllowsWithinSandbox(t *testing.T) {
	engine := newTestDocEngine(t)
	result := engine.CheckFileAccess("/tmp/aegis-policy-test/sandbox/note.txt", ActionRead)
	require.Equal(t, DecisionAllow, result.Decision)
	require.Equal(t, ZoneSandbox, result.Zone)
}

func TestCheckFileAccessRequiresApprovalInIdentityZone(t *testing.T) {
	engine := newTestDocEngine(t)
	result := engine.CheckFileAccess("/tmp/aegis-policy-test/identity/profile.json", ActionRead)
	require.Equal(t, DecisionRequiresApproval, result.Decision)
}

func TestCheckFileAccessDeniesOutsideAllZones(t *testing.T) {
	engine := newTestDocEngine(t)
	result := engine.CheckFileAccess("/etc/passwd", ActionRead)
	require.Equal(t, DecisionDeny, result.Decision)
	require.Equal(t, ZoneUnknown, result.Zone)
	require.Equal(t, RiskHigh, result.RiskLevel)
}

func TestCheckShellCommandDeniesHardCodedPatterns(t *testing.T) {
	engine := newTestDocEngine(t)
	result := engine.CheckShellCommand("rm -rf /")
	require.Equal(t, DecisionDeny, result.Decision)
	require.Equal(t, RiskCritical, result.RiskLevel)
}

func TestCheckShellCommandAllowsBenignCommand(t *testing.T) {
	engine := newTestDocEngine(t)
	result := engine.CheckShellCommand("ls -la")
	require.Equal(t, DecisionAllow, result.Decision)
}

// TestHardDenyListSurvivesReload proves invariant 2: even a reloaded
// document that tries to weaken the deny list cannot, because the list is
// never part of Config at all.
func TestHardDenyListSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))
	engine, err := NewEngine(path, NewMemoryRateLimiter())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(testDoc+"\nhard_deny_patterns: []\n"), 0o644))
	require.NoError(t, engine.Reload())

	result := engine.CheckShellCommand("rm -rf /")
	require.Equal(t, DecisionDeny, result.Decision)
}

func TestReloadKeepsPriorConfigOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))
	engine, err := NewEngine(path, NewMemoryRateLimiter())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))
	require.Error(t, engine.Reload())

	result := engine.CheckFileAccess("/tmp/aegis-policy-test/sandbox/note.txt", ActionRead)
	require.Equal(t, DecisionAllow, result.Decision)
}

func TestCheckHTTPAccessDeniesDeniedURLPattern(t *testing.T) {
	engine := newTestDocEngine(t)
	result := engine.CheckHTTPAccess("https://internal.corp/secrets", "GET")
	require.Equal(t, DecisionDeny, result.Decision)
}

func TestCheckHTTPAccessAppliesPerMethodRule(t *testing.T) {
	engine := newTestDocEngine(t)
	get := engine.CheckHTTPAccess("https://example.com/data", "GET")
	require.Equal(t, DecisionAllow, get.Decision)

	post := engine.CheckHTTPAccess("https://example.com/data", "POST")
	require.Equal(t, DecisionRequiresApproval, post.Decision)
}

func TestCheckRateLimitRejectsAfterMaxCalls(t *testing.T) {
	engine := newTestDocEngine(t)
	ctx := context.Background()
	require.True(t, engine.CheckRateLimit(ctx, "default"))
	require.True(t, engine.CheckRateLimit(ctx, "default"))
	require.False(t, engine.CheckRateLimit(ctx, "default"))
}
