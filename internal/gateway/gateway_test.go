package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegisrun/aegis/internal/approval"
	"github.com/aegisrun/aegis/internal/config"
	"github.com/aegisrun/aegis/internal/modelclient"
	"github.com/aegisrun/aegis/internal/orchestrator"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
	"github.com/aegisrun/aegis/internal/storage"
	"github.com/aegisrun/aegis/internal/trace"
)

const testPolicyDoc = `
zones:
  sandbox:
    path: /tmp/aegis-gateway-test
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

// stubProvider always answers in plain text, exercising the orchestrator's
// no-tools fast path.
type stubProvider struct{ text string }

func (p *stubProvider) Complete(context.Context, modelclient.CompletionRequest) (modelclient.CompletionResponse, error) {
	return modelclient.CompletionResponse{Text: p.text}, nil
}
func (p *stubProvider) Name() string         { return "stub" }
func (p *stubProvider) DefaultModel() string { return "stub-model" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(testPolicyDoc), 0o644))

	engine, err := policy.NewEngine(policyPath, policy.NewMemoryRateLimiter())
	require.NoError(t, err)

	approvals := approval.NewManager(approval.NewMemoryStore(), time.Minute)
	tracer := trace.NewTracer(nil, storage.NewMemoryRingStore(), nil)
	executor := skill.NewExecutor(engine, approvals, tracer, nil)
	catalog := skill.NewCatalog()
	provider := &stubProvider{text: "hello"}
	orch := orchestrator.New(provider, catalog, executor, engine, 10)

	cfg := &config.Config{
		APIKey:        "test-key",
		ListenAddr:    ":0",
		DefaultModels: config.ModelRouting{"default": "stub-model"},
	}

	return New(cfg, orch, engine, approvals, storage.NewMemoryChatHistoryStore(), tracer, nil)
}

func TestHealthIsUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRejectsMissingAPIKey(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(chatRequest{Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatHappyPathPersistsHistory(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(chatRequest{Message: "hi", UserID: "u1"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set(apiKeyHeader, "test-key")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "hello", resp.Response)
	require.NotEmpty(t, resp.TraceID)

	historyReq := httptest.NewRequest(http.MethodGet, "/chat/history/u1", nil)
	historyReq.Header.Set(apiKeyHeader, "test-key")
	historyRec := httptest.NewRecorder()
	s.Mux().ServeHTTP(historyRec, historyReq)
	require.Equal(t, http.StatusOK, historyRec.Code)

	var historyResp map[string]any
	require.NoError(t, json.NewDecoder(historyRec.Body).Decode(&historyResp))
	require.Len(t, historyResp["history"], 2)
}

func TestApprovalRespondConflictOnDoubleResolve(t *testing.T) {
	s := newTestServer(t)
	id, err := s.approvals.Create(context.Background(), "file_write", "sandbox", "medium", "write a file", "/tmp/x", "")
	require.NoError(t, err)

	respond := func() int {
		body, _ := json.Marshal(approvalRespondRequest{Status: "approved", ResolvedBy: "tester"})
		req := httptest.NewRequest(http.MethodPost, "/approval/"+id+"/respond", bytes.NewReader(body))
		req.Header.Set(apiKeyHeader, "test-key")
		rec := httptest.NewRecorder()
		s.Mux().ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, respond())
	require.Equal(t, http.StatusConflict, respond())
}

func TestApprovalRespondNotFound(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(approvalRespondRequest{Status: "approved", ResolvedBy: "tester"})
	req := httptest.NewRequest(http.MethodPost, "/approval/ghost/respond", bytes.NewReader(body))
	req.Header.Set(apiKeyHeader, "test-key")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyReload(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/policy/reload", nil)
	req.Header.Set(apiKeyHeader, "test-key")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
