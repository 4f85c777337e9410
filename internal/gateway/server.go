// Package gateway is the front-door HTTP service: it wires the orchestrator,
// policy engine, and approval manager behind the authenticated routes named
// in the external-interfaces section, plus ambient /health and /metrics.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegisrun/aegis/internal/approval"
	"github.com/aegisrun/aegis/internal/config"
	"github.com/aegisrun/aegis/internal/orchestrator"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/storage"
	"github.com/aegisrun/aegis/internal/trace"
)

const (
	// maxInputSize caps a request body to guard against an unbounded read.
	maxInputSize = 1 << 20 // 1MB

	// maxProcessingTime bounds one /chat call end to end, independent of
	// the orchestrator's own iteration cap.
	maxProcessingTime = 10 * time.Minute

	// defaultSystemPrompt is used when no per-request override exists —
	// this runtime has no per-agent prompt configuration, unlike the
	// teacher's multi-agent registry.
	defaultSystemPrompt = "You are a helpful assistant with access to a fixed set of tools. " +
		"Use them when they would answer the user's request better than your own knowledge."
)

// Server holds every long-lived collaborator the HTTP surface needs. One
// Server is constructed at startup and never copied.
type Server struct {
	cfg          *config.Config
	orch         *orchestrator.Orchestrator
	policyEngine *policy.Engine
	approvals    *approval.Manager
	chatHistory  storage.ChatHistoryStore
	tracer       *trace.Tracer
	logger       *slog.Logger

	httpServer *http.Server
}

// New constructs a Server. None of the arguments may be nil except logger,
// which defaults to slog.Default().
func New(cfg *config.Config, orch *orchestrator.Orchestrator, policyEngine *policy.Engine, approvals *approval.Manager, chatHistory storage.ChatHistoryStore, tracer *trace.Tracer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		orch:         orch,
		policyEngine: policyEngine,
		approvals:    approvals,
		chatHistory:  chatHistory,
		tracer:       tracer,
		logger:       logger,
	}
}

// Mux builds the routed handler, method-pattern routes per Go 1.22's
// ServeMux, with the shared-api-key middleware applied to every route
// except the two exempted by the external-interfaces contract.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /chat", s.authMiddleware(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /chat/history/{user_id}", s.authMiddleware(http.HandlerFunc(s.handleChatHistory)))
	mux.Handle("POST /policy/reload", s.authMiddleware(http.HandlerFunc(s.handlePolicyReload)))
	mux.Handle("GET /approval/pending", s.authMiddleware(http.HandlerFunc(s.handleApprovalPending)))
	mux.Handle("GET /approval/{id}", s.authMiddleware(http.HandlerFunc(s.handleApprovalGet)))
	mux.Handle("POST /approval/{id}/respond", s.authMiddleware(http.HandlerFunc(s.handleApprovalRespond)))

	return mux
}

// Start binds addr and serves until ctx is cancelled, at which point it
// shuts down gracefully. It blocks until the server has fully stopped.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.ListenAddr
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway: shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
