package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aegisrun/aegis/internal/modelclient"
	"github.com/aegisrun/aegis/internal/storage"
	"github.com/aegisrun/aegis/internal/trace"
)

type chatRequest struct {
	Message     string `json:"message"`
	Model       string `json:"model"`
	UserID      string `json:"user_id"`
	Channel     string `json:"channel"`
	AutoApprove bool   `json:"auto_approve"`
	History     bool   `json:"history"`
}

type chatResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	TraceID  string `json:"trace_id"`
}

// handleChat is the core of the HTTP surface: it resolves a trace context,
// optionally seeds the conversation with stored history, runs the
// orchestrator loop, and persists the new turns.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxInputSize)
	defer r.Body.Close()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = "anonymous"
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = "http"
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.cfg.DefaultModels["default"]
	}

	ctx, traceID := trace.New(r.Context(), userID, channel)
	ctx, cancel := context.WithTimeout(ctx, maxProcessingTime)
	defer cancel()

	s.tracer.LogChatRequest(ctx, message, model, nil)
	start := time.Now()

	messages := s.buildMessages(ctx, userID, req.History, message)

	responseText, _, stats, err := s.orch.Run(ctx, messages, defaultSystemPrompt, model, req.AutoApprove, userID)
	if err != nil {
		s.logger.Error("chat: model endpoint error", "error", err, "trace_id", traceID)
		writeError(w, http.StatusServiceUnavailable, "model endpoint error")
		return
	}

	durationMS := float64(time.Since(start).Milliseconds())
	s.tracer.LogChatResponse(ctx, model, responseText, durationMS, map[string]any{
		"iterations":    stats.Iterations,
		"skills_called": stats.SkillsCalled,
	})

	if err := s.chatHistory.Append(ctx, userID, storage.ChatTurn{Role: "user", Content: message, Timestamp: unixSeconds(start)}); err != nil {
		s.logger.Warn("chat: history append failed", "error", err)
	}
	if err := s.chatHistory.Append(ctx, userID, storage.ChatTurn{Role: "assistant", Content: responseText, Timestamp: unixSeconds(time.Now())}); err != nil {
		s.logger.Warn("chat: history append failed", "error", err)
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: responseText, Model: model, TraceID: traceID})
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// buildMessages seeds the conversation with stored history when requested,
// then appends the new user message.
func (s *Server) buildMessages(ctx context.Context, userID string, includeHistory bool, message string) []modelclient.Message {
	var messages []modelclient.Message
	if includeHistory {
		turns, err := s.chatHistory.History(ctx, userID)
		if err != nil {
			s.logger.Warn("chat: history load failed", "error", err)
		}
		for _, turn := range turns {
			messages = append(messages, modelclient.Message{Role: turn.Role, Content: turn.Content})
		}
	}
	return append(messages, modelclient.Message{Role: "user", Content: message})
}

// handleChatHistory returns the raw stored turns for a user — no
// summarization, per the resolved history-truncation Open Question.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	turns, err := s.chatHistory.History(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "history": turns})
}
