package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aegisrun/aegis/internal/approval"
)

// handleApprovalPending lists every record currently awaiting resolution.
func (s *Server) handleApprovalPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.approvals.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pending approvals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

// handleApprovalGet inspects a single approval request.
func (s *Server) handleApprovalGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	req, ok := s.approvals.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type approvalRespondRequest struct {
	Status     string `json:"status"`
	ResolvedBy string `json:"resolved_by"`
}

// handleApprovalRespond resolves a pending approval to approved or denied.
// It returns 404 for an unknown id and 409 when the record is no longer
// pending — the write-once resolution guarantee.
func (s *Server) handleApprovalRespond(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))

	var req approvalRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var status approval.Status
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "approved":
		status = approval.StatusApproved
	case "denied":
		status = approval.StatusDenied
	default:
		writeError(w, http.StatusBadRequest, "status must be \"approved\" or \"denied\"")
		return
	}

	if _, ok := s.approvals.Get(r.Context(), id); !ok {
		writeError(w, http.StatusNotFound, "approval not found")
		return
	}

	resolved, err := s.approvals.Resolve(r.Context(), id, status, strings.TrimSpace(req.ResolvedBy))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve approval")
		return
	}
	if !resolved {
		writeError(w, http.StatusConflict, "approval already resolved")
		return
	}

	req2, _ := s.approvals.Get(r.Context(), id)
	writeJSON(w, http.StatusOK, req2)
}
