package gateway

import "net/http"

// handlePolicyReload re-reads the policy document. A parse failure leaves
// the prior configuration in effect — the hard deny-list is compiled-in
// and unaffected either way.
func (s *Server) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if err := s.policyEngine.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded"})
}
