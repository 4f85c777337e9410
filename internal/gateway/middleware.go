package gateway

import (
	"crypto/subtle"
	"net/http"
)

// apiKeyHeader is the single shared secret header every authenticated route
// requires.
const apiKeyHeader = "X-Api-Key"

// authMiddleware rejects any request whose X-Api-Key header does not match
// the configured key, comparing in constant time so response latency
// cannot leak how many leading bytes matched.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(apiKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
