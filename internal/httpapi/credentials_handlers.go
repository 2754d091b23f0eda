package httpapi

import "net/http"

// handleListCredentials reports credential-ids only, per spec §6 — never
// the secrets themselves.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	ids, err := s.credential.ListIDs(r.Context())
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}
