package httpapi

import "net/http"

type cacheSummary struct {
	TotalEntries int `json:"total_entries"`
}

func (s *Server) handleCacheInspectAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.Count()
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, cacheSummary{TotalEntries: n})
}

func (s *Server) handleCacheInvalidateAll(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.InvalidateAll(); err != nil {
		writeTomErr(w, err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheInspectDevice(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")
	entries, err := s.cache.ListDevice(device)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCacheInvalidateDevice(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")
	if err := s.cache.InvalidateDevice(device); err != nil {
		writeTomErr(w, err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
