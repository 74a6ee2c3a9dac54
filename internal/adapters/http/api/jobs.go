package api

import "net/http"

// handleTriggerNeighbors handles POST /jobs/neighbors.
func (s *Server) handleTriggerNeighbors(w http.ResponseWriter, r *http.Request) {
	const op = "api.trigger_neighbors"
	if !s.jobs.Trigger() {
		writeError(w, http.StatusConflict, "already_running", NewKind(op, ErrConflict))
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{Status: "started"})
}
