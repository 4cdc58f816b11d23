package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	shards, papers, records, err := s.ledger.Totals(r.Context())
	if err != nil {
		jsonError(w, "ledger unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	resp := map[string]any{
		"queue_depth": s.orchestrator.QueueDepth(),
		"ledger": map[string]int{
			"shards":  shards,
			"papers":  papers,
			"records": records,
		},
	}
	if s.tracker != nil {
		resp["papers"] = s.tracker.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
