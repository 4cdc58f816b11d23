package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dgallion1/figcap/internal/ledger"
)

func (s *Server) handleListShards(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	results, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		jsonError(w, "failed to list shards: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []ledger.ShardResult{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"shards": results})
}

// handleForgetShard drops a shard from the ledger so the next job
// reprocesses it. Output tars already written are left alone.
func (s *Server) handleForgetShard(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("shard")
	if name == "" {
		jsonError(w, "shard query parameter is required", http.StatusBadRequest)
		return
	}
	ok, err := s.ledger.Forget(r.Context(), name)
	if err != nil {
		jsonError(w, "failed to forget shard: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "shard not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"shard": name, "forgotten": true})
}
