package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/dailyquote/internal/observability"
)

// handlePerfStages reports rolling latencies of recent pipeline stages,
// optionally narrowed with ?stage=a,b.
func (s *Server) handlePerfStages(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.SnapshotStages()
	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		want := make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			want[strings.TrimSpace(name)] = true
		}
		kept := make([]observability.StageStats, 0, len(snap.Stages))
		for _, st := range snap.Stages {
			if want[st.Stage] {
				kept = append(kept, st)
			}
		}
		snap.Stages = kept
	}
	respondJSON(w, http.StatusOK, snap)
}
