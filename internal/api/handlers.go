package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/health"
	"github.com/nerrad567/gray-logic-relay/internal/journal"
)

// handleHealth returns the latest health snapshot. Unhealthy answers 503 so
// the endpoint can back a liveness probe directly.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.health.Snapshot()
	status := http.StatusOK
	if snap.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

// handleEvents lists journaled link events.
//
// Query parameters: link, type, since (RFC 3339), limit, offset.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJournalDisabled(w)
		return
	}

	q := r.URL.Query()
	f := journal.Filter{
		Link: q.Get("link"),
		Type: q.Get("type"),
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeInvalidQuery(w, "since", "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = since
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeInvalidQuery(w, name, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	result, err := s.journal.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing journal events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
