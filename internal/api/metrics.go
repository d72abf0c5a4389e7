package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/bridge"
	"github.com/nerrad567/gray-logic-relay/internal/health"
)

// SystemMetrics represents the complete /api/v1/metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Status        health.Status  `json:"status"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Bridge        bridge.Stats   `json:"bridge"`
	Links         []LinkMetrics  `json:"links"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// LinkMetrics contains one link's state and outbound queue statistics.
type LinkMetrics struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Since      time.Time `json:"since"`
	Delivered  uint64    `json:"delivered"`
	QueueDepth int       `json:"queue_depth"`
	QueueCap   int       `json:"queue_capacity"`
	Overflowed uint64    `json:"overflowed"`
	Expired    uint64    `json:"expired"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns runtime, bridge and link statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Status:        s.health.Snapshot().Status,
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Bridge: s.bridge.Stats(),
		Links:  make([]LinkMetrics, 0, len(s.links)),
	}

	for _, l := range s.links {
		q := l.Outbound()
		metrics.Links = append(metrics.Links, LinkMetrics{
			Name:       l.Name(),
			State:      l.State().String(),
			Since:      l.Since().UTC(),
			Delivered:  l.Delivered(),
			QueueDepth: q.Len(),
			QueueCap:   q.Cap(),
			Overflowed: q.Overflowed(),
			Expired:    q.Expired(),
		})
	}

	writeJSON(w, http.StatusOK, metrics)
}
