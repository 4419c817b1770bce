package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Actor         ActorMetrics   `json:"actor"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ActorMetrics contains actor and device-set statistics.
type ActorMetrics struct {
	ID            string `json:"id"`
	Ready         bool   `json:"ready"`
	StartupFailed bool   `json:"startup_failed"`
	Slots         int    `json:"slots"`
	FilledSlots   int    `json:"filled_slots"`
	LoopPending   int    `json:"loop_pending"`
}

// handleMetrics returns process and actor metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Actor: ActorMetrics{
			ID:            s.actor.ID(),
			Ready:         s.actor.IsReady(),
			StartupFailed: s.actor.DidFail(),
			LoopPending:   s.actor.Loop().Pending(),
		},
	}

	err := s.actor.Do(r.Context(), func(set *deviceset.Set) {
		metrics.Actor.Slots = set.Len()
		metrics.Actor.FilledSlots = len(set.FilledSlots())
	})
	if err != nil {
		writeSetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}
