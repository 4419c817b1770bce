package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// Health status values.
const (
	healthOK       = "ok"
	healthStarting = "starting"
	healthDegraded = "degraded"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	ActorID string            `json:"actor_id"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth reports the actor's startup state and each dependency check.
//
// The status is "starting" until the startup connect finishes, "degraded"
// (503) when that connect failed or a check fails, and "ok" otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  healthOK,
		Version: s.version,
		ActorID: s.actor.ID(),
	}

	switch {
	case !s.actor.IsReady():
		resp.Status = healthStarting
	case s.actor.DidFail():
		resp.Status = healthDegraded
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = healthDegraded
				continue
			}
			resp.Checks[name] = healthOK
		}
	}

	status := http.StatusOK
	if resp.Status == healthDegraded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
