package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// healthz reports whether the poller's last completed tick is recent
// enough (within 2x cadence); used by a reverse proxy or systemd as a
// liveness probe, not a readiness gate on any individual device.
func (s *Server) healthz(rw http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		rw.WriteHeader(http.StatusOK)
		return
	}

	age, ok := s.opts.Health.LastTickAge()
	if !ok {
		writeJSON(rw, map[string]interface{}{"status": "starting"})
		return
	}

	healthy := age <= 2*s.opts.Health.Cadence()
	if !healthy {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(rw, map[string]interface{}{
		"status":       map[bool]string{true: "ok", false: "stale"}[healthy],
		"lastTickAgeS": age.Seconds(),
	})
}
