package api

import (
	"fmt"
	"net/http"

	"github.com/modbus-edge/gateway/internal/alarm"
)

// getThresholds returns a defensive copy of the current alarm thresholds.
func (s *Server) getThresholds(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, s.opts.Alarm.GetThresholds())
}

// putThresholds validates and applies a new threshold config, persisting
// it atomically before responding with the shape that was saved.
func (s *Server) putThresholds(rw http.ResponseWriter, r *http.Request) {
	var payload alarm.Config
	if err := decode(r.Body, &payload); err != nil {
		handleError(fmt.Errorf("invalid threshold body: %w", err), http.StatusBadRequest, rw)
		return
	}

	if err := s.opts.Alarm.SetThresholds(payload); err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}
	writeJSON(rw, s.opts.Alarm.GetThresholds())
}
