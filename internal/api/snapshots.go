package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// getSnapshots returns every tank's current Live Cache entry.
func (s *Server) getSnapshots(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, s.opts.LiveCache.All())
}

// getSnapshot returns one tank's current Live Cache entry.
func (s *Server) getSnapshot(rw http.ResponseWriter, r *http.Request) {
	tankID := mux.Vars(r)["tankId"]
	snap, ok := s.opts.LiveCache.Get(tankID)
	if !ok {
		handleError(errNotFound(tankID), http.StatusNotFound, rw)
		return
	}
	writeJSON(rw, snap)
}
