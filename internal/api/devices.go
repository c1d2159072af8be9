package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/modbus-edge/gateway/internal/family"
)

// deviceEntry is one row of the tank list response.
type deviceEntry struct {
	TankID  string `json:"tankId"`
	Family  string `json:"family"`
	IP      string `json:"ip"`
	Enabled bool   `json:"enabled"`
}

// getDevices returns the flattened tank list (current families) alongside
// the ctrl-family enable map, so a UI can render one table of "known
// device -> currently polled?" without a second round trip.
func (s *Server) getDevices(rw http.ResponseWriter, r *http.Request) {
	enabled, exists, err := readEnableMap(s.opts.ConfigDir)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	var out []deviceEntry
	for _, fam := range s.opts.Families.Families() {
		for _, dev := range fam.Devices {
			// fam.Devices already reflects the ctrl enable filter applied by
			// the Family Loader. With no enable map every device is enabled;
			// otherwise a ctrl device is enabled only if the map on disk
			// currently marks it true (a missing key reads as disabled).
			isEnabled := true
			if fam.ID == family.IDCtrl && exists {
				isEnabled = enabled[dev.TankID]
			}
			out = append(out, deviceEntry{TankID: dev.TankID, Family: fam.ID, IP: dev.IP, Enabled: isEnabled})
		}
	}
	writeJSON(rw, out)
}

// getEnableMap returns the raw ctrl-family device-enable map.
func (s *Server) getEnableMap(rw http.ResponseWriter, r *http.Request) {
	enabled, _, err := readEnableMap(s.opts.ConfigDir)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	writeJSON(rw, enabled)
}

// putEnableMap replaces the ctrl-family device-enable map. Values must be
// plain booleans; the Family Loader picks up the change on its next
// periodic reload.
func (s *Server) putEnableMap(rw http.ResponseWriter, r *http.Request) {
	var payload map[string]bool
	if err := decode(r.Body, &payload); err != nil {
		handleError(fmt.Errorf("invalid enable map body: %w", err), http.StatusBadRequest, rw)
		return
	}

	path := filepath.Join(s.opts.ConfigDir, family.EnableMapFile)
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	if err := renameio.WriteFile(path, raw, 0o644); err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	writeJSON(rw, payload)
}

func readEnableMap(configDir string) (out map[string]bool, exists bool, err error) {
	path := filepath.Join(configDir, family.EnableMapFile)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("invalid enable map on disk: %w", err)
	}
	return out, true, nil
}
