package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modbus-edge/gateway/internal/alarm"
	"github.com/modbus-edge/gateway/internal/family"
	"github.com/modbus-edge/gateway/internal/livecache"
	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegisterMap = `{
	"schema_ver": "1",
	"byte_order": "BE",
	"word_order": "ABCD",
	"blocks": [{"name": "A", "fn": 3, "start": 0, "len": 2}],
	"points": {"ph": {"addr": 0, "type": "u16", "scale": 0.01}}
}`

func newTestServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	configDir := t.TempDir()
	logDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(configDir, family.CtrlRegisterMapFile), []byte(testRegisterMap), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, family.CtrlFile), []byte(`{"1": "10.0.0.1"}`), 0o644))

	loader := family.NewLoader(configDir, 0)
	require.NoError(t, loader.Reload())

	live := livecache.New()
	live.Update("1", "ctrl", "10.0.0.1", telemetry.Frame{
		TsUTC: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		S:     map[string]float64{"ph": 7.1},
		QC:    telemetry.QC{Status: telemetry.QCOk},
	})

	engine, err := alarm.New(alarm.Options{ConfigPath: filepath.Join(configDir, "alarmConfig.json")})
	require.NoError(t, err)

	s := New(Options{
		ConfigDir: configDir,
		LogDir:    logDir,
		LiveCache: live,
		Families:  loader,
		Alarm:     engine,
	})
	return s, configDir, logDir
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestGetSnapshotsReturnsAllEntries(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := doRequest(s, http.MethodGet, "/api/snapshots", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "1")
}

func TestGetSnapshotMissingTankReturns404(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := doRequest(s, http.MethodGet, "/api/snapshots/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetDevicesListsKnownTanks(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := doRequest(s, http.MethodGet, "/api/devices", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var out []deviceEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].TankID)
	assert.True(t, out[0].Enabled, "no enable map present means every device defaults to enabled")
}

func TestPutEnableMapPersistsAndGetReflectsIt(t *testing.T) {
	s, configDir, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]bool{"1": false})
	rr := doRequest(s, http.MethodPut, "/api/devices/enable", body)
	assert.Equal(t, http.StatusOK, rr.Code)

	raw, err := os.ReadFile(filepath.Join(configDir, family.EnableMapFile))
	require.NoError(t, err)
	var saved map[string]bool
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, false, saved["1"])

	rr2 := doRequest(s, http.MethodGet, "/api/devices/enable", nil)
	var got map[string]bool
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &got))
	assert.Equal(t, false, got["1"])
}

func TestAlarmThresholdsRoundTrip(t *testing.T) {
	s, _, _ := newTestServer(t)

	payload := alarm.Config{
		PH:           alarm.Range{Low: 7.2, High: 8.2},
		Temp:         alarm.Range{Low: 18, High: 27.5},
		Connectivity: alarm.Connectivity{QCAlarmsEnabled: true},
	}
	body, _ := json.Marshal(payload)
	rr := doRequest(s, http.MethodPost, "/api/alarms/thresholds", body)
	require.Equal(t, http.StatusOK, rr.Code)

	rr2 := doRequest(s, http.MethodGet, "/api/alarms/thresholds", nil)
	var got alarm.Config
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &got))
	assert.Equal(t, payload, got)
}

func TestAlarmThresholdsPutOmittingConnectivityDefaultsEnabled(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := []byte(`{"ph":{"low":7.2,"high":8.2},"temp":{"low":18,"high":27.5}}`)
	rr := doRequest(s, http.MethodPost, "/api/alarms/thresholds", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var got alarm.Config
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.True(t, got.Connectivity.QCAlarmsEnabled, "omitting connectivity must not silently disable qc alarms")
}

func TestAlarmThresholdsRejectInvertedRange(t *testing.T) {
	s, _, _ := newTestServer(t)
	body, _ := json.Marshal(alarm.Config{PH: alarm.Range{Low: 9, High: 8}, Temp: alarm.Range{Low: 1, High: 2}})
	rr := doRequest(s, http.MethodPost, "/api/alarms/thresholds", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogSeriesFiltersByTankAndField(t *testing.T) {
	s, _, logDir := newTestServer(t)

	rows := []string{
		`{"ts_hst":"2026-01-01T00:00:00Z","tank_id":"1","ph":7.1}`,
		`{"ts_hst":"2026-01-01T00:01:00Z","tank_id":"1","ph":7.3}`,
	}
	content := ""
	for _, row := range rows {
		content += row + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "telemetry-ctrl-site1-1-2026-01-01.ndjson"), []byte(content), 0o644))

	rr := doRequest(s, http.MethodGet, "/api/logs/series?tankId=1&field=ph", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var points []seriesPoint
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &points))
	require.Len(t, points, 2)
	assert.Equal(t, 7.1, points[0].Value)
	assert.True(t, points[0].TsUTC.Before(points[1].TsUTC))
}

func TestDownloadLogRejectsPathEscape(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := doRequest(s, http.MethodGet, "/api/logs/download/..%2f..%2fetc%2fpasswd", nil)
	assert.NotEqual(t, http.StatusOK, rr.Code)
}

func TestHealthzOKWithNoHealthSource(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := doRequest(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := doRequest(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "gateway_ticks_total")
}
