package logwriter

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWhitelist(t *testing.T, configDir, family string, points []string) {
	t.Helper()
	raw, err := json.Marshal(points)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "logPoints."+family+".json"), raw, 0o644))
}

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var rows []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		rows = append(rows, row)
	}
	return rows
}

func TestEnqueueWritesWhitelistedRow(t *testing.T) {
	configDir := t.TempDir()
	logDir := t.TempDir()
	writeWhitelist(t, configDir, "ctrl", []string{"ph", "temp1_C"})

	w := New(logDir, configDir, time.Millisecond)
	w.Start()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Enqueue("ctrl", "site1", "tank1", telemetry.Frame{
		TsUTC: ts,
		S:     map[string]float64{"ph": 7.123, "temp1_C": 24.56, "secret": 1},
		QC:    telemetry.QC{Status: telemetry.QCOk},
	})
	w.Shutdown()

	path := pathFor(logDir, "ctrl", "site1", "tank1", ts)
	rows := readLines(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, "tank1", rows[0]["tank_id"])
	assert.Equal(t, 7.1, rows[0]["ph"])
	assert.Equal(t, 24.6, rows[0]["temp1_C"])
	assert.NotContains(t, rows[0], "secret")
}

func TestEnqueueDropsWithinMinInterval(t *testing.T) {
	configDir := t.TempDir()
	logDir := t.TempDir()
	writeWhitelist(t, configDir, "ctrl", []string{"ph"})

	w := New(logDir, configDir, time.Hour)
	w.Start()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := telemetry.Frame{TsUTC: ts, S: map[string]float64{"ph": 7.0}}
	w.Enqueue("ctrl", "site1", "tank1", frame)
	w.Enqueue("ctrl", "site1", "tank1", frame)
	w.Shutdown()

	rows := readLines(t, pathFor(logDir, "ctrl", "site1", "tank1", ts))
	assert.Len(t, rows, 1)
}

func TestCounterFieldsTruncate(t *testing.T) {
	configDir := t.TempDir()
	logDir := t.TempDir()
	writeWhitelist(t, configDir, "util", []string{"counter_value"})

	w := New(logDir, configDir, time.Millisecond)
	w.Start()

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	w.Enqueue("util", "site1", "u1", telemetry.Frame{
		TsUTC: ts,
		S:     map[string]float64{"counter_value": 42.9},
	})
	w.Shutdown()

	rows := readLines(t, pathFor(logDir, "util", "site1", "u1", ts))
	require.Len(t, rows, 1)
	assert.Equal(t, 42.0, rows[0]["counter_value"])
}

func TestPathForRotatesAtHSTDayBoundary(t *testing.T) {
	// 2026-03-02T09:59:59Z is 2026-03-01 23:59:59 HST (UTC-10).
	before := time.Date(2026, 3, 2, 9, 59, 59, 0, time.UTC)
	after := time.Date(2026, 3, 2, 10, 0, 1, 0, time.UTC)

	p1 := pathFor("/logs", "ctrl", "s", "t", before)
	p2 := pathFor("/logs", "ctrl", "s", "t", after)

	assert.Contains(t, p1, "2026-03-01")
	assert.Contains(t, p2, "2026-03-02")
	assert.NotEqual(t, p1, p2)
}

func TestMissingWhitelistDropsRow(t *testing.T) {
	configDir := t.TempDir()
	logDir := t.TempDir()

	w := New(logDir, configDir, time.Millisecond)
	w.Start()

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	w.Enqueue("unknown", "site1", "t1", telemetry.Frame{TsUTC: ts, S: map[string]float64{"ph": 1}})
	w.Shutdown()

	_, err := os.Stat(pathFor(logDir, "unknown", "site1", "t1", ts))
	assert.True(t, os.IsNotExist(err))
}
