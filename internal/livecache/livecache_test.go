package livecache

import (
	"testing"
	"time"

	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateThenGetMergesValues(t *testing.T) {
	c := New()
	frame := telemetry.Frame{
		TsUTC: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		S:     map[string]float64{"ph": 7.1, "temp1_C": 24.5},
		QC:    telemetry.QC{Status: telemetry.QCOk},
	}
	c.Update("1", "ctrl", "10.0.0.1", frame)

	snap, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, "ctrl", snap.Family)
	assert.Equal(t, "10.0.0.1", snap.IP)
	assert.Equal(t, telemetry.QCOk, snap.QC)
	assert.Equal(t, 7.1, snap.Values["ph"])
}

func TestPreSeedStableBeforeFirstPoll(t *testing.T) {
	c := New()
	c.PreSeed("u1", "util", "10.0.0.9")

	snap, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, telemetry.QCFail, snap.QC)
	assert.Nil(t, snap.TsUTC)
}

func TestAllReturnsIndependentCopy(t *testing.T) {
	c := New()
	c.PreSeed("1", "ctrl", "10.0.0.1")

	all := c.All()
	all["1"] = Snapshot{Family: "mutated"}

	snap, _ := c.Get("1")
	assert.Equal(t, "ctrl", snap.Family)
}
