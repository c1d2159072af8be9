package alarm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigUnmarshalDefaultsQCAlarmsEnabledWhenConnectivityOmitted(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"ph":{"low":6.5,"high":8.5},"temp":{"low":15,"high":30}}`), &cfg))
	assert.True(t, cfg.Connectivity.QCAlarmsEnabled)
}

func TestConfigUnmarshalDefaultsQCAlarmsEnabledWhenKeyOmitted(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"ph":{"low":6.5,"high":8.5},"temp":{"low":15,"high":30},"connectivity":{}}`), &cfg))
	assert.True(t, cfg.Connectivity.QCAlarmsEnabled)
}

func TestConfigUnmarshalPreservesExplicitFalse(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"ph":{"low":6.5,"high":8.5},"temp":{"low":15,"high":30},"connectivity":{"qcAlarmsEnabled":false}}`), &cfg))
	assert.False(t, cfg.Connectivity.QCAlarmsEnabled)
}

func TestSetThresholdsPersistsDefaultedConnectivityFromPartialJSON(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"ph":{"low":7,"high":8},"temp":{"low":16,"high":29}}`), &cfg))

	e := newTestEngine(t, nil)
	require.NoError(t, e.SetThresholds(cfg))
	assert.True(t, e.GetThresholds().Connectivity.QCAlarmsEnabled)
}
