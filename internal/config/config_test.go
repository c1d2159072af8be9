package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"SITE_ID", "BROKER_HOST", "BROKER_PORT", "BROKER_USER", "BROKER_PASSWORD", "BROKER_TLS",
		"POLL_CADENCE_MS", "CONCURRENCY", "FAMILY_RELOAD_PERIOD_MS", "API_HOST", "API_PORT",
		"CONFIG_DIR", "LOG_DIR", "MIN_INTERVAL_MS", "CONNECTIVITY_ALARM_MS", "WEBHOOK_URL", "DISABLE_HSTS",
		"RUN_AS_USER", "RUN_AS_GROUP",
	} {
		t.Setenv(name, "")
	}
}

func TestNewFromEnvAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg := NewFromEnv()

	assert.Equal(t, "site1", cfg.SiteID)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.PollCadence)
	assert.Equal(t, 30*time.Second, cfg.LogMinInterval)
	assert.Equal(t, 60*time.Minute, cfg.ConnectivityAlarm)
	assert.False(t, cfg.DisableHSTS)
	assert.Equal(t, ":8090", cfg.Addr())
	assert.Equal(t, "", cfg.RunAsUser)
	assert.Equal(t, "", cfg.RunAsGroup)
}

func TestNewFromEnvOverridesFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SITE_ID", "plantA")
	t.Setenv("CONCURRENCY", "4")
	t.Setenv("MIN_INTERVAL_MS", "5000")
	t.Setenv("DISABLE_HSTS", "true")
	t.Setenv("RUN_AS_USER", "gateway")
	t.Setenv("RUN_AS_GROUP", "gateway")

	cfg := NewFromEnv()
	assert.Equal(t, "plantA", cfg.SiteID)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.LogMinInterval)
	assert.True(t, cfg.DisableHSTS)
	assert.Equal(t, "gateway", cfg.RunAsUser)
	assert.Equal(t, "gateway", cfg.RunAsGroup)
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	cfg := ProgramConfig{SiteID: "s", Concurrency: 0, PollCadence: time.Second, ConfigDir: "c", LogDir: "l"}
	require.Error(t, cfg.validate())
}

func TestValidateRejectsEmptySiteID(t *testing.T) {
	cfg := ProgramConfig{SiteID: "", Concurrency: 1, PollCadence: time.Second, ConfigDir: "c", LogDir: "l"}
	require.Error(t, cfg.validate())
}
