// Package config holds the gateway's process-wide settings, populated once
// at startup from environment variables with sane defaults, following the
// same "package-level Keys struct" shape used throughout this codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/modbus-edge/gateway/pkg/log"
)

// ProgramConfig is the full set of environment-derived settings. See
// NewFromEnv for the variable names and defaults.
type ProgramConfig struct {
	SiteID string

	BrokerHost     string
	BrokerPort     int
	BrokerUser     string
	BrokerPassword string
	BrokerTLS      bool

	PollCadence        time.Duration
	Concurrency        int
	FamilyReloadPeriod time.Duration

	APIHost string
	APIPort int

	ConfigDir      string
	LogDir         string
	LogMinInterval time.Duration

	ConnectivityAlarm time.Duration
	WebhookURL        string

	DisableHSTS bool

	RunAsUser  string
	RunAsGroup string
}

// Keys holds the active configuration once NewFromEnv has run.
var Keys ProgramConfig

// Addr returns APIHost:APIPort as a listen address.
func (c ProgramConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// BrokerAddr returns BrokerHost:BrokerPort as a dial address.
func (c ProgramConfig) BrokerAddr() string {
	return fmt.Sprintf("%s:%d", c.BrokerHost, c.BrokerPort)
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not an integer", name, v)
	}
	return n
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not a boolean", name, v)
	}
	return b
}

func envMillis(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not an integer number of milliseconds", name, v)
	}
	return time.Duration(n) * time.Millisecond
}

// NewFromEnv builds a ProgramConfig from environment variables, applying the
// defaults documented here, and assigns it to Keys. Call after .env has been
// loaded (see cmd/modbus-gateway).
//
// Recognized variables: SITE_ID, BROKER_HOST, BROKER_PORT, BROKER_USER,
// BROKER_PASSWORD, BROKER_TLS, POLL_CADENCE_MS, CONCURRENCY,
// FAMILY_RELOAD_PERIOD_MS, API_HOST, API_PORT, CONFIG_DIR, LOG_DIR,
// MIN_INTERVAL_MS, CONNECTIVITY_ALARM_MS, WEBHOOK_URL, DISABLE_HSTS,
// RUN_AS_USER, RUN_AS_GROUP.
func NewFromEnv() ProgramConfig {
	cfg := ProgramConfig{
		SiteID: envStr("SITE_ID", "site1"),

		BrokerHost:     envStr("BROKER_HOST", "127.0.0.1"),
		BrokerPort:     envInt("BROKER_PORT", 4222),
		BrokerUser:     envStr("BROKER_USER", ""),
		BrokerPassword: envStr("BROKER_PASSWORD", ""),
		BrokerTLS:      envBool("BROKER_TLS", false),

		PollCadence:        envMillis("POLL_CADENCE_MS", 60000*time.Millisecond),
		Concurrency:        envInt("CONCURRENCY", 8),
		FamilyReloadPeriod: envMillis("FAMILY_RELOAD_PERIOD_MS", 300000*time.Millisecond),

		APIHost: envStr("API_HOST", ""),
		APIPort: envInt("API_PORT", 8090),

		ConfigDir:      envStr("CONFIG_DIR", "./config"),
		LogDir:         envStr("LOG_DIR", "./var/log"),
		LogMinInterval: envMillis("MIN_INTERVAL_MS", 30000*time.Millisecond),

		ConnectivityAlarm: envMillis("CONNECTIVITY_ALARM_MS", 3600000*time.Millisecond),
		WebhookURL:        envStr("WEBHOOK_URL", ""),

		DisableHSTS: envBool("DISABLE_HSTS", false),

		RunAsUser:  envStr("RUN_AS_USER", ""),
		RunAsGroup: envStr("RUN_AS_GROUP", ""),
	}

	if err := cfg.validate(); err != nil {
		log.Fatalf("config: %s", err)
	}

	Keys = cfg
	return cfg
}

func (c ProgramConfig) validate() error {
	if c.SiteID == "" {
		return fmt.Errorf("SITE_ID must not be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	if c.PollCadence <= 0 {
		return fmt.Errorf("POLL_CADENCE_MS must be positive")
	}
	if c.ConfigDir == "" {
		return fmt.Errorf("CONFIG_DIR must not be empty")
	}
	if c.LogDir == "" {
		return fmt.Errorf("LOG_DIR must not be empty")
	}
	return nil
}
