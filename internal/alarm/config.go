package alarm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Range is a mutable low/high threshold pair. Invariant: Low < High and
// both finite.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

func (r Range) validate(name string) error {
	if math.IsNaN(r.Low) || math.IsInf(r.Low, 0) || math.IsNaN(r.High) || math.IsInf(r.High, 0) {
		return fmt.Errorf("alarm: %s thresholds must be finite", name)
	}
	if !(r.Low < r.High) {
		return fmt.Errorf("alarm: %s low (%v) must be less than high (%v)", name, r.Low, r.High)
	}
	return nil
}

// Connectivity toggles whether qc_fail alarms are evaluated at all.
type Connectivity struct {
	QCAlarmsEnabled bool `json:"qcAlarmsEnabled"`
}

// Config is the persisted, mutable alarm threshold configuration.
type Config struct {
	PH           Range        `json:"ph"`
	Temp         Range        `json:"temp"`
	Connectivity Connectivity `json:"connectivity"`
}

// UnmarshalJSON defaults connectivity.qcAlarmsEnabled to true when the
// client omits it or omits the whole connectivity object, rather than
// letting it decode to Go's zero value false.
func (c *Config) UnmarshalJSON(data []byte) error {
	var aux struct {
		PH           Range `json:"ph"`
		Temp         Range `json:"temp"`
		Connectivity *struct {
			QCAlarmsEnabled *bool `json:"qcAlarmsEnabled"`
		} `json:"connectivity"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}

	c.PH = aux.PH
	c.Temp = aux.Temp
	c.Connectivity = Connectivity{QCAlarmsEnabled: true}
	if aux.Connectivity != nil && aux.Connectivity.QCAlarmsEnabled != nil {
		c.Connectivity.QCAlarmsEnabled = *aux.Connectivity.QCAlarmsEnabled
	}
	return nil
}

// DefaultConfig is seeded when no persisted config file exists yet.
func DefaultConfig() Config {
	return Config{
		PH:           Range{Low: 6.5, High: 8.5},
		Temp:         Range{Low: 15, High: 30},
		Connectivity: Connectivity{QCAlarmsEnabled: true},
	}
}

func (c Config) validate() error {
	if err := c.PH.validate("ph"); err != nil {
		return err
	}
	if err := c.Temp.validate("temp"); err != nil {
		return err
	}
	return nil
}

// CO2Config is the optional per-site/per-tank CO2 estimate configuration
// (see SUPPLEMENTED FEATURES in SPEC_FULL.md): a default flow rate with
// per-tank overrides.
type CO2Config struct {
	DefaultLpm float64            `json:"defaultLpm"`
	PerTank    map[string]float64 `json:"perTank"`
}

// estimateFor returns the effective co2_estimate_lpm for tankID.
func (c CO2Config) estimateFor(tankID string) float64 {
	if v, ok := c.PerTank[tankID]; ok {
		return v
	}
	return c.DefaultLpm
}

func loadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("alarm: read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("alarm: parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("alarm: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("alarm: create config dir: %w", err)
	}
	if err := renameio.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("alarm: write config: %w", err)
	}
	return nil
}

func loadCO2Config(path string) (CO2Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return CO2Config{}, nil
	}
	if err != nil {
		return CO2Config{}, fmt.Errorf("alarm: read co2 config: %w", err)
	}
	var cfg CO2Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return CO2Config{}, fmt.Errorf("alarm: parse co2 config: %w", err)
	}
	if cfg.DefaultLpm < 0 {
		return CO2Config{}, fmt.Errorf("alarm: co2 defaultLpm must be non-negative")
	}
	return cfg, nil
}
