// Package alarm is the stateful rule engine: it evaluates each decoded
// frame against a seeded, partly-mutable rule set, tracks per-(rule,tank)
// active/inactive state plus per-tank connectivity, and batches edge
// transitions into one notification per tick.
package alarm

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/modbus-edge/gateway/internal/metrics"
	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/modbus-edge/gateway/pkg/log"
)

var alog = log.Component("alarm")

// DefaultConnectivityAlarm is the offline duration after which a qc_fail
// rule goes active, absent an explicit override.
const DefaultConnectivityAlarm = 60 * time.Minute

// Options configures a new Engine.
type Options struct {
	ConfigPath        string
	CO2ConfigPath     string
	ConnectivityAlarm time.Duration
	Notifier          Notifier
}

// Engine is the process-wide alarm rule engine. There is exactly one
// writer of alarm/connectivity state: the engine itself, called from the
// poller's per-device completion callback.
type Engine struct {
	configPath        string
	connectivityAlarm time.Duration
	notifier          Notifier

	mu        sync.Mutex
	cfg       Config
	co2       CO2Config
	rules     []Rule
	states    map[ruleTankKey]*alarmState
	conn      map[string]*connectivityState
	pending   []Event
}

// New loads the persisted threshold config (seeding defaults if absent)
// and constructs an Engine.
func New(opts Options) (*Engine, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	var co2 CO2Config
	if opts.CO2ConfigPath != "" {
		co2, err = loadCO2Config(opts.CO2ConfigPath)
		if err != nil {
			return nil, err
		}
	}

	alarm := opts.ConnectivityAlarm
	if alarm <= 0 {
		alarm = DefaultConnectivityAlarm
	}

	return &Engine{
		configPath:        opts.ConfigPath,
		connectivityAlarm: alarm,
		notifier:          opts.Notifier,
		cfg:               cfg,
		co2:               co2,
		rules:             DefaultRules(cfg),
		states:            make(map[ruleTankKey]*alarmState),
		conn:              make(map[string]*connectivityState),
	}, nil
}

// CO2Estimate returns the configured co2_estimate_lpm for tankID, or false
// if no CO2 config was loaded.
func (e *Engine) CO2Estimate(tankID string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.co2.DefaultLpm == 0 && e.co2.PerTank == nil {
		return 0, false
	}
	return e.co2.estimateFor(tankID), true
}

// Evaluate runs every applicable rule against frame, updating state and
// queuing any edge-triggered events into the pending batch. Call once per
// (family, tank) per tick, after Live Cache/Publisher/Log Writer.
func (e *Engine) Evaluate(family string, frame telemetry.Frame) {
	now := frame.TsUTC

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range e.rules {
		if !rule.appliesTo(family) {
			continue
		}

		switch rule.Kind {
		case KindMetricThreshold:
			e.evalThreshold(rule, family, frame, now)
		case KindQCFail:
			e.evalQCFail(rule, family, frame.TankID, frame.Ok(), now)
		}
	}
}

func (e *Engine) evalThreshold(rule Rule, family string, frame telemetry.Frame, now time.Time) {
	value, ok := frame.S[rule.Metric]
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	active := value < rule.Low || value > rule.High
	var detail string
	if active {
		switch {
		case value < rule.Low:
			detail = fmt.Sprintf("%s=%v below low threshold %v", rule.Metric, value, rule.Low)
		default:
			detail = fmt.Sprintf("%s=%v above high threshold %v", rule.Metric, value, rule.High)
		}
	}

	e.transition(rule, family, frame.TankID, active, detail, now)
}

func (e *Engine) evalQCFail(rule Rule, family, tankID string, ok bool, now time.Time) {
	if !e.cfg.Connectivity.QCAlarmsEnabled {
		return
	}

	cs, exists := e.conn[tankID]
	if !exists {
		cs = &connectivityState{}
		e.conn[tankID] = cs
	}
	offline := cs.observe(ok, now)

	active := offline >= e.connectivityAlarm
	detail := fmt.Sprintf("offline for %s", offline.Round(time.Second))

	e.transition(rule, family, tankID, active, detail, now)
}

// transition records the new active value for (rule, tank) and, on a
// boolean edge, queues an ALARM/RESOLVED event.
func (e *Engine) transition(rule Rule, family, tankID string, active bool, detail string, now time.Time) {
	key := ruleTankKey{ruleID: rule.ID, tankID: tankID}
	st, exists := e.states[key]
	if !exists {
		st = &alarmState{}
		e.states[key] = st
	}

	if st.active == active {
		return
	}

	kind := EventResolved
	if active {
		kind = EventAlarm
	}

	st.active = active
	st.lastChange = now

	e.pending = append(e.pending, Event{
		RuleID:      rule.ID,
		Family:      family,
		TankID:      tankID,
		Kind:        kind,
		Severity:    rule.Severity,
		Description: rule.Description,
		Detail:      detail,
		At:          now,
	})
	metrics.AlarmEventsTotal.WithLabelValues(kind).Inc()
}

// Flush groups the pending batch by (family, tankId) — ALARM lines before
// RESOLVED lines within each group — dispatches it via the notifier, and
// always clears the pending batch regardless of outcome.
func (e *Engine) Flush() {
	e.mu.Lock()
	events := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(events) == 0 {
		return
	}

	batch := groupEvents(events)
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(batch); err != nil {
		alog.Warnf("notify failed, discarding batch of %d events: %v", len(events), err)
	}
}

func groupEvents(events []Event) Batch {
	order := make([]string, 0)
	groups := make(map[string]*TankGroup)

	for _, ev := range events {
		key := ev.Family + "|" + ev.TankID
		g, ok := groups[key]
		if !ok {
			g = &TankGroup{Family: ev.Family, TankID: ev.TankID}
			groups[key] = g
			order = append(order, key)
		}
		if ev.Kind == EventAlarm {
			g.Alarms = append(g.Alarms, ev)
		} else {
			g.Resolved = append(g.Resolved, ev)
		}
	}

	batch := Batch{Groups: make([]TankGroup, 0, len(order))}
	for _, key := range order {
		batch.Groups = append(batch.Groups, *groups[key])
	}
	return batch
}

// GetThresholds returns a defensive copy of the current threshold config.
func (e *Engine) GetThresholds() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetThresholds validates payload, applies it in memory and to the rule
// set, persists it atomically, and only then returns success.
func (e *Engine) SetThresholds(payload Config) error {
	if err := payload.validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.cfg = payload
	e.rules = DefaultRules(payload)
	e.mu.Unlock()

	return saveConfig(e.configPath, payload)
}
