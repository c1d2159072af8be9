// Package livecache holds the process-wide map of the latest decoded
// values per device. It has exactly one writer per key per tick (the
// poller's completion callback) and many concurrent readers (the API
// surface).
package livecache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/modbus-edge/gateway/internal/telemetry"
)

// Snapshot is one tank's live entry: the frame's decoded values merged
// onto {family, ip, ts_utc, qc}.
type Snapshot struct {
	Family string
	IP     string
	TsUTC  *time.Time
	QC     string
	Values map[string]float64
}

// MarshalJSON flattens Values alongside the fixed fields, so the API
// surface serves one flat object per tank rather than a nested "values" key.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Values)+4)
	for k, v := range s.Values {
		out[k] = v
	}
	out["family"] = s.Family
	out["ip"] = s.IP
	out["qc"] = s.QC
	if s.TsUTC != nil {
		out["ts_utc"] = s.TsUTC.UTC().Format(time.RFC3339Nano)
	} else {
		out["ts_utc"] = nil
	}
	return json.Marshal(out)
}

// Cache is the process-wide snapshot map, keyed by tankId.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Snapshot
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Snapshot)}
}

// PreSeed installs a placeholder entry with qc=fail and no timestamp, so
// the API surface is stable before a device's first successful poll (used
// for utility devices by the family loader).
func (c *Cache) PreSeed(tankID, family, ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tankID] = Snapshot{Family: family, IP: ip, QC: telemetry.QCFail}
}

// Update overwrites tankID's entry with the frame's values merged onto
// {family, ip, ts_utc, qc}. Entry replacement is a single map write under
// the cache's lock, so concurrent readers never observe a partially
// updated entry.
func (c *Cache) Update(tankID, family, ip string, frame telemetry.Frame) {
	ts := frame.TsUTC
	values := make(map[string]float64, len(frame.S))
	for k, v := range frame.S {
		values[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tankID] = Snapshot{
		Family: family,
		IP:     ip,
		TsUTC:  &ts,
		QC:     frame.QC.Status,
		Values: values,
	}
}

// Get returns tankID's current snapshot, if any.
func (c *Cache) Get(tankID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[tankID]
	return s, ok
}

// All returns a copy of every current snapshot, keyed by tankId.
func (c *Cache) All() map[string]Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Snapshot, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
