package logwriter

import (
	"math"
	"time"
)

var hstLocation = time.FixedZone("HST", -10*60*60)

// counterFields truncate to integers instead of rounding to one decimal:
// they model monotonic counters where sub-unit precision is irrelevant.
var counterFields = map[string]struct{}{
	"counter_value": {},
	"timer_seconds": {},
}

// buildRow applies the per-family whitelist and the rounding rules to a
// frame's point values, producing the ordered NDJSON row shape
// {ts_hst, tank_id, ...whitelisted points}.
func buildRow(tankID string, ts time.Time, values map[string]float64, whitelist map[string]struct{}) map[string]interface{} {
	row := make(map[string]interface{}, len(whitelist)+2)
	row["ts_hst"] = ts.In(hstLocation).Format(time.RFC3339Nano)
	row["tank_id"] = tankID

	for name := range whitelist {
		v, ok := values[name]
		if !ok {
			continue
		}
		if _, isCounter := counterFields[name]; isCounter {
			row[name] = math.Trunc(v)
		} else {
			row[name] = math.Round(v*10) / 10
		}
	}
	return row
}
