// Package telemetry holds the frame shape produced once per (device, tick)
// by the poller and consumed by Live Cache, the Log Writer, the Publisher,
// and the Alarm Engine. A frame is never mutated after it is built.
package telemetry

import "time"

const (
	QCOk   = "ok"
	QCFail = "fail"
)

// QC is the quality-control flag on a frame.
type QC struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Frame is the JSON object produced by one device-poll, whether successful
// or failed.
type Frame struct {
	TsUTC     time.Time          `json:"ts_utc"`
	SchemaVer string             `json:"schema_ver"`
	SiteID    string             `json:"site_id"`
	TankID    string             `json:"tank_id"`
	DeviceID  string             `json:"device_id"`
	Fw        string             `json:"fw,omitempty"`
	S         map[string]float64 `json:"s"`
	QC        QC                 `json:"qc"`
}

// Ok reports whether the frame represents a successful read+decode.
func (f Frame) Ok() bool {
	return f.QC.Status == QCOk
}
