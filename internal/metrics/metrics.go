// Package metrics holds the gateway's process-wide Prometheus collectors.
// They live in their own package so the poller and the alarm engine can
// increment them without importing the api package that serves /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_ticks_total",
		Help: "Number of completed poll ticks.",
	})
	DevicesPolledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_devices_polled_total",
		Help: "Number of per-device poll attempts, by outcome.",
	}, []string{"outcome"})
	AlarmEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_alarm_events_total",
		Help: "Number of ALARM/RESOLVED events emitted, by kind.",
	}, []string{"kind"})
)
