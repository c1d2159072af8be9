// Package publisher sends decoded telemetry and failure frames to the
// configured message broker. It depends only on a narrow BrokerClient
// interface, so the poller never needs to know whether the gateway is
// talking to NATS, MQTT, or anything else behind it.
package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/modbus-edge/gateway/pkg/log"
)

var plog = log.Component("publisher")

// BrokerClient is the contract Publisher needs from a broker connection.
// pkg/nats.Client satisfies it; any other broker client can stand in
// behind the same interface.
type BrokerClient interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
}

// Options configures topic construction and delivery metadata.
type Options struct {
	// Namespace prefixes every topic: "<Namespace>/<site>/<tank>/<device>/telemetry".
	Namespace string
	// QoS and Retain are carried for brokers that support them (MQTT); NATS
	// core has no equivalent and ignores them. Defaults: QoS 1, no retain.
	QoS    int
	Retain bool
}

// Publisher publishes frames to the broker, one topic per (site, tank, device).
type Publisher struct {
	client BrokerClient
	opts   Options
}

// New constructs a Publisher. A nil client is accepted so the gateway can
// run with publishing disabled when no broker address is configured.
func New(client BrokerClient, opts Options) *Publisher {
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	return &Publisher{client: client, opts: opts}
}

// Topic returns the fully qualified publish topic for one device.
func (p *Publisher) Topic(siteID, tankID, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/telemetry", p.opts.Namespace, siteID, tankID, deviceID)
}

// Publish sends frame to its device's telemetry topic. A publish error is
// logged and swallowed: per-tick delivery failures never fail the tick.
func (p *Publisher) Publish(frame telemetry.Frame) {
	if p.client == nil {
		return
	}

	topic := p.Topic(frame.SiteID, frame.TankID, frame.DeviceID)
	body, err := json.Marshal(frame)
	if err != nil {
		plog.Errorf("marshal frame for %s: %v", topic, err)
		return
	}

	if err := p.client.Publish(topic, body); err != nil {
		plog.Warnf("publish to %s failed: %v", topic, err)
	}
}
