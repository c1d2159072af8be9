package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	connected bool
	published []struct {
		topic string
		data  []byte
	}
	failOn string
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Publish(subject string, data []byte) error {
	if subject == f.failOn {
		return errors.New("boom")
	}
	f.published = append(f.published, struct {
		topic string
		data  []byte
	}{subject, data})
	return nil
}

func TestPublishBuildsNamespacedTopic(t *testing.T) {
	client := &fakeClient{connected: true}
	p := New(client, Options{Namespace: "gw"})

	frame := telemetry.Frame{
		TsUTC:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SiteID:   "site1",
		TankID:   "t1",
		DeviceID: "d1",
		S:        map[string]float64{"ph": 7.1},
		QC:       telemetry.QC{Status: telemetry.QCOk},
	}
	p.Publish(frame)

	require.Len(t, client.published, 1)
	assert.Equal(t, "gw/site1/t1/d1/telemetry", client.published[0].topic)

	var got telemetry.Frame
	require.NoError(t, json.Unmarshal(client.published[0].data, &got))
	assert.Equal(t, frame.TankID, got.TankID)
	assert.Equal(t, 7.1, got.S["ph"])
}

func TestPublishSwallowsBrokerError(t *testing.T) {
	client := &fakeClient{connected: true, failOn: "gw/site1/t1/d1/telemetry"}
	p := New(client, Options{Namespace: "gw"})

	assert.NotPanics(t, func() {
		p.Publish(telemetry.Frame{SiteID: "site1", TankID: "t1", DeviceID: "d1"})
	})
}

func TestPublishWithNilClientIsNoop(t *testing.T) {
	p := New(nil, Options{Namespace: "gw"})
	assert.NotPanics(t, func() {
		p.Publish(telemetry.Frame{SiteID: "site1", TankID: "t1", DeviceID: "d1"})
	})
}

func TestDefaultQoSIsOne(t *testing.T) {
	p := New(&fakeClient{}, Options{Namespace: "gw"})
	assert.Equal(t, 1, p.opts.QoS)
}
