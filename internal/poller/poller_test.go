package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modbus-edge/gateway/internal/family"
	"github.com/modbus-edge/gateway/internal/livecache"
	"github.com/modbus-edge/gateway/internal/registermap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFamilies struct {
	families map[string]*family.Family
}

func (f *fakeFamilies) Families() map[string]*family.Family {
	out := make(map[string]*family.Family, len(f.families))
	for id, fam := range f.families {
		out[id] = fam.Clone()
	}
	return out
}

type fakeTransport struct {
	mu          sync.Mutex
	inFlight    int32
	maxInFlight int32
	failFor     map[string]bool
}

func (f *fakeTransport) ReadBlocksForDevice(ip string, port int, unitID byte, blocks []registermap.Block) (map[string][]byte, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	fail := f.failFor[ip]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("simulated read failure")
	}

	out := make(map[string][]byte, len(blocks))
	for _, b := range blocks {
		out[b.Name] = make([]byte, b.Len*2)
	}
	return out, nil
}

func (f *fakeTransport) WriteRegisters(ip string, port int, unitID byte, fc int, start uint16, values []uint16) error {
	return nil
}

func buildRegisterMap(t *testing.T) *registermap.RegisterMap {
	t.Helper()
	raw := []byte(`{
		"schema_ver": "1",
		"byte_order": "BE",
		"word_order": "ABCD",
		"blocks": [{"name":"b1","fn":3,"start":100,"len":1}],
		"points": {"ph": {"addr":100,"type":"u16","scale":0.01}}
	}`)
	rm, err := registermap.Parse(raw)
	require.NoError(t, err)
	return rm
}

func devicesFamily(t *testing.T, id string, n int) *family.Family {
	t.Helper()
	devices := make([]family.Device, n)
	for i := range devices {
		devices[i] = family.Device{TankID: id + "-tank" + string(rune('a'+i)), IP: id + "-ip" + string(rune('a'+i)), UnitID: 1}
	}
	return &family.Family{ID: id, DevicePrefix: id, MapContext: buildRegisterMap(t), Devices: devices}
}

func TestTickPopulatesLiveCacheForAllDevices(t *testing.T) {
	fam := devicesFamily(t, "ctrl", 16)
	transport := &fakeTransport{}
	live := livecache.New()

	p := New(Options{
		SiteID:      "site1",
		Concurrency: 4,
		Families:    &fakeFamilies{families: map[string]*family.Family{"ctrl": fam}},
		Transport:   transport,
		LiveCache:   live,
	})

	p.Tick(context.Background())

	all := live.All()
	assert.Len(t, all, 16)
	assert.LessOrEqual(t, int(transport.maxInFlight), 4)
}

func TestTickSkipsOverlappingRun(t *testing.T) {
	fam := devicesFamily(t, "ctrl", 2)
	transport := &fakeTransport{}
	p := New(Options{
		Families:  &fakeFamilies{families: map[string]*family.Family{"ctrl": fam}},
		Transport: transport,
		LiveCache: livecache.New(),
	})

	p.ticking.Store(true)
	p.Tick(context.Background())
	assert.Equal(t, int32(0), transport.inFlight)
}

func TestPollOneBuildsFailureFrameButStillUpdatesLiveCache(t *testing.T) {
	fam := devicesFamily(t, "ctrl", 1)
	transport := &fakeTransport{failFor: map[string]bool{fam.Devices[0].IP: true}}
	live := livecache.New()

	p := New(Options{
		Families:  &fakeFamilies{families: map[string]*family.Family{"ctrl": fam}},
		Transport: transport,
		LiveCache: live,
	})
	p.Tick(context.Background())

	snap, ok := live.Get(fam.Devices[0].TankID)
	require.True(t, ok)
	assert.Equal(t, "fail", snap.QC)
}

func TestDefaultWriteHookRejectsUnknownTank(t *testing.T) {
	fam := devicesFamily(t, "ctrl", 1)
	p := New(Options{
		Families:  &fakeFamilies{families: map[string]*family.Family{"ctrl": fam}},
		Transport: &fakeTransport{},
	})

	_, err := p.WriteHook("does-not-exist", "ph", 7.0, false)
	assert.Error(t, err)
}

func TestRegisterWriteHookOverridesDefault(t *testing.T) {
	fam := devicesFamily(t, "ctrl", 1)
	p := New(Options{
		Families:  &fakeFamilies{families: map[string]*family.Family{"ctrl": fam}},
		Transport: &fakeTransport{},
	})

	called := false
	p.RegisterWriteHook(func(tankID, pointName string, value float64, allowClamp bool) (registermap.WritePlan, error) {
		called = true
		return registermap.WritePlan{}, nil
	})

	_, err := p.WriteHook(fam.Devices[0].TankID, "ph", 7.0, false)
	require.NoError(t, err)
	assert.True(t, called)
}
