// Package poller drives the fixed-cadence polling cycle: each tick
// flattens every (family, device) pair into a work list, dispatches it
// through a bounded worker pool, and feeds the result to Live Cache, the
// Publisher, the Log Writer, and the Alarm Engine.
package poller

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/modbus-edge/gateway/internal/alarm"
	"github.com/modbus-edge/gateway/internal/family"
	"github.com/modbus-edge/gateway/internal/livecache"
	"github.com/modbus-edge/gateway/internal/logwriter"
	"github.com/modbus-edge/gateway/internal/metrics"
	"github.com/modbus-edge/gateway/internal/publisher"
	"github.com/modbus-edge/gateway/internal/registermap"
	"github.com/modbus-edge/gateway/internal/telemetry"
	"github.com/modbus-edge/gateway/pkg/log"
	"golang.org/x/sync/errgroup"
)

var plog = log.Component("poller")

// DefaultCadence is the tick interval absent explicit configuration.
const DefaultCadence = 60 * time.Second

// DefaultConcurrency is the worker pool size absent explicit configuration.
const DefaultConcurrency = 8

// jitterMax bounds the per-item jitter injected on roughly every third
// work item, to avoid synchronized radio bursts across devices.
const jitterMax = 200 * time.Millisecond

// FamilySource supplies the current family set; family.Loader satisfies it.
type FamilySource interface {
	Families() map[string]*family.Family
}

// Transport is the contract Poller needs from the Modbus connection pool;
// *modbustransport.Transport satisfies it.
type Transport interface {
	ReadBlocksForDevice(ip string, port int, unitID byte, blocks []registermap.Block) (map[string][]byte, error)
	WriteRegisters(ip string, port int, unitID byte, fc int, start uint16, values []uint16) error
}

// WriteHookFunc is the signature registered via RegisterWriteHook: an
// external command-plane subsystem supplies the point name and target
// value, and gets back the outcome of planning + issuing the write.
type WriteHookFunc func(tankID, pointName string, value float64, allowClamp bool) (registermap.WritePlan, error)

// Options configures a Poller.
type Options struct {
	SiteID      string
	Cadence     time.Duration
	Concurrency int
	Families    FamilySource
	Transport   Transport
	LiveCache   *livecache.Cache
	Publisher   *publisher.Publisher
	LogWriter   *logwriter.Writer
	Alarm       *alarm.Engine
}

// Poller is the tick driver. One goroutine triggers ticks on Cadence; each
// tick spawns its own bounded worker pool and exits before the next may
// start (overlapping ticks are skipped, not queued).
type Poller struct {
	siteID      string
	cadence     time.Duration
	concurrency int

	families  FamilySource
	transport Transport
	live      *livecache.Cache
	pub       *publisher.Publisher
	logs      *logwriter.Writer
	alarmEng  *alarm.Engine

	scheduler gocron.Scheduler
	ticking   atomic.Bool
	lastTick  atomic.Int64 // unix nanos of the last completed tick

	writeHookMu sync.Mutex
	writeHook   WriteHookFunc
}

// New constructs a Poller from opts, applying defaults for zero values.
func New(opts Options) *Poller {
	cadence := opts.Cadence
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	p := &Poller{
		siteID:      opts.SiteID,
		cadence:     cadence,
		concurrency: concurrency,
		families:    opts.Families,
		transport:   opts.Transport,
		live:        opts.LiveCache,
		pub:         opts.Publisher,
		logs:        opts.LogWriter,
		alarmEng:    opts.Alarm,
	}
	p.writeHook = p.defaultWriteHook
	return p
}

// RegisterWriteHook replaces the write hook an external command-plane
// subsystem calls into. The default hook (installed by New) plans and
// issues the write directly; tests and command-plane wiring may override
// it.
func (p *Poller) RegisterWriteHook(fn WriteHookFunc) {
	p.writeHookMu.Lock()
	defer p.writeHookMu.Unlock()
	p.writeHook = fn
}

// WriteHook invokes the currently registered write hook.
func (p *Poller) WriteHook(tankID, pointName string, value float64, allowClamp bool) (registermap.WritePlan, error) {
	p.writeHookMu.Lock()
	fn := p.writeHook
	p.writeHookMu.Unlock()
	return fn(tankID, pointName, value, allowClamp)
}

// workItem is one flattened (family, device) unit of poll work.
type workItem struct {
	family *family.Family
	device family.Device
}

// Tick runs one polling cycle synchronously: build the work list, drain it
// through the bounded pool, then flush the alarm batch. If a previous Tick
// is still running, the new one is skipped entirely.
func (p *Poller) Tick(ctx context.Context) {
	if !p.ticking.CompareAndSwap(false, true) {
		plog.Warn("previous tick still running, skipping this cadence")
		return
	}
	defer p.ticking.Store(false)

	work := p.buildWorkList()
	if len(work) == 0 {
		return
	}

	concurrency := p.concurrency
	if concurrency > len(work) {
		concurrency = len(work)
	}

	// Workers draw indices atomically from a shared counter; errgroup's
	// SetLimit caps how many of the len(work) goroutines actually run their
	// body concurrently, giving the same min(configured, |work|) bound
	// without a separately managed worker-count loop.
	var idx atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for range work {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n := idx.Add(1) - 1
			if n%3 == 0 {
				time.Sleep(time.Duration(rand.Int63n(int64(jitterMax))))
			}
			p.pollOne(work[n])
			return nil
		})
	}
	_ = g.Wait()

	if p.alarmEng != nil {
		p.alarmEng.Flush()
	}

	metrics.TicksTotal.Inc()
	p.lastTick.Store(time.Now().UnixNano())
}

func (p *Poller) buildWorkList() []workItem {
	var work []workItem
	for _, fam := range p.families.Families() {
		for _, dev := range fam.Devices {
			work = append(work, workItem{family: fam, device: dev})
		}
	}
	return work
}

// pollOne executes the full per-device sequence: transport read, decode,
// frame construction, and fan-out to Live Cache, Publisher, Log Writer,
// and the Alarm Engine, in that order.
func (p *Poller) pollOne(item workItem) {
	fam := item.family
	dev := item.device
	deviceID := fmt.Sprintf("%s-%s", fam.DevicePrefix, dev.TankID)
	now := time.Now().UTC()

	frame := telemetry.Frame{
		TsUTC:     now,
		SiteID:    p.siteID,
		TankID:    dev.TankID,
		DeviceID:  deviceID,
		SchemaVer: fam.MapContext.SchemaVer,
	}

	buffers, err := p.transport.ReadBlocksForDevice(dev.IP, orDefaultPort(dev.Port), dev.UnitID, fam.Blocks())
	if err != nil {
		frame.QC = telemetry.QC{Status: telemetry.QCFail, Error: err.Error()}
		metrics.DevicesPolledTotal.WithLabelValues("fail").Inc()
	} else {
		decoded := fam.MapContext.DecodePointsFromBlocks(buffers)
		values := make(map[string]float64, len(decoded))
		for name, v := range decoded {
			if v != nil {
				values[name] = *v
			}
		}
		if p.alarmEng != nil {
			if lpm, ok := p.alarmEng.CO2Estimate(dev.TankID); ok {
				values["co2_estimate_lpm"] = lpm
			}
		}
		frame.S = values
		frame.QC = telemetry.QC{Status: telemetry.QCOk}
		metrics.DevicesPolledTotal.WithLabelValues("ok").Inc()
	}

	if p.live != nil {
		p.live.Update(dev.TankID, fam.ID, dev.IP, frame)
	}
	if p.pub != nil {
		p.pub.Publish(frame)
	}
	if p.logs != nil {
		p.logs.Enqueue(fam.ID, p.siteID, dev.TankID, frame)
	}
	if p.alarmEng != nil {
		p.alarmEng.Evaluate(fam.ID, frame)
	}
}

func orDefaultPort(port int) int {
	if port <= 0 {
		return 502
	}
	return port
}

func (p *Poller) defaultWriteHook(tankID, pointName string, value float64, allowClamp bool) (registermap.WritePlan, error) {
	fam, dev, err := p.lookupDevice(tankID)
	if err != nil {
		return registermap.WritePlan{}, err
	}

	plan, err := fam.MapContext.PlanWrite(pointName, value, allowClamp)
	if err != nil {
		return registermap.WritePlan{}, err
	}
	if plan.Reason == "deadband_skip" {
		return plan, nil
	}

	if err := p.transport.WriteRegisters(dev.IP, orDefaultPort(dev.Port), dev.UnitID, plan.Fc, plan.Start, plan.Words); err != nil {
		return registermap.WritePlan{}, err
	}
	return plan, nil
}

func (p *Poller) lookupDevice(tankID string) (*family.Family, family.Device, error) {
	for _, fam := range p.families.Families() {
		for _, dev := range fam.Devices {
			if dev.TankID == tankID {
				return fam, dev, nil
			}
		}
	}
	return nil, family.Device{}, fmt.Errorf("poller: unknown tank %q", tankID)
}

// Start schedules periodic ticks on p.cadence via gocron, running an
// initial tick synchronously so Live Cache is populated before Start
// returns.
func (p *Poller) Start(ctx context.Context) error {
	p.Tick(ctx)

	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	p.scheduler = s

	_, err = s.NewJob(
		gocron.DurationJob(p.cadence),
		gocron.NewTask(func() { p.Tick(ctx) }),
	)
	if err != nil {
		return err
	}

	s.Start()
	return nil
}

// Shutdown stops the cadence scheduler. The caller is responsible for
// waiting out any in-flight tick (e.g. by polling Ticking) before closing
// downstream resources like the transport pool and log writer.
func (p *Poller) Shutdown() error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Shutdown()
}

// Ticking reports whether a tick is currently in flight.
func (p *Poller) Ticking() bool {
	return p.ticking.Load()
}

// LastTickAge reports how long ago the last tick completed, and false if
// no tick has completed yet. Satisfies api.HealthSource.
func (p *Poller) LastTickAge() (time.Duration, bool) {
	ns := p.lastTick.Load()
	if ns == 0 {
		return 0, false
	}
	return time.Since(time.Unix(0, ns)), true
}

// Cadence returns the configured tick interval. Satisfies api.HealthSource.
func (p *Poller) Cadence() time.Duration {
	return p.cadence
}
