package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/modbus-edge/gateway/internal/alarm"
	"github.com/modbus-edge/gateway/internal/api"
	"github.com/modbus-edge/gateway/internal/config"
	"github.com/modbus-edge/gateway/internal/family"
	"github.com/modbus-edge/gateway/internal/livecache"
	"github.com/modbus-edge/gateway/internal/logwriter"
	"github.com/modbus-edge/gateway/internal/modbustransport"
	"github.com/modbus-edge/gateway/internal/poller"
	"github.com/modbus-edge/gateway/internal/publisher"
	"github.com/modbus-edge/gateway/pkg/log"
	"github.com/modbus-edge/gateway/pkg/nats"
)

const publishNamespace = "gateway"

// gateway bundles every long-lived component main.go starts and stops as a
// unit.
type gateway struct {
	loader    *family.Loader
	transport *modbustransport.Transport
	live      *livecache.Cache
	broker    *nats.Client
	pub       *publisher.Publisher
	logs      *logwriter.Writer
	alarmEng  *alarm.Engine
	poll      *poller.Poller
	api       *api.Server
}

// buildGateway wires every component from cfg, in dependency order. It does
// not start any background goroutines; call start to do that.
func buildGateway(cfg config.ProgramConfig) (*gateway, error) {
	loader := family.NewLoader(cfg.ConfigDir, cfg.FamilyReloadPeriod)
	transport := modbustransport.NewTransport(modbustransport.Options{})
	live := livecache.New()

	loader.OnReload(func(families map[string]*family.Family) {
		fam, ok := families[family.IDUtil]
		if !ok {
			return
		}
		for _, dev := range fam.Devices {
			if _, exists := live.Get(dev.TankID); exists {
				continue
			}
			live.PreSeed(dev.TankID, fam.ID, dev.IP)
		}
	})

	if err := loader.Reload(); err != nil {
		return nil, fmt.Errorf("initial family load: %w", err)
	}

	var broker *nats.Client
	var pub *publisher.Publisher
	if cfg.BrokerHost != "" {
		scheme := "nats"
		if cfg.BrokerTLS {
			scheme = "tls"
		}
		nc := &nats.NatsConfig{
			Address:  fmt.Sprintf("%s://%s", scheme, cfg.BrokerAddr()),
			Username: cfg.BrokerUser,
			Password: cfg.BrokerPassword,
		}
		var err error
		broker, err = nats.NewClient(nc)
		if err != nil {
			alog.Warnf("broker connect failed, publishing disabled: %v", err)
		}
	}
	if broker != nil {
		pub = publisher.New(broker, publisher.Options{Namespace: publishNamespace})
	} else {
		pub = publisher.New(nil, publisher.Options{Namespace: publishNamespace})
	}

	logs := logwriter.New(cfg.LogDir, cfg.ConfigDir, cfg.LogMinInterval)

	var notifier alarm.Notifier
	if cfg.WebhookURL != "" {
		notifier = alarm.NewWebhookNotifier(cfg.WebhookURL)
	}
	alarmEng, err := alarm.New(alarm.Options{
		ConfigPath:        filepath.Join(cfg.ConfigDir, "alarmConfig.json"),
		CO2ConfigPath:     filepath.Join(cfg.ConfigDir, "co2Config.json"),
		ConnectivityAlarm: cfg.ConnectivityAlarm,
		Notifier:          notifier,
	})
	if err != nil {
		return nil, fmt.Errorf("alarm engine: %w", err)
	}

	poll := poller.New(poller.Options{
		SiteID:      cfg.SiteID,
		Cadence:     cfg.PollCadence,
		Concurrency: cfg.Concurrency,
		Families:    loader,
		Transport:   transport,
		LiveCache:   live,
		Publisher:   pub,
		LogWriter:   logs,
		Alarm:       alarmEng,
	})

	apiSrv := api.New(api.Options{
		Addr:        cfg.Addr(),
		ConfigDir:   cfg.ConfigDir,
		LogDir:      cfg.LogDir,
		LiveCache:   live,
		Families:    loader,
		Alarm:       alarmEng,
		Health:      poll,
		DisableHSTS: cfg.DisableHSTS,
	})

	return &gateway{
		loader:    loader,
		transport: transport,
		live:      live,
		broker:    broker,
		pub:       pub,
		logs:      logs,
		alarmEng:  alarmEng,
		poll:      poll,
		api:       apiSrv,
	}, nil
}

// start launches every background goroutine: the family reload loop, the
// log writer's consumer, the poll cadence, and the HTTP API.
func (g *gateway) start(ctx context.Context) error {
	g.logs.Start()

	if err := g.loader.Start(ctx); err != nil {
		return fmt.Errorf("family loader: %w", err)
	}
	if err := g.poll.Start(ctx); err != nil {
		return fmt.Errorf("poller: %w", err)
	}
	if err := g.api.Start(); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// shutdown drains every component in dependency order: stop accepting new
// ticks, let the in-flight one finish, drain the log writer, close the
// broker client, then stop the HTTP server.
func (g *gateway) shutdown() {
	if err := g.poll.Shutdown(); err != nil {
		alog.Warnf("poller shutdown: %v", err)
	}
	for g.poll.Ticking() {
		time.Sleep(50 * time.Millisecond)
	}

	g.logs.Shutdown()

	if g.broker != nil {
		g.broker.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.api.Shutdown(ctx); err != nil {
		alog.Warnf("api shutdown: %v", err)
	}
}

var alog = log.Component("main")
