// Command modbus-gateway polls a fleet of Modbus TCP devices on a fixed
// cadence, decodes their registers against a JSON register map, publishes
// and logs the results, evaluates alarm rules, and exposes a minimal HTTP
// read/control API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/modbus-edge/gateway/internal/config"
	"github.com/modbus-edge/gateway/pkg/log"
	"github.com/modbus-edge/gateway/pkg/runtimeEnv"
)

var version = "dev"

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("modbus-gateway %s\n", version)
		return
	}

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing '.env' file failed: %s", err.Error())
	}

	cfg := config.NewFromEnv()

	if flagValidateConfig {
		runValidateConfig(cfg)
		return
	}

	gw, err := buildGateway(cfg)
	if err != nil {
		log.Fatalf("startup failed: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.start(ctx); err != nil {
		log.Fatalf("startup failed: %s", err.Error())
	}

	if cfg.RunAsUser != "" || cfg.RunAsGroup != "" {
		if err := runtimeEnv.DropPrivileges(cfg.RunAsUser, cfg.RunAsGroup); err != nil {
			log.Fatalf("dropping privileges failed: %s", err.Error())
		}
	}

	runtimeEnv.SystemdNotifiy(true, "running")
	log.Infof("modbus-gateway running (site=%s, api=%s)", cfg.SiteID, cfg.Addr())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	gw.shutdown()
	log.Info("graceful shutdown complete")
}
