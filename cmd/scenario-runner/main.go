// The scenario-runner executes a YAML test scenario against an instrument
// reached through a Prologix-compatible bridge. Measurement and progress
// events can be served to dashboard clients over WebSocket while the
// scenario runs.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ILoveBacteria/test-instrument-automation/event"
	"github.com/ILoveBacteria/test-instrument-automation/instrument"
	"github.com/ILoveBacteria/test-instrument-automation/internal/config"
	"github.com/ILoveBacteria/test-instrument-automation/logger"
	"github.com/ILoveBacteria/test-instrument-automation/prologix"
	"github.com/ILoveBacteria/test-instrument-automation/scenario"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search working directory)")
	scenarioPath := flag.String("scenario", "", "path to the scenario file (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load configuration", "error", err)
	}

	log := newLogger(cfg)

	path := cfg.Scenario.Path
	if *scenarioPath != "" {
		path = *scenarioPath
	}
	if path == "" {
		log.Fatal("no scenario file given (use -scenario or scenario.path in config)")
	}

	s, err := scenario.Load(path)
	if err != nil {
		log.Fatal("load scenario", "error", err)
	}
	log.Info("scenario loaded", "scenario", s.Name, "device", s.Device, "address", s.Address, "steps", len(s.Steps))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus(event.WithBusLogger(log))
	defer bus.Close()

	if cfg.Dashboard.Enabled {
		hub := event.NewHub(bus, event.WithHubLogger(log))
		go func() {
			if err := hub.Start(cfg.Dashboard.Addr); err != nil {
				log.Error("event hub stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := hub.Close(shutdownCtx); err != nil {
				log.Error("close event hub", "error", err)
			}
		}()
	}

	ctrl, err := newController(cfg, s, log)
	if err != nil {
		log.Fatal("connect to bridge", "error", err)
	}
	defer ctrl.Close()

	dt, err := s.DeviceType()
	if err != nil {
		log.Fatal("resolve device type", "error", err)
	}
	driver, err := instrument.New(dt, ctrl)
	if err != nil {
		log.Fatal("build driver", "error", err)
	}

	exec := scenario.NewExecutor(driver, ctrl, scenario.WithBus(bus), scenario.WithLogger(log))
	if err := exec.Run(ctx, s); err != nil {
		log.Error("scenario failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) logger.Logger {
	level := logger.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		return logger.NewSlogFile(cfg.Logging.File, level, cfg.Logging.MaxSize)
	}

	return logger.NewSlog(level, false)
}

func newController(cfg *config.Config, s *scenario.Scenario, log logger.Logger) (*prologix.Controller, error) {
	ctrlCfg, err := prologix.NewControllerConfig(cfg.Client.Host, prologix.NewAddress(s.Address),
		prologix.WithPort(cfg.Client.Port),
		prologix.WithReadTimeout(cfg.Client.ReadTimeout),
		prologix.WithTransportTimeout(cfg.Client.TransportTimeout),
		prologix.WithConnectTimeout(cfg.Client.ConnectTimeout),
		prologix.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	return prologix.NewController(ctrlCfg)
}
