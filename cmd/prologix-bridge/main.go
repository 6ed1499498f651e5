// The prologix-bridge daemon listens for Prologix-style controller clients
// and forwards their traffic to instruments behind a VISA resource manager.
// The instrument side is either simulated devices from a YAML definition
// file or real serial-attached hardware.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ILoveBacteria/test-instrument-automation/bridge"
	"github.com/ILoveBacteria/test-instrument-automation/internal/config"
	"github.com/ILoveBacteria/test-instrument-automation/logger"
	"github.com/ILoveBacteria/test-instrument-automation/visa"
	"github.com/ILoveBacteria/test-instrument-automation/visa/serial"
	"github.com/ILoveBacteria/test-instrument-automation/visa/sim"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search working directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load configuration", "error", err)
	}

	log := newLogger(cfg)
	log.Info("starting bridge", "addr", cfg.BridgeAddr(), "backend", cfg.Backend.Kind)

	rm, err := newResourceManager(cfg, log)
	if err != nil {
		log.Fatal("set up instrument backend", "error", err)
	}
	defer rm.Close()

	srvCfg, err := bridge.NewServerConfig(cfg.Bridge.Host, cfg.Bridge.Port,
		bridge.WithBoard(cfg.Bridge.Board),
		bridge.WithSendTimeout(cfg.Bridge.SendTimeout),
		bridge.WithLogger(log),
	)
	if err != nil {
		log.Fatal("bridge configuration", "error", err)
	}

	srv, err := bridge.NewServer(srvCfg, rm)
	if err != nil {
		log.Fatal("create bridge server", "error", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatal("start bridge server", "error", err)
	}
	log.Info("bridge listening", "addr", srv.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	if err := srv.Close(); err != nil {
		log.Error("close bridge server", "error", err)
	}
}

func newLogger(cfg *config.Config) logger.Logger {
	level := logger.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		return logger.NewSlogFile(cfg.Logging.File, level, cfg.Logging.MaxSize)
	}

	return logger.NewSlog(level, false)
}

// newResourceManager builds the resource manager with the configured backend
// registered for its interface type.
func newResourceManager(cfg *config.Config, log logger.Logger) (*visa.ResourceManager, error) {
	rm := visa.NewResourceManager()
	rm.SetLogger(log)

	switch cfg.Backend.Kind {
	case config.BackendSim:
		defs := sim.DefaultDefinitions()
		if cfg.Backend.Sim.Definitions != "" {
			var err error
			defs, err = sim.LoadDefinitions(cfg.Backend.Sim.Definitions)
			if err != nil {
				return nil, err
			}
		}
		backend, err := sim.NewBackend(defs)
		if err != nil {
			return nil, err
		}
		rm.Register(visa.InterfaceGPIB, backend)
	case config.BackendSerial:
		backend, err := serial.NewBackend(
			serial.WithBaudRate(cfg.Backend.Serial.BaudRate),
			serial.WithReadTimeout(cfg.Backend.Serial.ReadTimeout),
			serial.WithTerminator(cfg.Backend.Serial.Terminator[0]),
		)
		if err != nil {
			return nil, err
		}
		rm.Register(visa.InterfaceASRL, backend)
		// The bridge addresses instruments by GPIB address; map those onto
		// the configured serial ports.
		ports, err := cfg.Backend.Serial.PortMap()
		if err != nil {
			return nil, err
		}
		rm.Register(visa.InterfaceGPIB, &serialGPIBBackend{
			ports:   ports,
			backend: backend,
		})
	}

	return rm, nil
}

// serialGPIBBackend routes GPIB resource opens to serial-attached
// instruments by primary address.
type serialGPIBBackend struct {
	ports   map[int]string
	backend *serial.Backend
}

func (b *serialGPIBBackend) Open(name visa.ResourceName) (visa.Instrument, error) {
	path, ok := b.ports[name.Primary]
	if !ok {
		return nil, fmt.Errorf("%w: no serial port mapped for GPIB address %d",
			visa.ErrDeviceNotPresent, name.Primary)
	}

	return b.backend.Open(visa.ResourceName{Interface: visa.InterfaceASRL, Port: path})
}
