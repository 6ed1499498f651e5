package prologix

import (
	"fmt"
	"time"

	"github.com/ILoveBacteria/test-instrument-automation/logger"
)

// Default timeout values.
const (
	// DefaultReadTimeout is the bridge-side per-operation read timeout
	// programmed with ++read_tmo_ms.
	DefaultReadTimeout = 1 * time.Second

	// DefaultTransportTimeout is the local socket read/write deadline.
	DefaultTransportTimeout = 3 * time.Second

	// DefaultConnectTimeout is the TCP dial timeout.
	DefaultConnectTimeout = 3 * time.Second
)

// Bridge-side read timeout limits, per the Prologix manual.
const (
	MinReadTimeout = 1 * time.Millisecond
	MaxReadTimeout = 3 * time.Second
)

// ControllerConfig holds all configuration for a Controller session.
//
// The bridge-side read timeout must lie in [MinReadTimeout, MaxReadTimeout]
// and be strictly less than the transport timeout. Violations fail at
// NewControllerConfig, before any socket is opened.
type ControllerConfig struct {
	host string
	port int

	// addr is the GPIB device address selected after connect.
	addr Address

	// readTimeout is programmed into the bridge with ++read_tmo_ms.
	readTimeout time.Duration

	// transportTimeout is the socket read/write deadline.
	transportTimeout time.Duration

	connectTimeout time.Duration

	logger logger.Logger
}

// NewControllerConfig creates a Controller configuration for the bridge at
// host and the instrument at addr.
//
// opts are functional options applied in order; see With* functions. The
// timeout invariants are validated after all options are applied.
func NewControllerConfig(host string, addr Address, opts ...ControllerOption) (*ControllerConfig, error) {
	if host == "" {
		return nil, fmt.Errorf("prologix: empty host")
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	cfg := &ControllerConfig{
		host:             host,
		port:             DefaultPort,
		addr:             addr,
		readTimeout:      DefaultReadTimeout,
		transportTimeout: DefaultTransportTimeout,
		connectTimeout:   DefaultConnectTimeout,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if err := validateTimeouts(cfg.readTimeout, cfg.transportTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateTimeouts enforces the two-domain timeout invariant.
func validateTimeouts(read, transport time.Duration) error {
	if read < MinReadTimeout || read > MaxReadTimeout {
		return fmt.Errorf("prologix: %w: %v", ErrReadTimeoutRange, read)
	}
	if read >= transport {
		return fmt.Errorf("prologix: %w: %v >= %v", ErrTimeoutOrder, read, transport)
	}

	return nil
}

// Host returns the configured bridge host.
func (cfg *ControllerConfig) Host() string { return cfg.host }

// Port returns the configured TCP port.
func (cfg *ControllerConfig) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *ControllerConfig) Addr() string { return fmt.Sprintf("%s:%d", cfg.host, cfg.port) }

// Address returns the GPIB device address selected after connect.
func (cfg *ControllerConfig) Address() Address { return cfg.addr }

// ReadTimeout returns the bridge-side per-operation read timeout.
func (cfg *ControllerConfig) ReadTimeout() time.Duration { return cfg.readTimeout }

// TransportTimeout returns the socket read/write deadline.
func (cfg *ControllerConfig) TransportTimeout() time.Duration { return cfg.transportTimeout }

// ConnectTimeout returns the TCP dial timeout.
func (cfg *ControllerConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// GetLogger returns the configured logger.
func (cfg *ControllerConfig) GetLogger() logger.Logger { return cfg.logger }

// ControllerOption is a functional option for configuring a ControllerConfig.
type ControllerOption interface {
	apply(*ControllerConfig) error
}

type ctrlOptFunc func(*ControllerConfig) error

func (f ctrlOptFunc) apply(cfg *ControllerConfig) error { return f(cfg) }

// WithPort overrides the TCP port. Default 1234.
func WithPort(port int) ControllerOption {
	return ctrlOptFunc(func(cfg *ControllerConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("prologix: port %d out of range [1, 65535]", port)
		}
		cfg.port = port
		return nil
	})
}

// WithReadTimeout sets the bridge-side per-operation read timeout programmed
// with ++read_tmo_ms. Must lie in [1ms, 3s] and be strictly less than the
// transport timeout.
func WithReadTimeout(d time.Duration) ControllerOption {
	return ctrlOptFunc(func(cfg *ControllerConfig) error {
		cfg.readTimeout = d
		return nil
	})
}

// WithTransportTimeout sets the local socket read/write deadline.
func WithTransportTimeout(d time.Duration) ControllerOption {
	return ctrlOptFunc(func(cfg *ControllerConfig) error {
		if d <= 0 {
			return fmt.Errorf("prologix: transport timeout %v must be positive", d)
		}
		cfg.transportTimeout = d
		return nil
	})
}

// WithConnectTimeout sets the TCP dial timeout.
func WithConnectTimeout(d time.Duration) ControllerOption {
	return ctrlOptFunc(func(cfg *ControllerConfig) error {
		if d <= 0 {
			return fmt.Errorf("prologix: connect timeout %v must be positive", d)
		}
		cfg.connectTimeout = d
		return nil
	})
}

// WithLogger sets the logger for the Controller.
func WithLogger(l logger.Logger) ControllerOption {
	return ctrlOptFunc(func(cfg *ControllerConfig) error {
		if l == nil {
			return fmt.Errorf("prologix: logger is nil")
		}
		cfg.logger = l
		return nil
	})
}
