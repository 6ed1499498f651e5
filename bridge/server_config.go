package bridge

import (
	"fmt"
	"time"

	"github.com/ILoveBacteria/test-instrument-automation/logger"
	"github.com/ILoveBacteria/test-instrument-automation/prologix"
)

const (
	// DefaultHost binds all interfaces.
	DefaultHost = "0.0.0.0"

	// DefaultBoard is the GPIB board index resources are opened on.
	DefaultBoard = 0

	// DefaultPrimaryAddr is the device address selected when a connection is
	// accepted, per the Prologix power-on default.
	DefaultPrimaryAddr = 1

	// DefaultSendTimeout bounds reply writes back to a client.
	DefaultSendTimeout = 3 * time.Second
)

// ServerConfig holds all configuration for a bridge Server.
type ServerConfig struct {
	host string
	port int

	// board is the GPIB board index used when building resource names.
	board int

	sendTimeout time.Duration

	logger logger.Logger
}

// NewServerConfig creates a bridge server configuration listening on host and
// port. opts are functional options applied in order; see With* functions.
func NewServerConfig(host string, port int, opts ...ServerOption) (*ServerConfig, error) {
	if host == "" {
		host = DefaultHost
	}
	// Port 0 asks the OS for an ephemeral port; Addr() reports the bound one.
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("bridge: port %d out of range [0, 65535]", port)
	}

	cfg := &ServerConfig{
		host:        host,
		port:        port,
		board:       DefaultBoard,
		sendTimeout: DefaultSendTimeout,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Host returns the configured bind host.
func (cfg *ServerConfig) Host() string { return cfg.host }

// Port returns the configured TCP port.
func (cfg *ServerConfig) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", cfg.host, cfg.port) }

// Board returns the GPIB board index used when opening resources.
func (cfg *ServerConfig) Board() int { return cfg.board }

// SendTimeout returns the reply write deadline.
func (cfg *ServerConfig) SendTimeout() time.Duration { return cfg.sendTimeout }

// GetLogger returns the configured logger.
func (cfg *ServerConfig) GetLogger() logger.Logger { return cfg.logger }

// ServerOption is a functional option for configuring a ServerConfig.
type ServerOption interface {
	apply(*ServerConfig) error
}

type srvOptFunc func(*ServerConfig) error

func (f srvOptFunc) apply(cfg *ServerConfig) error { return f(cfg) }

// WithBoard sets the GPIB board index used when building resource names.
func WithBoard(board int) ServerOption {
	return srvOptFunc(func(cfg *ServerConfig) error {
		if board < 0 {
			return fmt.Errorf("bridge: board index %d must not be negative", board)
		}
		cfg.board = board
		return nil
	})
}

// WithSendTimeout sets the reply write deadline.
func WithSendTimeout(d time.Duration) ServerOption {
	return srvOptFunc(func(cfg *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("bridge: send timeout %v must be positive", d)
		}
		cfg.sendTimeout = d
		return nil
	})
}

// WithLogger sets the logger for the server and its connections.
func WithLogger(l logger.Logger) ServerOption {
	return srvOptFunc(func(cfg *ServerConfig) error {
		if l == nil {
			return fmt.Errorf("bridge: logger is nil")
		}
		cfg.logger = l
		return nil
	})
}

// defaultState returns the protocol registers a fresh (or ++rst) connection
// starts with.
func defaultState() connState {
	return connState{
		addr:          prologix.NewAddress(DefaultPrimaryAddr),
		controller:    true,
		autoRead:      false,
		eoi:           true,
		eos:           prologix.EOSModeNone,
		eotEnable:     false,
		eotChar:       '\n',
		listenOnly:    false,
		status:        0,
		readTimeoutMs: 1000,
	}
}
