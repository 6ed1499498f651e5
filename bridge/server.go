package bridge

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ILoveBacteria/test-instrument-automation/logger"
	"github.com/ILoveBacteria/test-instrument-automation/visa"
)

// Server is the bridge daemon: a long-running TCP listener bound at startup to
// one resource manager. There is no in-protocol shutdown command; the server
// stops on Close or process signal, and individual sessions end on client
// disconnect.
type Server struct {
	cfg    *ServerConfig
	rm     *visa.ResourceManager
	logger logger.Logger

	ln       net.Listener
	wg       sync.WaitGroup
	started  atomic.Bool
	shutdown atomic.Bool

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates a bridge server relaying into rm. The manager's lifecycle
// belongs to the caller; the server never closes it.
func NewServer(cfg *ServerConfig, rm *visa.ResourceManager) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bridge: server config is nil")
	}
	if rm == nil {
		return nil, fmt.Errorf("bridge: %w", ErrResourceManagerNil)
	}

	return &Server{
		cfg:    cfg,
		rm:     rm,
		logger: cfg.GetLogger(),
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the listener and begins accepting connections. A bind failure
// (port already in use) is fatal and returned immediately.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("bridge: %w", ErrAlreadyStarted)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("bridge: listen %s: %w", s.cfg.Addr(), err)
	}
	s.ln = ln

	s.logger.Info("bridge: listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound listener address, valid after Start. Useful when the
// configuration asked for port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}

	return s.ln.Addr()
}

// Close stops accepting, closes the listener, and waits for active sessions
// to end.
func (s *Server) Close() error {
	if !s.started.Load() {
		return nil
	}
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	err := s.ln.Close()

	// Sessions block on client reads; close their sockets so the wait below
	// terminates.
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	s.logger.Info("bridge: stopped")

	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("bridge: accept failed", "error", err)

			continue
		}

		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.connMu.Lock()
				delete(s.conns, conn)
				s.connMu.Unlock()
			}()
			newConnection(conn, s.rm, s.cfg).serve()
		}()
	}
}
