package transport

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/wire"
)

const (
	pollInterval = time.Second

	// Consecutive non-timeout accept failures tolerated before the
	// listener is declared dead.
	acceptFailureMax     = 5
	acceptFailureBackoff = 100 * time.Millisecond
)

// Handler receives every envelope decoded from a connection. connID is
// stable for the connection's lifetime.
type Handler func(connID string, env *wire.Envelope)

// Server is the gateway-side TCP listener. Each accepted connection gets its
// own goroutine and framer; decoded envelopes are passed to the handler.
// Accept and read deadlines of one second keep shutdown responsive.
type Server struct {
	addr    string
	handler Handler
	onFatal func(error)
	logger  *slog.Logger
	metrics *metric.Registry

	listener net.Listener
	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
}

// ServerDeps holds the server's dependencies. OnFatal, when set, is called
// once from the accept goroutine if the listener fails unrecoverably; the
// owner is expected to initiate shutdown.
type ServerDeps struct {
	Addr    string
	Handler Handler
	OnFatal func(error)
	Logger  *slog.Logger
	Metrics *metric.Registry
}

// NewServer creates a gateway listener. Addr may use port 0 to pick a free
// port; Addr() reports the bound address after Start.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.Addr == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "transport.Server", "NewServer", "listen address is required")
	}
	if deps.Handler == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "transport.Server", "NewServer", "handler is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     deps.Addr,
		handler:  deps.Handler,
		onFatal:  deps.OnFatal,
		logger:   logger.With("component", "transport.Server"),
		metrics:  deps.Metrics,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start binds the listener and runs the accept loop in the background.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "transport.Server", "Start", "start listener")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return errors.Wrap(err, "transport.Server", "Start", "bind "+s.addr)
	}
	s.listener = listener
	s.logger.Info("listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	failures := 0
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if tl, ok := s.listener.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(pollInterval))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.shutdown:
				return
			default:
			}

			failures++
			if failures >= acceptFailureMax {
				s.logger.Error("accept failing persistently, listener is dead", "error", err)
				if s.onFatal != nil {
					s.onFatal(errors.WrapFatal(err, "transport.Server", "acceptLoop", "accept connections"))
				}
				return
			}
			s.logger.Error("accept failed", "error", err, "consecutive", failures)
			select {
			case <-s.shutdown:
				return
			case <-time.After(time.Duration(failures) * acceptFailureBackoff):
			}
			continue
		}
		failures = 0

		connID := uuid.NewString()
		if s.metrics != nil {
			s.metrics.Core.ConnectionsAccepted.Inc()
		}
		s.logger.Info("connection accepted",
			"conn_id", connID, "remote", conn.RemoteAddr().String())

		s.wg.Add(1)
		go s.handleConnection(connID, conn)
	}
}

// handleConnection reads chunks, feeds them through the framer, and hands
// complete envelopes to the handler. Read timeouts just poll the shutdown
// channel; the connection stays up.
func (s *Server) handleConnection(connID string, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	framer := wire.NewFramer()
	buf := make([]byte, 4096)

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			s.logger.Debug("set read deadline failed", "conn_id", connID, "error", err)
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			envelopes, errs := framer.Feed(buf[:n])
			for _, ferr := range errs {
				s.logger.Warn("malformed message", "conn_id", connID, "error", ferr)
			}
			for _, env := range envelopes {
				s.handler(connID, env)
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if err != io.EOF {
				s.logger.Debug("read failed", "conn_id", connID, "error", err)
			}
			s.logger.Info("connection closed", "conn_id", connID)
			return
		}
	}
}

// Stop closes the listener and waits up to timeout for connection
// goroutines to finish.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	close(s.shutdown)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		close(s.done)
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "transport.Server", "Stop", "wait for connections")
	}
}
