// Package transport carries frame envelopes between virtual ECUs and the
// zone gateway over TCP, newline-delimited JSON per message.
package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/pkg/retry"
	"github.com/c360/canbridge/wire"
)

const (
	// ReconnectAttempts is how many times the client redials before
	// settling into degraded mode.
	ReconnectAttempts = 5
	// ReconnectDelay is the fixed wait between redial attempts.
	ReconnectDelay = time.Second
	// WriteTimeout bounds a single envelope write.
	WriteTimeout = time.Second
)

// Client is the ECU-side connection to the gateway. When the gateway is
// unreachable after the reconnect budget the client enters degraded mode:
// Send fails fast and the ECU keeps operating on local state.
type Client struct {
	addr   string
	logger *slog.Logger
	dialer net.Dialer

	attempts int
	delay    time.Duration

	mu       sync.Mutex
	conn     net.Conn
	degraded atomic.Bool
}

// ClientDeps holds the client's dependencies. Attempts and Delay default to
// the package constants when zero.
type ClientDeps struct {
	Addr     string
	Logger   *slog.Logger
	Attempts int
	Delay    time.Duration
}

// NewClient creates a gateway client. It does not dial; call Connect.
func NewClient(deps ClientDeps) (*Client, error) {
	if deps.Addr == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "transport.Client", "NewClient", "gateway address is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := deps.Attempts
	if attempts <= 0 {
		attempts = ReconnectAttempts
	}
	delay := deps.Delay
	if delay <= 0 {
		delay = ReconnectDelay
	}
	return &Client{
		addr:     deps.Addr,
		logger:   logger.With("component", "transport.Client"),
		dialer:   net.Dialer{Timeout: 2 * time.Second},
		attempts: attempts,
		delay:    delay,
	}, nil
}

// Connect dials the gateway, redialing on a fixed schedule. Exhausting the
// attempt budget is not fatal: the client enters degraded mode and returns a
// transient error so the caller can keep running locally.
func (c *Client) Connect(ctx context.Context) error {
	err := retry.Do(ctx, retry.Fixed(c.attempts, c.delay), func() error {
		conn, dialErr := c.dialer.DialContext(ctx, "tcp", c.addr)
		if dialErr != nil {
			c.logger.Debug("dial failed", "addr", c.addr, "error", dialErr)
			return dialErr
		}
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = conn
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.degraded.Store(true)
		c.logger.Warn("gateway unreachable, entering degraded mode",
			"addr", c.addr, "attempts", c.attempts)
		return errors.WrapTransient(errors.ErrRetriesExhausted, "transport.Client", "Connect", "dial gateway "+c.addr)
	}

	c.degraded.Store(false)
	c.logger.Info("connected to gateway", "addr", c.addr)
	return nil
}

// Degraded reports whether the client has given up on the gateway.
func (c *Client) Degraded() bool {
	return c.degraded.Load()
}

// Connected reports whether a live connection is held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one envelope. A failed write drops the connection; the caller
// decides whether to Connect again.
func (c *Client) Send(env *wire.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "transport.Client", "Send", "send frame")
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return errors.Wrap(err, "transport.Client", "Send", "set write deadline")
	}
	if _, err := c.conn.Write(data); err != nil {
		c.conn.Close()
		c.conn = nil
		return errors.WrapTransient(errors.ErrConnectionLost, "transport.Client", "Send", err.Error())
	}
	return nil
}

// Close drops the connection if one is held.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return errors.Wrap(err, "transport.Client", "Close", "close connection")
	}
	return nil
}
