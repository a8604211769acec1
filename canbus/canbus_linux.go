//go:build linux

package canbus

import (
	"context"
	"log/slog"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/wire"
)

// SocketCANWriter transmits frames on a SocketCAN interface such as vcan0.
type SocketCANWriter struct {
	iface  string
	conn   net.Conn
	tx     *socketcan.Transmitter
	logger *slog.Logger
}

// Dial opens the SocketCAN interface.
func Dial(ctx context.Context, iface string, logger *slog.Logger) (*SocketCANWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, errors.WrapTransient(err, "canbus.SocketCANWriter", "Dial", "dial "+iface)
	}
	return &SocketCANWriter{
		iface:  iface,
		conn:   conn,
		tx:     socketcan.NewTransmitter(conn),
		logger: logger.With("component", "canbus.SocketCANWriter", "iface", iface),
	}, nil
}

// WriteEnvelope transmits the envelope as a classic CAN frame, carrying the
// first DeclaredLength payload bytes.
func (w *SocketCANWriter) WriteEnvelope(ctx context.Context, env *wire.Envelope) error {
	frame := can.Frame{
		ID:     env.Identifier,
		Length: env.DeclaredLength,
	}
	payload := env.PayloadArray()
	copy(frame.Data[:], payload[:env.DeclaredLength])

	if err := w.tx.TransmitFrame(ctx, frame); err != nil {
		return errors.WrapTransient(err, "canbus.SocketCANWriter", "WriteEnvelope", "transmit frame")
	}
	return nil
}

// Close closes the underlying connection.
func (w *SocketCANWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	if err := w.conn.Close(); err != nil {
		return errors.Wrap(err, "canbus.SocketCANWriter", "Close", "close connection")
	}
	return nil
}
