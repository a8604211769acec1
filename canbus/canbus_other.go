//go:build !linux

package canbus

import (
	"context"
	"log/slog"

	"github.com/c360/canbridge/errors"
)

// Dial always fails on platforms without SocketCAN support. Callers treat
// this like any unavailable interface and run without bus output.
func Dial(_ context.Context, iface string, _ *slog.Logger) (Writer, error) {
	return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "canbus", "Dial",
		"socketcan interface "+iface+" requires linux")
}
