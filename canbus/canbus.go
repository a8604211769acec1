// Package canbus forwards validated frame envelopes onto a real SocketCAN
// interface. A nil writer is a valid degraded state: the pipeline keeps
// running without bus output when no interface is available. SocketCAN only
// exists on linux; elsewhere Dial reports the interface as unavailable.
package canbus

import (
	"context"

	"github.com/c360/canbridge/wire"
)

// Writer sends envelopes to a CAN bus.
type Writer interface {
	WriteEnvelope(ctx context.Context, env *wire.Envelope) error
	Close() error
}
