package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/pkg/timestamp"
	"github.com/c360/canbridge/signal"
	"github.com/c360/canbridge/sigtable"
	"github.com/c360/canbridge/sim"
	"github.com/c360/canbridge/transport"
	"github.com/c360/canbridge/wire"
)

// ECU is the vehicle-side coordinator: it samples the signal source on a
// fixed cadence, packs the light control frame, and ships it to the
// gateway. With the gateway unreachable it keeps producing frames locally
// and periodically probes for a way back.
type ECU struct {
	client *transport.Client
	source sim.Source
	layout *signal.FrameLayout
	tick   time.Duration
	logger *slog.Logger

	state    stateMachine
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sent     atomic.Int64
	local    atomic.Int64
	lastSent atomic.Value // stores *wire.Envelope
}

// ECUDeps holds the ECU's dependencies. Layout defaults to the built-in
// light control layout; Tick defaults to 100ms.
type ECUDeps struct {
	Client *transport.Client
	Source sim.Source
	Layout *signal.FrameLayout
	Tick   time.Duration
	Logger *slog.Logger
}

// NewECU creates the ECU coordinator.
func NewECU(deps ECUDeps) *ECU {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	layout := deps.Layout
	if layout == nil {
		layout = sigtable.BuiltinLightControl()
	}
	tick := deps.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &ECU{
		client: deps.Client,
		source: deps.Source,
		layout: layout,
		tick:   tick,
		logger: logger.With("component", "bridge.ECU"),
	}
}

// State returns the current lifecycle state.
func (e *ECU) State() State {
	return e.state.current()
}

// FramesSent reports frames delivered to the gateway.
func (e *ECU) FramesSent() int64 {
	return e.sent.Load()
}

// FramesLocal reports frames produced while degraded.
func (e *ECU) FramesLocal() int64 {
	return e.local.Load()
}

// LastFrame returns the most recently produced envelope.
func (e *ECU) LastFrame() *wire.Envelope {
	env, _ := e.lastSent.Load().(*wire.Envelope)
	return env
}

// Initialize validates dependencies.
func (e *ECU) Initialize() error {
	if !e.state.transition(StateIdle, StateInitializing) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "bridge.ECU", "Initialize", "initialize transmitter")
	}
	if e.client == nil || e.source == nil {
		e.state.set(StateIdle)
		return errors.WrapInvalid(errors.ErrMissingConfig, "bridge.ECU", "Initialize", "client and source are required")
	}
	if err := e.layout.Validate(); err != nil {
		e.state.set(StateIdle)
		return err
	}
	return nil
}

// Start connects to the gateway and launches the transmit loop. A failed
// connect is not fatal; the loop starts in degraded mode.
func (e *ECU) Start(ctx context.Context) error {
	if e.state.current() != StateInitializing {
		return errors.WrapInvalid(errors.ErrNotStarted, "bridge.ECU", "Start", "transmitter not initialized")
	}

	if err := e.client.Connect(ctx); err != nil {
		e.logger.Warn("starting without gateway", "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	e.wg.Add(1)
	go e.transmitLoop(loopCtx)

	e.state.set(StateRunning)
	return nil
}

// transmitLoop produces one frame per tick.
func (e *ECU) transmitLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.transmitOnce(ctx)
		}
	}
}

func (e *ECU) transmitOnce(ctx context.Context) {
	values := e.source.Next()
	payload := signal.Encode(e.layout, values)

	env := &wire.Envelope{
		Identifier:          e.layout.Identifier,
		DeclaredLength:      e.layout.ByteLength,
		Payload:             payload[:],
		ProducedAtWallClock: timestamp.Now(),
		ProducedAtSimTime:   e.source.SimTime(),
	}
	e.lastSent.Store(env)

	if !e.client.Connected() {
		e.local.Add(1)
		return
	}

	if err := e.client.Send(env); err != nil {
		e.local.Add(1)
		if errors.Is(err, errors.ErrConnectionLost) {
			e.logger.Warn("gateway connection lost, redialing")
			if cerr := e.client.Connect(ctx); cerr != nil {
				e.logger.Warn("redial failed, continuing locally", "error", cerr)
			}
		}
		return
	}
	e.sent.Add(1)
}

// Stop halts the transmit loop and drops the connection. Stopping an
// initialized-but-never-started ECU still closes the client, in case the
// caller connected it out of band.
func (e *ECU) Stop(timeout time.Duration) error {
	if e.state.transition(StateInitializing, StateStopped) {
		return e.client.Close()
	}
	if !e.state.transition(StateRunning, StateStopping) {
		return nil
	}

	e.cancel()

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(timeout):
		_ = e.client.Close()
		e.state.set(StateStopped)
		return errors.WrapTransient(errors.ErrShutdownTimeout, "bridge.ECU", "Stop", "wait for transmit loop")
	}

	err := e.client.Close()
	e.state.set(StateStopped)
	return err
}
