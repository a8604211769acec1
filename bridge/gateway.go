package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/canbridge/canbus"
	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/fanout"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/pkg/worker"
	"github.com/c360/canbridge/sigtable"
	"github.com/c360/canbridge/store"
	"github.com/c360/canbridge/transport"
	"github.com/c360/canbridge/validate"
	"github.com/c360/canbridge/vssmap"
	"github.com/c360/canbridge/wire"
)

// The decode/persist stage is bounded so a slow store cannot back up into
// the accept path.
const (
	processQueueDepth = 256
	processWorkers    = 2

	// Budget for the self-initiated stop after a fatal transport error.
	fatalStopTimeout = 5 * time.Second
)

// Gateway is the zone-side coordinator. Every envelope a connection
// delivers runs validate -> fan out; a worker pool then decodes, maps,
// and persists the frame off the hot path.
type Gateway struct {
	listenAddr  string
	validator   *validate.Validator
	distributor *fanout.Distributor
	table       *sigtable.Table
	mapper      *vssmap.Mapper
	store       *store.Store
	busWriter   canbus.Writer
	logger      *slog.Logger
	metrics     *metric.Registry

	server *transport.Server
	state  stateMachine
	pool   *worker.Pool[*wire.Envelope]
	cancel context.CancelFunc
}

// GatewayDeps holds the gateway's dependencies. Store and BusWriter are
// optional; a nil value disables that sink.
type GatewayDeps struct {
	ListenAddr  string
	Validator   *validate.Validator
	Distributor *fanout.Distributor
	Table       *sigtable.Table
	Mapper      *vssmap.Mapper
	Store       *store.Store
	BusWriter   canbus.Writer
	Logger      *slog.Logger
	Metrics     *metric.Registry
}

// NewGateway creates a gateway coordinator.
func NewGateway(deps GatewayDeps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		listenAddr:  deps.ListenAddr,
		validator:   deps.Validator,
		distributor: deps.Distributor,
		table:       deps.Table,
		mapper:      deps.Mapper,
		store:       deps.Store,
		busWriter:   deps.BusWriter,
		logger:      logger.With("component", "bridge.Gateway"),
		metrics:     deps.Metrics,
	}
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	return g.state.current()
}

// Addr returns the bound listen address once running.
func (g *Gateway) Addr() string {
	if g.server == nil {
		return ""
	}
	return g.server.Addr()
}

// Initialize checks that the required dependencies are present.
func (g *Gateway) Initialize() error {
	if !g.state.transition(StateIdle, StateInitializing) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "bridge.Gateway", "Initialize", "initialize pipeline")
	}

	if g.listenAddr == "" {
		g.state.set(StateIdle)
		return errors.WrapInvalid(errors.ErrMissingConfig, "bridge.Gateway", "Initialize", "listen address is required")
	}
	for name, missing := range map[string]bool{
		"validator":   g.validator == nil,
		"distributor": g.distributor == nil,
		"table":       g.table == nil,
		"mapper":      g.mapper == nil,
	} {
		if missing {
			g.state.set(StateIdle)
			return errors.WrapInvalid(errors.ErrMissingConfig, "bridge.Gateway", "Initialize", name+" is required")
		}
	}

	server, err := transport.NewServer(transport.ServerDeps{
		Addr:    g.listenAddr,
		Handler: g.handleFrame,
		OnFatal: g.onTransportFatal,
		Logger:  g.logger,
		Metrics: g.metrics,
	})
	if err != nil {
		g.state.set(StateIdle)
		return err
	}
	g.server = server
	return nil
}

// Start binds the listener and launches the processing pool.
func (g *Gateway) Start(ctx context.Context) error {
	if g.state.current() != StateInitializing {
		return errors.WrapInvalid(errors.ErrNotStarted, "bridge.Gateway", "Start", "pipeline not initialized")
	}

	g.pool = worker.NewPool(processWorkers, processQueueDepth, g.processFrame)
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel

	if err := g.pool.Start(workerCtx); err != nil {
		cancel()
		return err
	}
	if err := g.server.Start(); err != nil {
		cancel()
		_ = g.pool.Stop(time.Second)
		return err
	}

	g.state.set(StateRunning)
	g.setStateGauge()
	g.logger.Info("gateway running", "addr", g.server.Addr())
	return nil
}

// onTransportFatal runs when the listener dies unrecoverably. The pipeline
// cannot accept frames anymore, so it shuts down in an orderly way.
func (g *Gateway) onTransportFatal(err error) {
	g.logger.Error("transport failed, stopping pipeline", "error", err)
	go func() {
		if serr := g.Stop(fatalStopTimeout); serr != nil {
			g.logger.Error("stop after transport failure", "error", serr)
		}
	}()
}

// handleFrame is the per-envelope hot path: validate, fan out, enqueue for
// decode. Invalid frames stop here.
func (g *Gateway) handleFrame(connID string, env *wire.Envelope) {
	res := g.validator.Validate(env)
	if !res.Valid {
		g.logger.Debug("frame dropped", "conn_id", connID, "reason", res.Reason)
		return
	}

	// Broadcast failures are counted inside the distributor; the frame is
	// still backed up and processed.
	_ = g.distributor.Distribute(env)

	if err := g.pool.Submit(env); err != nil {
		g.logger.Warn("processing queue full, frame skipped", "identifier", env.Identifier)
	}
}

// processFrame runs on the pool: decode, forward to the bus, map to VSS,
// persist. Every sink failure is non-fatal.
func (g *Gateway) processFrame(ctx context.Context, env *wire.Envelope) error {
	if g.busWriter != nil {
		if err := g.busWriter.WriteEnvelope(ctx, env); err != nil {
			g.logger.Debug("bus write failed", "identifier", env.Identifier, "error", err)
		}
	}

	decoded := g.table.Decode(env)
	if decoded.Source == sigtable.SourceFailed {
		return decoded.Err
	}

	samples := g.mapper.MapAll(env.Identifier, decoded.Signals, env.ProducedAtSimTime)

	if g.store != nil {
		if _, err := g.store.SaveFrame(ctx, env, decoded.Signals); err != nil {
			g.logger.Debug("frame persist failed", "identifier", env.Identifier, "error", err)
		}
		if err := g.store.SaveSamples(ctx, samples); err != nil {
			g.logger.Debug("sample persist failed", "identifier", env.Identifier, "error", err)
		}
	}
	return nil
}

// Stop drains the pipeline: listener first, then the pool, then the
// fan-out sinks.
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.state.transition(StateRunning, StateStopping) {
		return nil
	}
	g.setStateGauge()

	var errs []error
	if err := g.server.Stop(timeout); err != nil {
		errs = append(errs, err)
	}

	if err := g.pool.Stop(timeout); err != nil {
		errs = append(errs, errors.WrapTransient(errors.ErrShutdownTimeout, "bridge.Gateway", "Stop", "drain processing pool"))
	}
	g.cancel()

	if err := g.distributor.Close(); err != nil {
		errs = append(errs, err)
	}
	if g.busWriter != nil {
		if err := g.busWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	g.state.set(StateStopped)
	g.setStateGauge()
	g.logger.Info("gateway stopped")

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (g *Gateway) setStateGauge() {
	if g.metrics != nil {
		g.metrics.Core.PipelineState.Set(float64(g.state.current()))
	}
}
