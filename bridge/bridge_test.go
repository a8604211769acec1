package bridge

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/canbridge/fanout"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/sigtable"
	"github.com/c360/canbridge/store"
	"github.com/c360/canbridge/transport"
	"github.com/c360/canbridge/validate"
	"github.com/c360/canbridge/vssmap"
	"github.com/c360/canbridge/wire"
)

// fixedSource always reports the same lamp state.
type fixedSource struct {
	t      float64
	values map[string]float64
}

func (s *fixedSource) Next() map[string]float64 {
	s.t += 0.05
	return s.values
}

func (s *fixedSource) SimTime() float64 { return s.t }

func newTestGateway(t *testing.T, deps GatewayDeps) *Gateway {
	t.Helper()

	if deps.ListenAddr == "" {
		deps.ListenAddr = "127.0.0.1:0"
	}
	if deps.Validator == nil {
		deps.Validator = validate.NewValidator(validate.ValidatorDeps{Metrics: deps.Metrics})
	}
	if deps.Distributor == nil {
		var err error
		deps.Distributor, err = fanout.NewDistributor(fanout.DistributorDeps{
			Publisher: fanout.NewMemoryPublisher(),
			Metrics:   deps.Metrics,
		})
		require.NoError(t, err)
	}
	if deps.Table == nil {
		var err error
		deps.Table, err = sigtable.NewTable(sigtable.TableDeps{Metrics: deps.Metrics})
		require.NoError(t, err)
	}
	if deps.Mapper == nil {
		var err error
		deps.Mapper, err = vssmap.NewMapper(vssmap.MapperDeps{Metrics: deps.Metrics})
		require.NoError(t, err)
	}

	g := NewGateway(deps)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.Start(testContext(t)))
	t.Cleanup(func() { _ = g.Stop(5 * time.Second) })
	return g
}

func TestGatewayLifecycle(t *testing.T) {
	g := newTestGateway(t, GatewayDeps{})
	assert.Equal(t, StateRunning, g.State())
	assert.NotEmpty(t, g.Addr())

	require.NoError(t, g.Stop(5*time.Second))
	assert.Equal(t, StateStopped, g.State())

	// Second stop is a no-op.
	require.NoError(t, g.Stop(5*time.Second))
}

func TestGatewayInitializeRequiresListenAddr(t *testing.T) {
	g := NewGateway(GatewayDeps{})
	assert.Error(t, g.Initialize())
}

func TestGatewayDoubleInitialize(t *testing.T) {
	g := newTestGateway(t, GatewayDeps{})
	assert.Error(t, g.Initialize())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestEndToEndLampFrameReachesVSS(t *testing.T) {
	reg := metric.NewRegistry()

	db, err := store.Open(store.StoreDeps{
		Path:    filepath.Join(t.TempDir(), "bridge.db"),
		Metrics: reg,
	})
	require.NoError(t, err)
	defer db.Close()

	publisher := fanout.NewMemoryPublisher()
	broadcast := publisher.Subscribe(fanout.DefaultSubject)
	distributor, err := fanout.NewDistributor(fanout.DistributorDeps{Publisher: publisher, Metrics: reg})
	require.NoError(t, err)

	g := newTestGateway(t, GatewayDeps{
		Distributor: distributor,
		Store:       db,
		Metrics:     reg,
	})

	client, err := transport.NewClient(transport.ClientDeps{Addr: g.Addr()})
	require.NoError(t, err)

	ecu := NewECU(ECUDeps{
		Client: client,
		Source: &fixedSource{values: map[string]float64{
			"headLamp":     1,
			"lightLevel":   80,
			"vehicleSpeed": 60,
		}},
		Tick: 10 * time.Millisecond,
	})
	require.NoError(t, ecu.Initialize())
	require.NoError(t, ecu.Start(testContext(t)))
	defer ecu.Stop(5 * time.Second)

	// A broadcast copy arrives on the fan-out subject.
	select {
	case env := <-broadcast:
		assert.Equal(t, uint32(0x100), env.Identifier)
		assert.Equal(t, byte(1), env.Payload[0])
		assert.Equal(t, byte(80), env.Payload[1])
		assert.Equal(t, byte(60), env.Payload[2])
	case <-time.After(5 * time.Second):
		t.Fatal("no frame broadcast")
	}

	// The mapped VSS samples land in the store.
	require.Eventually(t, func() bool {
		latest, lerr := db.LatestSamples(testContext(t))
		if lerr != nil {
			return false
		}
		return latest["Vehicle.Body.Lights.IsHighBeamOn"] == 1 &&
			latest["Vehicle.Body.Lights.AmbientLight"] == 80 &&
			latest["Vehicle.Speed"] == 60
	}, 5*time.Second, 20*time.Millisecond)

	assert.Positive(t, ecu.FramesSent())
	require.NotNil(t, ecu.LastFrame())
}

func TestEndToEndInvalidFrameIsDropped(t *testing.T) {
	reg := metric.NewRegistry()
	publisher := fanout.NewMemoryPublisher()
	broadcast := publisher.Subscribe(fanout.DefaultSubject)
	distributor, err := fanout.NewDistributor(fanout.DistributorDeps{Publisher: publisher, Metrics: reg})
	require.NoError(t, err)

	g := newTestGateway(t, GatewayDeps{Distributor: distributor, Metrics: reg})

	client, err := transport.NewClient(transport.ClientDeps{Addr: g.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Connect(testContext(t)))
	defer client.Close()

	// Out-of-range identifier: validated out before fan-out.
	require.NoError(t, client.Send(&wire.Envelope{
		Identifier:     0x800,
		DeclaredLength: 8,
		Payload:        make([]byte, 8),
	}))
	// Valid frame right behind it.
	require.NoError(t, client.Send(&wire.Envelope{
		Identifier:     0x100,
		DeclaredLength: 8,
		Payload:        []byte{1, 50, 60, 0, 0, 0, 0, 0},
	}))

	select {
	case env := <-broadcast:
		assert.Equal(t, uint32(0x100), env.Identifier)
	case <-time.After(5 * time.Second):
		t.Fatal("valid frame was not broadcast")
	}
	assert.Empty(t, broadcast)
}

func TestECUStopBeforeStartClosesClient(t *testing.T) {
	srv, err := transport.NewServer(transport.ServerDeps{
		Addr:    "127.0.0.1:0",
		Handler: func(string, *wire.Envelope) {},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop(5 * time.Second)

	client, err := transport.NewClient(transport.ClientDeps{Addr: srv.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Connect(testContext(t)))
	require.True(t, client.Connected())

	ecu := NewECU(ECUDeps{
		Client: client,
		Source: &fixedSource{values: map[string]float64{"headLamp": 1}},
	})
	require.NoError(t, ecu.Initialize())

	require.NoError(t, ecu.Stop(5*time.Second))
	assert.Equal(t, StateStopped, ecu.State())
	assert.False(t, client.Connected())
}

func TestECUDegradedModeKeepsProducing(t *testing.T) {
	client, err := transport.NewClient(transport.ClientDeps{
		Addr:     "127.0.0.1:1",
		Attempts: 1,
		Delay:    10 * time.Millisecond,
	})
	require.NoError(t, err)

	ecu := NewECU(ECUDeps{
		Client: client,
		Source: &fixedSource{values: map[string]float64{"headLamp": 1}},
		Tick:   10 * time.Millisecond,
	})
	require.NoError(t, ecu.Initialize())
	require.NoError(t, ecu.Start(testContext(t)))
	defer ecu.Stop(5 * time.Second)

	require.Eventually(t, func() bool {
		return ecu.FramesLocal() >= 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, ecu.FramesSent())
	assert.True(t, client.Degraded())
	assert.Equal(t, StateRunning, ecu.State())
}
