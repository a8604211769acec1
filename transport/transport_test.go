package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/wire"
)

// collector gathers envelopes dispatched by the server.
type collector struct {
	mu        sync.Mutex
	envelopes []*wire.Envelope
	connIDs   map[string]bool
	ch        chan *wire.Envelope
}

func newCollector() *collector {
	return &collector{
		connIDs: make(map[string]bool),
		ch:      make(chan *wire.Envelope, 100),
	}
}

func (c *collector) handle(connID string, env *wire.Envelope) {
	c.mu.Lock()
	c.envelopes = append(c.envelopes, env)
	c.connIDs[connID] = true
	c.mu.Unlock()
	c.ch <- env
}

func (c *collector) wait(t *testing.T, n int) []*wire.Envelope {
	t.Helper()
	for j := 0; j < n; j++ {
		select {
		case <-c.ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d envelopes", n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*wire.Envelope(nil), c.envelopes...)
}

func startServer(t *testing.T, col *collector) *Server {
	t.Helper()
	srv, err := NewServer(ServerDeps{Addr: "127.0.0.1:0", Handler: col.handle})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(5 * time.Second) })
	return srv
}

func TestClientServerRoundTrip(t *testing.T) {
	col := newCollector()
	srv := startServer(t, col)

	client, err := NewClient(ClientDeps{Addr: srv.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Connect(testContext(t)))
	defer client.Close()

	assert.True(t, client.Connected())
	assert.False(t, client.Degraded())

	env := &wire.Envelope{
		Identifier:     0x100,
		DeclaredLength: 8,
		Payload:        []byte{1, 50, 60, 0, 0, 0, 0, 0},
	}
	require.NoError(t, client.Send(env))

	got := col.wait(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(0x100), got[0].Identifier)
	assert.Equal(t, env.Payload, got[0].Payload)
}

func TestServerHandlesMultipleClients(t *testing.T) {
	col := newCollector()
	srv := startServer(t, col)

	for i := 0; i < 3; i++ {
		client, err := NewClient(ClientDeps{Addr: srv.Addr()})
		require.NoError(t, err)
		require.NoError(t, client.Connect(testContext(t)))
		defer client.Close()

		require.NoError(t, client.Send(&wire.Envelope{
			Identifier:     uint32(0x100 + i),
			DeclaredLength: 8,
			Payload:        make([]byte, 8),
		}))
	}

	col.wait(t, 3)
	col.mu.Lock()
	defer col.mu.Unlock()
	assert.Len(t, col.connIDs, 3)
}

func TestClientDegradedModeAfterRetryBudget(t *testing.T) {
	// Nothing listens on this port.
	client, err := NewClient(ClientDeps{
		Addr:     "127.0.0.1:1",
		Attempts: 2,
		Delay:    10 * time.Millisecond,
	})
	require.NoError(t, err)

	err = client.Connect(testContext(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRetriesExhausted)
	assert.True(t, errors.IsTransient(err), "degraded mode must not be fatal")
	assert.True(t, client.Degraded())
	assert.False(t, client.Connected())
}

func TestClientSendWithoutConnection(t *testing.T) {
	client, err := NewClient(ClientDeps{Addr: "127.0.0.1:1"})
	require.NoError(t, err)

	err = client.Send(&wire.Envelope{Identifier: 0x100, DeclaredLength: 8, Payload: make([]byte, 8)})
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestClientReconnectClearsDegraded(t *testing.T) {
	col := newCollector()
	srv := startServer(t, col)

	client, err := NewClient(ClientDeps{
		Addr:     srv.Addr(),
		Attempts: 2,
		Delay:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	client.degraded.Store(true)

	require.NoError(t, client.Connect(testContext(t)))
	assert.False(t, client.Degraded())
	client.Close()
}

func TestServerStopIsIdempotent(t *testing.T) {
	srv, err := NewServer(ServerDeps{Addr: "127.0.0.1:0", Handler: func(string, *wire.Envelope) {}})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	require.NoError(t, srv.Stop(5*time.Second))
	require.NoError(t, srv.Stop(5*time.Second))
}

func TestServerReportsDeadListener(t *testing.T) {
	var (
		mu    sync.Mutex
		fatal error
	)
	srv, err := NewServer(ServerDeps{
		Addr:    "127.0.0.1:0",
		Handler: func(string, *wire.Envelope) {},
		OnFatal: func(err error) {
			mu.Lock()
			fatal = err
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	// Killing the listener out from under the server makes every accept
	// fail immediately; the loop must back off and then give up.
	require.NoError(t, srv.listener.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatal != nil
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.True(t, errors.IsFatal(fatal))
	mu.Unlock()

	require.NoError(t, srv.Stop(5*time.Second))
}

func TestServerRejectsDoubleStart(t *testing.T) {
	srv, err := NewServer(ServerDeps{Addr: "127.0.0.1:0", Handler: func(string, *wire.Envelope) {}})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop(5 * time.Second)

	assert.ErrorIs(t, srv.Start(), errors.ErrAlreadyStarted)
}
