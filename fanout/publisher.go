// Package fanout broadcasts validated frame envelopes to downstream
// consumers over NATS and keeps a bounded backup of recent frames for
// consumers that join late or miss deliveries.
package fanout

import (
	"sync"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/natsclient"
	"github.com/c360/canbridge/wire"
)

// DefaultSubject is the NATS subject validated frames are broadcast on.
const DefaultSubject = "canbridge.frames"

// Publisher delivers an encoded envelope to subscribers. Delivery is
// best-effort; a failed delivery is reported but never retried.
type Publisher interface {
	Publish(subject string, env *wire.Envelope) error
	Close() error
}

// NATSPublisher broadcasts envelopes through a NATS connection.
type NATSPublisher struct {
	client *natsclient.Client
}

// NewNATSPublisher wraps an already-constructed NATS client.
func NewNATSPublisher(client *natsclient.Client) *NATSPublisher {
	return &NATSPublisher{client: client}
}

func (p *NATSPublisher) Publish(subject string, env *wire.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return p.client.Publish(subject, data)
}

func (p *NATSPublisher) Close() error {
	return nil // connection lifetime is owned by the caller
}

// MemoryPublisher delivers envelopes to in-process subscriber channels.
// Used in tests and in degraded mode when no NATS server is reachable.
// Slow subscribers miss frames rather than stalling the pipeline.
type MemoryPublisher struct {
	mu     sync.RWMutex
	subs   map[string][]chan *wire.Envelope
	closed bool
}

// NewMemoryPublisher creates an in-process publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{subs: make(map[string][]chan *wire.Envelope)}
}

// Subscribe returns a channel receiving every envelope published to subject
// while the channel has room.
func (p *MemoryPublisher) Subscribe(subject string) <-chan *wire.Envelope {
	ch := make(chan *wire.Envelope, 64)
	p.mu.Lock()
	p.subs[subject] = append(p.subs[subject], ch)
	p.mu.Unlock()
	return ch
}

func (p *MemoryPublisher) Publish(subject string, env *wire.Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.WrapTransient(errors.ErrNotConnected, "fanout.MemoryPublisher", "Publish", "publish after close")
	}

	for _, ch := range p.subs[subject] {
		select {
		case ch <- env:
		default: // subscriber full, frame missed
		}
	}
	return nil
}

func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, chans := range p.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	p.subs = nil
	return nil
}
