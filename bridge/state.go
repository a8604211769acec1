// Package bridge wires the pipeline together: the gateway side accepts
// frames from virtual ECUs, validates, fans out, decodes, maps, and
// persists them; the ECU side simulates signals and transmits frames.
package bridge

import "sync/atomic"

// State is the coarse lifecycle state of a pipeline component.
type State int32

// Lifecycle states.
const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stateMachine holds the current state atomically. Transitions are
// compare-and-swap so concurrent lifecycle calls cannot double-run.
type stateMachine struct {
	state atomic.Int32
}

func (m *stateMachine) current() State {
	return State(m.state.Load())
}

func (m *stateMachine) transition(from, to State) bool {
	return m.state.CompareAndSwap(int32(from), int32(to))
}

func (m *stateMachine) set(to State) {
	m.state.Store(int32(to))
}
