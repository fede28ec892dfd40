// Package status tracks the account/connection runtime state that gates
// ingestion and background work.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/helia-im/helia/internal/bus"
)

// State represents the client runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	LoggedOut    State = "LOGGED_OUT"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Ready, Reconnecting, AuthRequired, LoggedOut, Error},
	Ready:        {Reconnecting, AuthRequired, LoggedOut, Error},
	Reconnecting: {Connecting, Ready, LoggedOut, Error},
	LoggedOut:    {AuthRequired, Booting},
	Error:        {Booting},
}

// Machine tracks and enforces runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Authenticated reports whether valid credentials are held. The drain loop
// checks this per envelope and aborts the batch when it flips false; retry
// loops check it each iteration so logout terminates them.
func (m *Machine) Authenticated() bool {
	switch m.Current() {
	case Connecting, Ready, Reconnecting:
		return true
	}
	return false
}

// Transition attempts to move to a new state. Returns an error when the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: time.Now(),
			Payload:   Change{From: from, To: to},
		})
	}
	return nil
}

// Change is the payload for status change events.
type Change struct {
	From State
	To   State
}
