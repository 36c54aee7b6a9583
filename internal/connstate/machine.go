// Package connstate tracks the live feed's connectivity for the UI: at most
// three states and a retry-attempt counter that resets on every successful
// connection.
package connstate

import (
	"fmt"
	"slices"
	"sync"

	"github.com/civicgrid/complaintd/internal/bus"
)

// State is the connectivity state of the live feed.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

// validTransitions defines allowed connectivity transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Disconnected},
}

// Change is the payload published on the bus for every transition.
type Change struct {
	From    State
	To      State
	Attempt int
}

// Machine tracks the feed connectivity state and the reconnect attempt
// counter. All methods are safe for concurrent use.
type Machine struct {
	mu      sync.RWMutex
	current State
	attempt int
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Disconnected with attempt 0.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Disconnected, bus: b}
}

// Current returns the current connectivity state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Attempt returns the number of consecutive failed connection attempts.
func (m *Machine) Attempt() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

// Transition moves to a new state, resetting the attempt counter on
// Connected. Returns an error and leaves the state unchanged if the
// transition is not in the table.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	if !slices.Contains(validTransitions[m.current], to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid connectivity transition %s -> %s", from, to)
	}
	from := m.current
	m.current = to
	if to == Connected {
		m.attempt = 0
	}
	attempt := m.attempt
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish("conn.status_changed", Change{From: from, To: to, Attempt: attempt})
	}
	return nil
}

// BumpAttempt increments the retry counter and returns the value the next
// connection attempt should use for its backoff exponent.
func (m *Machine) BumpAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	return m.attempt
}
