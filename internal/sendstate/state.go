// Package sendstate tracks the lifecycle of optimistic sends, one machine
// per conversation.
package sendstate

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/opsms/internal/bus"
)

// State is the phase of the most recent send in a conversation.
type State string

const (
	Idle       State = "IDLE"
	Pending    State = "PENDING"
	Reconciled State = "RECONCILED"
	RolledBack State = "ROLLED_BACK"
)

var validTransitions = map[State][]State{
	Idle:       {Pending},
	Pending:    {Reconciled, RolledBack},
	Reconciled: {Pending},
	RolledBack: {Pending},
}

// Machine enforces send state transitions for a single key.
type Machine struct {
	mu      sync.RWMutex
	key     string
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Idle state. Transitions are published
// on b under key when b is non-nil.
func NewMachine(key string, b *bus.Bus) *Machine {
	return &Machine{key: key, current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Pending reports whether a send is in flight.
func (m *Machine) Pending() bool {
	return m.Current() == Pending
}

// Transition moves to a new state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid send transition from %s to %s", from, to)
	}
	m.current = to
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.MutationStateChanged,
			Key:       m.key,
			Timestamp: time.Now(),
			Payload:   Change{From: from, To: to},
		})
	}
	return nil
}

// Change is the payload of mutation.state_changed events.
type Change struct {
	From State
	To   State
}

// Registry hands out one Machine per key.
type Registry struct {
	mu       sync.Mutex
	machines map[string]*Machine
	bus      *bus.Bus
}

func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{machines: make(map[string]*Machine), bus: b}
}

// For returns the machine for key, creating it in the Idle state.
func (r *Registry) For(key string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[key]
	if !ok {
		m = NewMachine(key, r.bus)
		r.machines[key] = m
	}
	return m
}
