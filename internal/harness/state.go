package harness

import (
	"fmt"
	"sync"
)

// State is a step in a scenario run's lifecycle.
type State int

const (
	StateInit State = iota
	StateSessionStarted
	StateStateInjected
	StateInteracting
	StateDone
	StateFailed
	StateClosed
)

var stateNames = map[State]string{
	StateInit:           "INIT",
	StateSessionStarted: "SESSION_STARTED",
	StateStateInjected:  "STATE_INJECTED",
	StateInteracting:    "INTERACTING",
	StateDone:           "DONE",
	StateFailed:         "FAILED",
	StateClosed:         "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// next lists the forward transitions. FAILED is reachable from every state
// before DONE and is handled separately.
var next = map[State]State{
	StateInit:           StateSessionStarted,
	StateSessionStarted: StateStateInjected,
	StateStateInjected:  StateInteracting,
	StateInteracting:    StateDone,
	StateDone:           StateClosed,
	StateFailed:         StateClosed,
}

// Machine tracks a run's state and rejects illegal transitions.
type Machine struct {
	mu      sync.Mutex
	current State
	history []State
}

// NewMachine returns a machine in StateInit.
func NewMachine() *Machine {
	return &Machine{current: StateInit, history: []State{StateInit}}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns every state visited, in order.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// To moves to the given state.
func (m *Machine) To(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.allowed(s) {
		return fmt.Errorf("illegal run transition %s -> %s", m.current, s)
	}
	m.current = s
	m.history = append(m.history, s)
	return nil
}

func (m *Machine) allowed(s State) bool {
	if s == StateFailed {
		return m.current < StateDone
	}
	n, ok := next[m.current]
	return ok && n == s
}
