// Package lifecycle stops and restarts a node around a snapshot.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIllegalTransition is returned for a state change the machine forbids.
var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// State of the managed process as seen by the controller.
type State int

const (
	Running State = iota
	Stopping
	Stopped
	Starting
	ForceKilled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case ForceKilled:
		return "force_killed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Running:     {Stopping},
	Stopping:    {Stopped, ForceKilled},
	ForceKilled: {Stopped},
	Stopped:     {Starting},
	Starting:    {Running},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine tracks the state of one instance and records the path it took.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []State
}

// NewMachine starts in initial.
func NewMachine(initial State) *Machine {
	return &Machine{state: initial, history: []State{initial}}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every state visited, oldest first.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// Transition moves to `to` or fails with ErrIllegalTransition.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}
