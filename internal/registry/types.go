package registry

import (
	"fmt"
	"strings"
)

// State is a device operational state.
type State string

// Operational states. Exactly one is active per device.
const (
	StateIdle   State = "Idle"
	StateActive State = "Active"
	StateError  State = "Error"
)

// ValidStates lists the operational states in document order.
var ValidStates = []State{StateIdle, StateActive, StateError}

// IsValid reports whether s is one of the three operational states.
// Matching is case-sensitive.
func (s State) IsValid() bool {
	for _, v := range ValidStates {
		if s == v {
			return true
		}
	}
	return false
}

// ParseState converts a name to a State, returning ErrInvalidState for
// anything outside ValidStates.
func ParseState(name string) (State, error) {
	s := State(name)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, name)
	}
	return s, nil
}

// ServiceDescriptor describes one configured capability of a device.
// Name is the unique key.
type ServiceDescriptor struct {
	Name           string `json:"name"`
	Input          string `json:"input"`
	Output         string `json:"output"`
	DriverFunction string `json:"driver_function"`
	Effector       string `json:"effector"`
}

// trimmed returns d with surrounding whitespace removed from every field,
// the form the persisted document decodes to.
func (d ServiceDescriptor) trimmed() ServiceDescriptor {
	return ServiceDescriptor{
		Name:           strings.TrimSpace(d.Name),
		Input:          strings.TrimSpace(d.Input),
		Output:         strings.TrimSpace(d.Output),
		DriverFunction: strings.TrimSpace(d.DriverFunction),
		Effector:       strings.TrimSpace(d.Effector),
	}
}

// StateFlags is the persisted OperationalStates set.
type StateFlags map[State]bool

// Active returns the single state whose flag is true.
// ok is false when zero or several flags are set.
func (f StateFlags) Active() (State, bool) {
	var found State
	n := 0
	for _, s := range ValidStates {
		if f[s] {
			found = s
			n++
		}
	}
	return found, n == 1
}
