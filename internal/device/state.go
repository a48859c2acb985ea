package device

import (
	"fmt"

	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

// stateMachine drives the persisted operational state.
//
//	Idle --enter--> Active --exit--> Idle
//	any  --SetState(Error)--> Error --SetState(Idle)--> Idle
type stateMachine struct {
	reg Registry
}

// current returns the active state.
func (m stateMachine) current() (registry.State, error) {
	return m.reg.State()
}

// enter moves Idle to Active.
func (m stateMachine) enter(from registry.State) error {
	switch from {
	case registry.StateIdle:
		return m.reg.SetState(registry.StateActive)
	case registry.StateActive:
		return ErrDeviceBusy
	case registry.StateError:
		return ErrDeviceFaulted
	default:
		return fmt.Errorf("%w: %q", registry.ErrInvalidState, from)
	}
}

// exit returns to Idle.
func (m stateMachine) exit() error {
	return m.reg.SetState(registry.StateIdle)
}
