package recovery

import (
	"errors"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
)

// State is an alias for domain.ComponentState for internal use.
type State = domain.ComponentState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.ComponentHealthy: {domain.ComponentUnhealthy, domain.ComponentRecovering},
	domain.ComponentUnhealthy: {
		domain.ComponentRecovering,
		domain.ComponentPermanentlyFailed,
		domain.ComponentHealthy,
	},
	domain.ComponentRecovering: {
		domain.ComponentHealthy,
		domain.ComponentUnhealthy,
	},
	domain.ComponentPermanentlyFailed: {domain.ComponentRecovering, domain.ComponentHealthy},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a component state change with metadata.
type Transition struct {
	Component string
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.ComponentHealthy:
		return "Healthy - operating normally"
	case domain.ComponentUnhealthy:
		return "Unhealthy - failed, recovery pending"
	case domain.ComponentRecovering:
		return "Recovering - recovery strategy running"
	case domain.ComponentPermanentlyFailed:
		return "Permanently failed - recovery budget exhausted"
	default:
		return "Unknown state"
	}
}
