package models

import "fmt"

// State is a render job's position in the pipeline.
type State string

const (
	StatePending   State = "pending"
	StateResolving State = "resolving"
	StateBuilding  State = "building"
	StateCompiling State = "compiling"
	StateExecuting State = "executing"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

var next = map[State]State{
	StatePending:   StateResolving,
	StateResolving: StateBuilding,
	StateBuilding:  StateCompiling,
	StateCompiling: StateExecuting,
	StateExecuting: StateSucceeded,
}

func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// CanTransition reports whether a job in s may move to to. Any active state
// may fail; only Executing may time out.
func (s State) CanTransition(to State) bool {
	if s.IsTerminal() {
		return false
	}
	switch to {
	case StateFailed:
		return true
	case StateTimedOut:
		return s == StateExecuting
	default:
		return next[s] == to
	}
}

// Lifecycle tracks a job's state and the path it took.
type Lifecycle struct {
	current State
	history []State
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{current: StatePending, history: []State{StatePending}}
}

func (l *Lifecycle) Current() State { return l.current }

// History returns the visited states in order.
func (l *Lifecycle) History() []State {
	out := make([]State, len(l.history))
	copy(out, l.history)
	return out
}

func (l *Lifecycle) Transition(to State) error {
	if !l.current.CanTransition(to) {
		return fmt.Errorf("invalid state transition %s -> %s", l.current, to)
	}
	l.current = to
	l.history = append(l.history, to)
	return nil
}
