package pipeline

import (
	"github.com/cockroachdb/errors"
)

// State of one entity run
type State string

const (
	StateIdle         State = "Idle"
	StateExtracting   State = "Extracting"
	StateTransforming State = "Transforming"
	StateValidating   State = "Validating"
	StateLoading      State = "Loading"
	StateArchiving    State = "Archiving"
	StateDone         State = "Done"
	StateFailed       State = "Failed"
)

var transitions = map[State][]State{
	StateIdle:         {StateExtracting},
	StateExtracting:   {StateTransforming},
	StateTransforming: {StateValidating, StateLoading},
	StateValidating:   {StateLoading},
	StateLoading:      {StateArchiving, StateDone},
	StateArchiving:    {StateDone},
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether s may move to next. Any non-terminal state
// may fail.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// stateMachine records the path of one run
type stateMachine struct {
	current State
	history []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateIdle, history: []State{StateIdle}}
}

func (m *stateMachine) to(next State) error {
	if !m.current.CanTransition(next) {
		return errors.AssertionFailedf("invalid run transition %s -> %s", m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}
