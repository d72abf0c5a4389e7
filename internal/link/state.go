package link

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/message"
)

// State is the connection state of a link.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the state name used in logs, metrics and the health API.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// legalTransitions lists, for each state, the states it may move to.
var legalTransitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateDisconnected},
	StateConnected:    {StateClosing, StateDisconnected},
	StateClosing:      {StateDisconnected},
}

// CanTransition reports whether from → to is part of the lifecycle graph.
func CanTransition(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateMachine holds one link's connection state and reports every change.
//
// Thread Safety: State may be read from any goroutine. Transition must only
// be called by the owning link's management loop.
type StateMachine struct {
	name    string
	origin  message.Origin
	emitter Emitter

	state atomic.Int32
	since atomic.Int64 // unix nanos of the last transition
}

// NewStateMachine creates a machine in StateDisconnected.
func NewStateMachine(name string, origin message.Origin, emitter Emitter) *StateMachine {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	m := &StateMachine{name: name, origin: origin, emitter: emitter}
	m.since.Store(time.Now().UnixNano())
	return m
}

// State returns the current state.
func (m *StateMachine) State() State {
	return State(m.state.Load())
}

// Since returns when the current state was entered.
func (m *StateMachine) Since() time.Time {
	return time.Unix(0, m.since.Load())
}

// Transition moves to the given state and emits EventStateChanged. cause is
// attached to the event; for a transition to StateDisconnected a nil cause
// means a clean close. Illegal transitions leave the state untouched.
func (m *StateMachine) Transition(to State, cause error) error {
	from := m.State()
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s (%s)", ErrIllegalTransition, from, to, m.name)
	}
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: concurrent change from %s (%s)", ErrIllegalTransition, from, m.name)
	}
	now := time.Now()
	m.since.Store(now.UnixNano())

	m.emitter.Emit(Event{
		Type:   EventStateChanged,
		Link:   m.name,
		Origin: m.origin,
		From:   from,
		To:     to,
		Err:    cause,
		Time:   now,
	})
	return nil
}
