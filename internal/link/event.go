package link

import (
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/message"
)

// EventType classifies a link or bridge event.
type EventType int

const (
	// EventStateChanged reports a ConnectionState transition.
	EventStateChanged EventType = iota + 1

	// EventOverflow reports a message dropped because a queue was full.
	EventOverflow

	// EventExpired reports a message dropped because it outlived the queue TTL.
	EventExpired

	// EventUnroutable reports a received message with no matching route.
	EventUnroutable

	// EventDuplicate reports a repeated enqueue rejected by the at-most-once ledger.
	EventDuplicate

	// EventError reports a non-fatal failure that did not change state.
	EventError
)

// String returns the event name used in logs, metrics and the journal.
func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventOverflow:
		return "overflow"
	case EventExpired:
		return "expired"
	case EventUnroutable:
		return "unroutable"
	case EventDuplicate:
		return "duplicate"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is an observable lifecycle or delivery event.
type Event struct {
	Type   EventType
	Link   string
	Origin message.Origin

	// From and To are set for EventStateChanged.
	From State
	To   State

	// Channel and MessageID identify the message for delivery events.
	Channel   string
	MessageID string

	// Err carries the failure detail. For a transition to StateDisconnected
	// a nil Err means the peer closed cleanly.
	Err  error
	Time time.Time
}

// Clean reports whether a disconnect event was a clean close.
func (e Event) Clean() bool {
	return e.Type == EventStateChanged && e.To == StateDisconnected && e.Err == nil
}

// Emitter receives events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) { f(e) }

// NopEmitter discards events.
type NopEmitter struct{}

// Emit does nothing.
func (NopEmitter) Emit(Event) {}
