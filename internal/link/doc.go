// Package link holds the pieces shared by every connection-managing link:
// the connection state machine, the retry state, lifecycle events, and the
// Runner that drives a dial/serve/backoff loop.
//
// # Lifecycle
//
// Every link owns exactly one State, mutated only by its own Runner:
//
//	Disconnected → Connecting → Connected → Closing → Disconnected
//	                   │             │
//	                   └─────────────┴──────→ Disconnected (failure)
//
// Transitions outside that graph are rejected with ErrIllegalTransition.
// Reads of the state are atomic and may happen from any goroutine.
//
// # Failure Containment
//
// A Runner never returns connection errors to its caller. Dial failures
// and lost sessions become state transitions plus events, followed by a
// backoff sleep and another attempt. Run returns only when its context is
// cancelled.
package link
