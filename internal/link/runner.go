package link

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/message"
)

// defaultCloseTimeout bounds a graceful close on shutdown.
const defaultCloseTimeout = 5 * time.Second

// Session is one established connection.
type Session interface {
	// Serve runs the connection until it is lost, the peer closes it, or
	// ctx is cancelled. A nil return means the peer closed cleanly.
	Serve(ctx context.Context) error

	// Close shuts the connection down: a graceful close within timeout,
	// then forced termination of the underlying resource.
	Close(timeout time.Duration) error
}

// Dialer opens sessions.
type Dialer interface {
	// Dial establishes a session. For server-role links it waits for a peer.
	Dial(ctx context.Context) (Session, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Name         string
	Origin       message.Origin
	Dialer       Dialer
	Retry        *Retry
	Machine      *StateMachine
	Emitter      Emitter
	Logger       Logger
	CloseTimeout time.Duration

	// Passive marks a Dialer that waits for inbound peers instead of
	// connecting out. A passive link listens again as soon as a session
	// ends; backoff applies only to its Dial failures.
	Passive bool
}

// Runner drives a link's connection-management loop:
// dial, serve, and back off, until the context is cancelled.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a runner. Missing optional fields get defaults.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Emitter == nil {
		cfg.Emitter = NopEmitter{}
	}
	if cfg.Machine == nil {
		cfg.Machine = NewStateMachine(cfg.Name, cfg.Origin, cfg.Emitter)
	}
	if cfg.Retry == nil {
		cfg.Retry = NewRetry(RetryConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	return &Runner{cfg: cfg}
}

// State returns the current connection state.
func (r *Runner) State() State { return r.cfg.Machine.State() }

// Machine returns the runner's state machine.
func (r *Runner) Machine() *StateMachine { return r.cfg.Machine }

// Retry returns the runner's retry state.
func (r *Runner) Retry() *Retry { return r.cfg.Retry }

// Run blocks until ctx is cancelled. Connection failures are retried
// indefinitely and never returned.
func (r *Runner) Run(ctx context.Context) error {
	log := r.cfg.Logger
	for {
		if ctx.Err() != nil {
			return nil
		}

		r.transition(StateConnecting, nil)
		sess, err := r.cfg.Dialer.Dial(ctx)
		if err != nil {
			r.transition(StateDisconnected, err)
			if ctx.Err() != nil {
				return nil
			}
			attempt := r.cfg.Retry.Attempts() + 1
			log.Warn("connect failed", "link", r.cfg.Name, "attempt", attempt, "error", err)
			if r.cfg.Retry.Wait(ctx) != nil {
				return nil
			}
			continue
		}

		r.transition(StateConnected, nil)
		log.Info("link connected", "link", r.cfg.Name)

		stable := time.AfterFunc(r.cfg.Retry.StableAfter(), func() {
			if r.cfg.Machine.State() == StateConnected {
				r.cfg.Retry.Reset()
			}
		})
		serveErr := sess.Serve(ctx)
		stable.Stop()

		if ctx.Err() != nil {
			r.shutdown(sess)
			return nil
		}

		//nolint:errcheck // the session is already gone; release what is left
		sess.Close(0)
		r.transition(StateDisconnected, serveErr)
		if serveErr != nil {
			log.Warn("link lost", "link", r.cfg.Name, "error", serveErr)
		} else {
			log.Info("link closed by peer", "link", r.cfg.Name)
		}

		if r.cfg.Passive {
			r.cfg.Retry.Reset()
			continue
		}
		if r.cfg.Retry.Wait(ctx) != nil {
			return nil
		}
	}
}

// shutdown performs the coordinated close: Connected → Closing, graceful
// close within the timeout, then Disconnected.
func (r *Runner) shutdown(sess Session) {
	r.transition(StateClosing, nil)
	if err := sess.Close(r.cfg.CloseTimeout); err != nil && !errors.Is(err, ErrClosed) {
		r.cfg.Logger.Warn("close failed", "link", r.cfg.Name, "error", err)
	}
	r.transition(StateDisconnected, nil)
	r.cfg.Logger.Info("link stopped", "link", r.cfg.Name)
}

func (r *Runner) transition(to State, cause error) {
	if err := r.cfg.Machine.Transition(to, cause); err != nil {
		r.cfg.Logger.Error("state transition rejected", "link", r.cfg.Name, "error", err)
	}
}
