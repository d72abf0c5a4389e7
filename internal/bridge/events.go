package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/message"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
)

// defaultEventBuffer is used when NewDispatcher gets a non-positive size.
const defaultEventBuffer = 1024

// Dispatcher fans link and bridge events out to observers on a single
// goroutine, so emitters (paho callbacks, queue drops, the router) never
// block on a slow observer.
//
// Thread Safety: Emit is safe from any goroutine. Subscribe before Run.
type Dispatcher struct {
	events    chan link.Event
	observers []link.Emitter
	mu        sync.RWMutex
	dropped   atomic.Uint64
	logger    link.Logger
}

// EventBufferSize returns a dispatcher buffer large enough to hold one drop
// event for every message the inbox and all outbound queues can hold at
// once, so a TTL sweep of full queues is not itself lost.
func EventBufferSize(cfg *config.Config) int {
	n := cfg.Queue.InboxCapacity + cfg.Queue.Capacity
	for _, s := range cfg.Sockets {
		n += s.QueueCapacity
	}
	return max(n, defaultEventBuffer)
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(buffer int, logger link.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	if logger == nil {
		logger = link.NopLogger{}
	}
	return &Dispatcher{
		events: make(chan link.Event, buffer),
		logger: logger,
	}
}

// Subscribe adds an observer.
func (d *Dispatcher) Subscribe(o link.Emitter) {
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
}

// Emit queues an event. It never blocks: when the buffer is full the event
// is discarded and counted in Dropped, which the bridge reports as
// events_lost. The first loss is logged.
func (d *Dispatcher) Emit(e link.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case d.events <- e:
	default:
		if d.dropped.Add(1) == 1 {
			d.logger.Warn("event buffer full, dropping events", "buffer", cap(d.events), "event", e.Type.String())
		}
	}
}

// Dropped returns how many events were discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run delivers events until ctx is cancelled, then drains what is still
// buffered and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-d.events:
					d.deliver(e)
				default:
					return nil
				}
			}
		case e := <-d.events:
			d.deliver(e)
		}
	}
}

func (d *Dispatcher) deliver(e link.Event) {
	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()

	for _, o := range observers {
		d.safeEmit(o, e)
	}
}

// safeEmit isolates the dispatcher from a panicking observer.
func (d *Dispatcher) safeEmit(o link.Emitter, e link.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event observer panicked", "event", e.Type.String(), "panic", r)
		}
	}()
	o.Emit(e)
}

// NewQueue creates a PendingQueue whose drops are reported to emitter as
// EventOverflow or EventExpired, attributed to the queue's link.
func NewQueue(name string, capacity int, ttl time.Duration, emitter link.Emitter) *queue.Queue {
	return queue.New(queue.Config{
		Name:     name,
		Capacity: capacity,
		TTL:      ttl,
		OnDrop: func(q string, m message.Message, reason queue.DropReason) {
			typ := link.EventOverflow
			if reason == queue.DropExpired {
				typ = link.EventExpired
			}
			emitter.Emit(link.Event{
				Type:      typ,
				Link:      q,
				Origin:    m.Origin(),
				Channel:   m.Channel(),
				MessageID: m.ID(),
				Time:      time.Now().UTC(),
			})
		},
	})
}

// EventLogger writes events to a logger. Unroutable messages are logged by
// the router itself.
type EventLogger struct {
	Logger link.Logger
}

// Emit logs e.
func (l EventLogger) Emit(e link.Event) {
	switch e.Type {
	case link.EventStateChanged:
		args := []any{"link", e.Link, "from", e.From.String(), "to", e.To.String()}
		if e.Err != nil {
			l.Logger.Warn("link state changed", append(args, "error", e.Err)...)
			return
		}
		l.Logger.Info("link state changed", args...)
	case link.EventError:
		l.Logger.Warn("link error", "link", e.Link, "channel", e.Channel, "error", e.Err)
	case link.EventOverflow, link.EventExpired, link.EventDuplicate:
		l.Logger.Debug("message dropped", "reason", e.Type.String(), "link", e.Link, "channel", e.Channel, "message_id", e.MessageID)
	}
}
