package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/message"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
)

// Unroutable messages are logged at most this often; the rest are counted
// and reported with the next log line.
const (
	unroutableLogEvery = 10 * time.Second
	unroutableLogBurst = 5
)

// Link is a connection-managing component the bridge routes between.
type Link interface {
	Name() string
	State() link.State
	Outbound() *queue.Queue
	Run(ctx context.Context) error
}

// Broker is the MQTT side of the bridge.
type Broker interface {
	Link
	Subscribe(filter string, qos byte) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Counters receives router counts. Satisfied by *metrics.Metrics.
type Counters interface {
	Received(link string)
	Forwarded(from, to string)
}

// SensorSink receives numeric readings produced by transforms.
type SensorSink interface {
	RecordSensor(source, key string, value float64, ts time.Time)
}

// Options holds everything the bridge needs.
type Options struct {
	Config  *config.Config
	Broker  Broker
	Sockets []Link

	// Inbox is the queue every link pushes received messages into.
	Inbox *queue.Queue

	// Events is the dispatcher the links were built with. The bridge
	// emits unroutable and duplicate events through it and runs it.
	Events *Dispatcher

	Counters Counters
	Sensors  SensorSink
	Logger   link.Logger
}

// Bridge routes messages between the broker and the socket links.
//
// It holds no connection state: it drains the inbox, matches each message
// against the routing tables and pushes it onto destination queues. It
// never performs I/O and never blocks on a destination.
//
// Thread Safety: Run must be called once. Stats and Links are safe for
// concurrent use.
type Bridge struct {
	cfg     *config.Config
	broker  Broker
	sockets []Link
	links   map[string]Link
	inbox   *queue.Queue
	events  *Dispatcher
	routes  []Route
	ledger  *ledger

	counters Counters
	sensors  SensorSink
	logger   link.Logger

	limiter    *rate.Limiter
	suppressed atomic.Uint64

	received   atomic.Uint64
	forwarded  atomic.Uint64
	unroutable atomic.Uint64
	duplicates atomic.Uint64
	skipped    atomic.Uint64
	heartbeats atomic.Uint64
}

// Stats are the router's lifetime counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Forwarded  uint64 `json:"forwarded"`
	Unroutable uint64 `json:"unroutable"`
	Duplicates uint64 `json:"duplicates"`
	Skipped    uint64 `json:"skipped"`
	Heartbeats uint64 `json:"heartbeats"`
	EventsLost uint64 `json:"events_lost"`
	InboxDepth int    `json:"inbox_depth"`
}

// New builds a bridge and registers the broker subscriptions required by
// the broker_to_socket routes.
//
// Returns:
//   - *Bridge: ready to Run
//   - error: ErrNoBroker, ErrDuplicateLink, or ErrUnknownLink when a route
//     names a link that was not passed in
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Broker == nil {
		return nil, ErrNoBroker
	}
	if opts.Logger == nil {
		opts.Logger = link.NopLogger{}
	}
	if opts.Events == nil {
		opts.Events = NewDispatcher(0, opts.Logger)
	}
	if opts.Inbox == nil {
		opts.Inbox = NewQueue("inbox", opts.Config.Queue.InboxCapacity, 0, opts.Events)
	}

	b := &Bridge{
		cfg:      opts.Config,
		broker:   opts.Broker,
		sockets:  opts.Sockets,
		links:    map[string]Link{opts.Broker.Name(): opts.Broker},
		inbox:    opts.Inbox,
		events:   opts.Events,
		routes:   CompileRoutes(opts.Config),
		ledger:   newLedger(opts.Config.Queue.LedgerSize),
		counters: opts.Counters,
		sensors:  opts.Sensors,
		logger:   opts.Logger,
		limiter:  rate.NewLimiter(rate.Every(unroutableLogEvery), unroutableLogBurst),
	}

	for _, s := range opts.Sockets {
		if _, dup := b.links[s.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLink, s.Name())
		}
		b.links[s.Name()] = s
	}
	for _, r := range b.routes {
		for _, t := range r.Targets {
			if _, ok := b.links[t.Link]; !ok {
				return nil, fmt.Errorf("%w: route %s %q targets %q", ErrUnknownLink, r.Direction, r.From, t.Link)
			}
		}
	}

	qos := byte(opts.Config.MQTT.QoS)
	for _, filter := range Filters(b.routes) {
		if err := b.broker.Subscribe(filter, qos); err != nil {
			return nil, fmt.Errorf("subscribing %s: %w", filter, err)
		}
	}

	return b, nil
}

// Routes returns the compiled routing tables.
func (b *Bridge) Routes() []Route { return b.routes }

// Links returns the broker followed by the socket links.
func (b *Bridge) Links() []Link {
	out := make([]Link, 0, len(b.sockets)+1)
	out = append(out, b.broker)
	return append(out, b.sockets...)
}

// Events returns the bridge's event dispatcher.
func (b *Bridge) Events() *Dispatcher { return b.events }

// Stats returns the router counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:   b.received.Load(),
		Forwarded:  b.forwarded.Load(),
		Unroutable: b.unroutable.Load(),
		Duplicates: b.duplicates.Load(),
		Skipped:    b.skipped.Load(),
		Heartbeats: b.heartbeats.Load(),
		EventsLost: b.events.Dropped(),
		InboxDepth: b.inbox.Len(),
	}
}

// Run starts every link, the router and the heartbeat, and blocks until
// ctx is cancelled and every link has shut down. The event dispatcher
// outlives the links so their final state changes are delivered.
func (b *Bridge) Run(ctx context.Context) error {
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		//nolint:errcheck // Dispatcher.Run only returns nil
		b.events.Run(dispatchCtx)
		close(dispatchDone)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range b.Links() {
		g.Go(func() error { return l.Run(gctx) })
	}
	g.Go(func() error { return b.routeLoop(gctx) })
	if b.cfg.Heartbeat.Enabled {
		g.Go(func() error { return b.heartbeatLoop(gctx) })
	}

	b.logger.Info("bridge started", "links", len(b.links), "routes", len(b.routes))
	err := g.Wait()

	stopDispatch()
	<-dispatchDone
	b.logger.Info("bridge stopped")
	return err
}

// routeLoop drains the inbox until ctx is cancelled.
func (b *Bridge) routeLoop(ctx context.Context) error {
	for {
		for {
			m, ok := b.inbox.Pop()
			if !ok {
				break
			}
			b.Route(m)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-b.inbox.Ready():
		}
	}
}

// Route delivers one received message to every matching destination
// queue. It never blocks: destination queues drop their oldest entry when
// full.
func (b *Bridge) Route(m message.Message) {
	b.received.Add(1)
	if b.counters != nil {
		b.counters.Received(m.Link())
	}

	matched := false
	for _, r := range b.routes {
		if !r.Matches(m) {
			continue
		}
		matched = true

		payload, readings, ok, err := transform(r.Transform, m.Payload())
		if err != nil {
			b.logger.Warn("transform failed", "transform", r.Transform, "link", m.Link(), "error", err)
			continue
		}
		if !ok {
			b.skipped.Add(1)
			continue
		}
		b.record(m, readings)

		out := m
		if r.Transform != config.TransformNone {
			out = m.WithPayload(payload)
		}
		for _, t := range r.Targets {
			b.enqueue(out, r, t)
		}
	}

	if !matched {
		b.reportUnroutable(m)
	}
}

// enqueue pushes m onto the target's queue once per destination.
func (b *Bridge) enqueue(m message.Message, r Route, t Target) {
	dest := b.links[t.Link]
	channel := t.Channel
	if channel == "" {
		channel = m.Channel()
	}

	// A socket channel used as the topic may carry MQTT wildcards.
	if r.Direction == SocketToBroker {
		if err := mqtt.ValidateTopic(channel); err != nil {
			b.logger.Warn("dropping message with invalid broker topic", "link", m.Link(), "topic", channel, "error", err)
			b.events.Emit(link.Event{
				Type:      link.EventError,
				Link:      t.Link,
				Origin:    m.Origin(),
				Channel:   channel,
				MessageID: m.ID(),
				Err:       err,
			})
			return
		}
	}

	if !b.ledger.claim(m.ID(), t.Link+"\x00"+channel) {
		b.duplicates.Add(1)
		b.events.Emit(link.Event{
			Type:      link.EventDuplicate,
			Link:      t.Link,
			Origin:    m.Origin(),
			Channel:   channel,
			MessageID: m.ID(),
		})
		return
	}

	out := m.Retarget(channel)
	if r.Direction == SocketToBroker {
		out = out.WithDelivery(r.QoS, r.Retain)
	}
	dest.Outbound().Push(out)

	b.forwarded.Add(1)
	if b.counters != nil {
		b.counters.Forwarded(m.Link(), t.Link)
	}
}

func (b *Bridge) record(m message.Message, readings []Reading) {
	if b.sensors == nil {
		return
	}
	for _, r := range readings {
		b.sensors.RecordSensor(m.Link(), r.Key, r.Value, m.Timestamp())
	}
}

func (b *Bridge) reportUnroutable(m message.Message) {
	b.unroutable.Add(1)
	b.events.Emit(link.Event{
		Type:      link.EventUnroutable,
		Link:      m.Link(),
		Origin:    m.Origin(),
		Channel:   m.Channel(),
		MessageID: m.ID(),
	})

	if !b.limiter.Allow() {
		b.suppressed.Add(1)
		return
	}
	b.logger.Warn("unroutable message dropped",
		"link", m.Link(),
		"channel", m.Channel(),
		"suppressed", b.suppressed.Swap(0))
}

// heartbeatLoop publishes the gateway heartbeat through the broker queue.
// The first beat is sent one interval after start, with counter 1.
func (b *Bridge) heartbeatLoop(ctx context.Context) error {
	hb := b.cfg.Heartbeat
	topic := b.cfg.HeartbeatTopic()
	ticker := time.NewTicker(hb.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := b.heartbeats.Add(1)
			payload := HeartbeatPayload(b.cfg.Gateway.ID, n)
			if err := b.broker.Publish(topic, payload, byte(b.cfg.MQTT.QoS), false); err != nil {
				b.logger.Warn("heartbeat publish failed", "topic", topic, "error", err)
			}
		}
	}
}
