package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/message"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
)

// Options configures a BrokerLink.
type Options struct {
	Config       config.MQTTConfig
	Retry        link.RetryConfig
	CloseTimeout time.Duration

	// Outbound is the link's PendingQueue. Inbox receives every inbound
	// message. Both are owned by the bridge; New creates private ones when nil.
	Outbound *queue.Queue
	Inbox    *queue.Queue

	Emitter link.Emitter
	Logger  link.Logger
}

// BrokerLink owns one MQTT session: connect, subscribe, publish, and
// reconnect with backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are replayed in registration order on every connect,
//     before any queued publish is flushed.
type BrokerLink struct {
	name     string
	cfg      config.MQTTConfig
	outbound *queue.Queue
	inbox    *queue.Queue
	emitter  link.Emitter
	logger   link.Logger
	runner   *link.Runner

	newTransport transportFactory
	delivered    atomic.Uint64

	// failedID and failures track retries of the queue head.
	failedID string
	failures int

	// subs is the ordered subscription registry; active is the live
	// session, if any.
	subs   []subscription
	active *session
	subMu  sync.Mutex
}

// New creates a BrokerLink. It does not connect; call Run.
//
// Parameters:
//   - opts: MQTT configuration, retry policy, queues, event sink and logger
//
// Returns:
//   - *BrokerLink: Link ready to Run
//   - error: If the TLS material cannot be loaded
func New(opts Options) (*BrokerLink, error) {
	if _, err := buildClientOptions(opts.Config); err != nil {
		return nil, err
	}

	name := opts.Config.Name
	if name == "" {
		name = config.DefaultBrokerName
	}
	if opts.Emitter == nil {
		opts.Emitter = link.NopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = link.NopLogger{}
	}
	if opts.Outbound == nil {
		opts.Outbound = queue.New(queue.Config{Name: name})
	}
	if opts.Inbox == nil {
		opts.Inbox = queue.New(queue.Config{Name: "inbox"})
	}

	l := &BrokerLink{
		name:     name,
		cfg:      opts.Config,
		outbound: opts.Outbound,
		inbox:    opts.Inbox,
		emitter:  opts.Emitter,
		logger:   opts.Logger,
	}
	l.newTransport = newPahoFactory(func() (*pahomqtt.ClientOptions, error) {
		return buildClientOptions(l.cfg)
	})
	l.runner = link.NewRunner(link.RunnerConfig{
		Name:         name,
		Origin:       message.OriginBroker,
		Dialer:       l,
		Retry:        link.NewRetry(opts.Retry),
		Emitter:      opts.Emitter,
		Logger:       opts.Logger,
		CloseTimeout: opts.CloseTimeout,
	})

	return l, nil
}

// Name returns the link name.
func (l *BrokerLink) Name() string { return l.name }

// State returns the current connection state.
func (l *BrokerLink) State() link.State { return l.runner.State() }

// Since returns when the link entered its current state.
func (l *BrokerLink) Since() time.Time { return l.runner.Machine().Since() }

// Delivered returns how many queued messages the broker has accepted.
func (l *BrokerLink) Delivered() uint64 { return l.delivered.Load() }

// Retry exposes the link's retry state.
func (l *BrokerLink) Retry() *link.Retry { return l.runner.Retry() }

// Outbound returns the link's PendingQueue.
func (l *BrokerLink) Outbound() *queue.Queue { return l.outbound }

// Run starts the management loop and blocks until ctx is cancelled.
// Connection failures trigger backoff and another attempt; they are never
// returned.
func (l *BrokerLink) Run(ctx context.Context) error {
	return l.runner.Run(ctx)
}

// Dial connects a fresh client to the broker.
func (l *BrokerLink) Dial(ctx context.Context) (link.Session, error) {
	t, err := l.newTransport()
	if err != nil {
		return nil, err
	}
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	l.logger.Debug("broker connected", "link", l.name, "broker", brokerURL(l.cfg.Broker))
	return &session{link: l, t: t}, nil
}

// session is one connected broker client.
type session struct {
	link      *BrokerLink
	t         transport
	closeOnce sync.Once
}

// Serve replays subscriptions, announces the online status, then runs the
// send loop until the connection is lost or ctx is cancelled.
func (s *session) Serve(ctx context.Context) error {
	l := s.link
	if err := l.replay(s); err != nil {
		return err
	}

	if l.cfg.StatusTopic != "" {
		if err := s.t.Publish(l.cfg.StatusTopic, byte(l.cfg.QoS), true, buildOnlinePayload(l.cfg.Broker.ClientID)); err != nil {
			l.logger.Warn("online status publish failed", "link", l.name, "error", err)
		}
	}

	return l.sendLoop(ctx, s)
}

// Close publishes the graceful offline status when time allows, then
// disconnects with the remaining time as quiesce period.
func (s *session) Close(timeout time.Duration) error {
	s.closeOnce.Do(func() {
		l := s.link
		l.detach(s)
		if timeout > 0 && l.cfg.StatusTopic != "" {
			if err := s.t.Publish(l.cfg.StatusTopic, byte(l.cfg.QoS), true, buildOfflinePayload(l.cfg.Broker.ClientID)); err != nil {
				l.logger.Debug("offline status publish failed", "link", l.name, "error", err)
			}
		}
		s.t.Disconnect(timeout)
	})
	return nil
}

func (s *session) subscribe(topic string, qos byte) error {
	return s.t.Subscribe(topic, qos, s.link.receive)
}

func (s *session) publish(m message.Message) error {
	return s.t.Publish(m.Channel(), m.QoS(), m.Retained(), m.Payload())
}

// receive turns a broker delivery into a Message in the bridge inbox.
// It runs on the paho router goroutine and never blocks.
func (l *BrokerLink) receive(topic string, payload []byte, qos byte, retained bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("MQTT handler panic recovered", "link", l.name, "topic", topic, "panic", r)
		}
	}()

	m := message.New(message.OriginBroker, l.name, topic, payload).WithDelivery(qos, retained)
	l.inbox.Push(m)
}

func (l *BrokerLink) emitError(err error, channel string) {
	l.emitter.Emit(link.Event{
		Type:    link.EventError,
		Link:    l.name,
		Origin:  message.OriginBroker,
		Channel: channel,
		Err:     err,
		Time:    time.Now().UTC(),
	})
}

func (l *BrokerLink) detach(s *session) {
	l.subMu.Lock()
	if l.active == s {
		l.active = nil
	}
	l.subMu.Unlock()
}

// HealthCheck reports whether the broker session is live.
func (l *BrokerLink) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if l.State() != link.StateConnected {
		return ErrNotConnected
	}
	return nil
}
