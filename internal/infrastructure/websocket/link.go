package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/credentials"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/message"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
)

// Options configures a SocketLink.
type Options struct {
	Config config.SocketConfig
	Retry  link.RetryConfig

	// Outbound is the link's PendingQueue. Inbox receives every inbound
	// message. Both are owned by the bridge; New creates private ones when nil.
	Outbound *queue.Queue
	Inbox    *queue.Queue

	// Credentials supplies the bearer token when auth.source is credentials.
	Credentials credentials.Provider

	Emitter link.Emitter
	Logger  link.Logger
}

// SocketLink owns one WebSocket session in the client or server role.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - In the server role ServeHTTP may be called concurrently; only one
//     peer is admitted at a time.
type SocketLink struct {
	name     string
	cfg      config.SocketConfig
	codec    codec
	outbound *queue.Queue
	inbox    *queue.Queue
	creds    credentials.Provider
	emitter  link.Emitter
	logger   link.Logger
	runner   *link.Runner
	dialer   *ws.Dialer

	delivered atomic.Uint64

	// Server role hand-off. listening is true while Dial waits for a peer;
	// peer is true from admission until the session closes.
	mu        sync.Mutex
	listening bool
	peer      bool
	accepted  chan *ws.Conn
}

// New creates a SocketLink. It does not connect; call Run.
func New(opts Options) (*SocketLink, error) {
	cfg := opts.Config
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: link name is required", ErrDialFailed)
	}
	if opts.Emitter == nil {
		opts.Emitter = link.NopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = link.NopLogger{}
	}
	if opts.Outbound == nil {
		opts.Outbound = queue.New(queue.Config{Name: cfg.Name, Capacity: cfg.QueueCapacity})
	}
	if opts.Inbox == nil {
		opts.Inbox = queue.New(queue.Config{Name: "inbox"})
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.IdleTimeout <= cfg.KeepAlive {
		cfg.IdleTimeout = 3 * cfg.KeepAlive
	}
	if cfg.Channel == "" {
		cfg.Channel = cfg.Name
	}

	l := &SocketLink{
		name:     cfg.Name,
		cfg:      cfg,
		codec:    codec{framing: cfg.Framing, defaultChannel: cfg.Channel},
		outbound: opts.Outbound,
		inbox:    opts.Inbox,
		creds:    opts.Credentials,
		emitter:  opts.Emitter,
		logger:   opts.Logger,
		accepted: make(chan *ws.Conn, 1),
	}

	if cfg.Role != config.RoleServer {
		dialer, err := newDialer(cfg)
		if err != nil {
			return nil, err
		}
		l.dialer = dialer
	}

	l.runner = link.NewRunner(link.RunnerConfig{
		Name:         cfg.Name,
		Origin:       message.OriginSocket,
		Dialer:       l,
		Retry:        link.NewRetry(opts.Retry),
		Emitter:      opts.Emitter,
		Logger:       opts.Logger,
		CloseTimeout: cfg.CloseTimeout,
		Passive:      cfg.Role == config.RoleServer,
	})

	return l, nil
}

// Name returns the link name.
func (l *SocketLink) Name() string { return l.name }

// Role returns client or server.
func (l *SocketLink) Role() string { return l.cfg.Role }

// Path returns the HTTP path served in the server role.
func (l *SocketLink) Path() string { return l.cfg.Path }

// State returns the current connection state.
func (l *SocketLink) State() link.State { return l.runner.State() }

// Since returns when the link entered its current state.
func (l *SocketLink) Since() time.Time { return l.runner.Machine().Since() }

// Delivered returns how many queued messages were written to a peer.
func (l *SocketLink) Delivered() uint64 { return l.delivered.Load() }

// Retry exposes the link's retry state.
func (l *SocketLink) Retry() *link.Retry { return l.runner.Retry() }

// Outbound returns the link's PendingQueue.
func (l *SocketLink) Outbound() *queue.Queue { return l.outbound }

// Run starts the management loop and blocks until ctx is cancelled.
func (l *SocketLink) Run(ctx context.Context) error {
	return l.runner.Run(ctx)
}

// Dial connects to the peer (client role) or waits for one (server role).
func (l *SocketLink) Dial(ctx context.Context) (link.Session, error) {
	if l.cfg.Role == config.RoleServer {
		return l.accept(ctx)
	}
	return l.connect(ctx)
}

// Send enqueues a payload for the peer. An empty channel means the link's
// default channel. A full queue drops its oldest entry.
func (l *SocketLink) Send(channel string, payload []byte) error {
	if channel == "" {
		channel = l.cfg.Channel
	}
	if channel == "" {
		return ErrInvalidChannel
	}
	l.outbound.Push(message.New(message.OriginLocal, l.name, channel, payload))
	return nil
}

// receive decodes a frame into the bridge inbox.
func (l *SocketLink) receive(frame []byte) error {
	channel, payload, err := l.codec.decode(frame)
	if err != nil {
		return err
	}
	l.inbox.Push(message.New(message.OriginSocket, l.name, channel, payload))
	return nil
}

func (l *SocketLink) emitError(err error) {
	l.emitter.Emit(link.Event{
		Type:   link.EventError,
		Link:   l.name,
		Origin: message.OriginSocket,
		Err:    err,
		Time:   time.Now().UTC(),
	})
}

func (l *SocketLink) releasePeer() {
	l.mu.Lock()
	l.peer = false
	l.mu.Unlock()
}
