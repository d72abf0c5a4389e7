package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/link"
)

// Defaults used when Config leaves a field zero.
const (
	defaultInterval       = 10 * time.Second
	defaultUnhealthyAfter = 60 * time.Second
)

// Source is a link the monitor samples.
type Source interface {
	Name() string
	State() link.State
	Since() time.Time
}

// Publisher sends the snapshot to the broker. Satisfied by the BrokerLink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Observer is called with every new snapshot, on the monitor goroutine.
type Observer func(Snapshot)

// Config holds monitor settings.
type Config struct {
	GatewayID      string
	Version        string
	Interval       time.Duration
	UnhealthyAfter time.Duration

	// Topic enables retained publishing when set.
	Topic string
	QoS   byte
}

// Monitor samples link states and maintains the aggregate Snapshot.
//
// Thread Safety: Snapshot and Emit are safe for concurrent use.
type Monitor struct {
	cfg       Config
	links     []Source
	publisher Publisher
	observers []Observer
	logger    link.Logger
	startTime time.Time
	now       func() time.Time

	// trigger requests an immediate sample; capacity 1 coalesces bursts.
	trigger chan struct{}

	mu        sync.RWMutex
	snapshot  Snapshot
	noneSince time.Time
}

// NewMonitor creates a monitor over the given links.
//
// Parameters:
//   - cfg: Intervals, gateway identity and optional publish topic
//   - links: Every link to sample, broker first by convention
//   - publisher: Used when cfg.Topic is set; may be nil
//   - logger: May be nil
//
// Returns:
//   - *Monitor: ready to Run
func NewMonitor(cfg Config, links []Source, publisher Publisher, logger link.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.UnhealthyAfter <= 0 {
		cfg.UnhealthyAfter = defaultUnhealthyAfter
	}
	if logger == nil {
		logger = link.NopLogger{}
	}
	now := time.Now()
	m := &Monitor{
		cfg:       cfg,
		links:     links,
		publisher: publisher,
		logger:    logger,
		startTime: now,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
		noneSince: now,
	}
	m.snapshot = Snapshot{Gateway: cfg.GatewayID, Version: cfg.Version, Status: StatusDegraded, Timestamp: now.UTC()}
	return m
}

// Observe registers an observer. Call before Run.
func (m *Monitor) Observe(o Observer) {
	m.observers = append(m.observers, o)
}

// Emit requests a sample on every state change. Monitor is a link.Emitter.
func (m *Monitor) Emit(e link.Event) {
	if e.Type != link.EventStateChanged {
		return
	}
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Snapshot returns the latest aggregate health.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.Links = append([]LinkHealth(nil), m.snapshot.Links...)
	return s
}

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Sample()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-m.trigger:
		}
		m.Sample()
	}
}

// Sample reads every link, recomputes the snapshot, notifies observers
// and publishes it when a topic is configured.
func (m *Monitor) Sample() Snapshot {
	now := m.now()
	links := make([]LinkHealth, len(m.links))
	anyConnected := false
	for i, l := range m.links {
		state := l.State()
		if state == link.StateConnected {
			anyConnected = true
		}
		links[i] = LinkHealth{Name: l.Name(), State: state.String(), Since: l.Since().UTC()}
	}

	m.mu.Lock()
	switch {
	case anyConnected:
		m.noneSince = time.Time{}
	case m.noneSince.IsZero():
		m.noneSince = now
	}
	status, reason := Evaluate(links, m.noneSince, now, m.cfg.UnhealthyAfter)
	prev := m.snapshot.Status
	m.snapshot = Snapshot{
		Gateway:       m.cfg.GatewayID,
		Version:       m.cfg.Version,
		Status:        status,
		Reason:        reason,
		Links:         links,
		Timestamp:     now.UTC(),
		UptimeSeconds: int64(now.Sub(m.startTime).Seconds()),
	}
	snap := m.snapshot
	m.mu.Unlock()

	if status != prev {
		m.logger.Info("health changed", "from", string(prev), "to", string(status), "reason", reason)
	}
	for _, o := range m.observers {
		o(snap)
	}
	m.publish(snap)
	return snap
}

func (m *Monitor) publish(s Snapshot) {
	if m.cfg.Topic == "" || m.publisher == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		m.logger.Error("marshalling health snapshot", "error", err)
		return
	}
	if err := m.publisher.Publish(m.cfg.Topic, payload, m.cfg.QoS, true); err != nil {
		m.logger.Warn("health publish failed", "topic", m.cfg.Topic, "error", err)
	}
}
