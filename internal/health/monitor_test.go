package health

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-relay/internal/link"
)

// fakeSource is a link whose state the test controls.
type fakeSource struct {
	mu    sync.Mutex
	name  string
	state link.State
	since time.Time
}

func newSource(name string, state link.State) *fakeSource {
	return &fakeSource{name: name, state: state, since: time.Now()}
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) State() link.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSource) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

func (s *fakeSource) set(state link.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.since = time.Now()
}

// mockPublisher records retained health messages.
type mockPublisher struct {
	mu       sync.Mutex
	messages []published
}

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (p *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (p *mockPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.messages...)
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	up := link.StateConnected.String()
	down := link.StateConnecting.String()

	tests := []struct {
		name      string
		links     []LinkHealth
		noneSince time.Time
		want      Status
		reason    string
	}{
		{
			name:  "all connected",
			links: []LinkHealth{{Name: "broker", State: up}, {Name: "panel", State: up}},
			want:  StatusHealthy,
		},
		{
			name:   "one down",
			links:  []LinkHealth{{Name: "broker", State: up}, {Name: "panel", State: down}},
			want:   StatusDegraded,
			reason: "not connected: panel",
		},
		{
			name:      "all down briefly",
			links:     []LinkHealth{{Name: "broker", State: down}, {Name: "panel", State: down}},
			noneSince: now.Add(-10 * time.Second),
			want:      StatusDegraded,
			reason:    "not connected: broker, panel",
		},
		{
			name:      "all down too long",
			links:     []LinkHealth{{Name: "broker", State: down}},
			noneSince: now.Add(-2 * time.Minute),
			want:      StatusUnhealthy,
			reason:    "no link connected since 2026-03-01T11:58:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason := Evaluate(tt.links, tt.noneSince, now, time.Minute)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestStatus_Level(t *testing.T) {
	assert.Equal(t, 0, StatusHealthy.Level())
	assert.Equal(t, 1, StatusDegraded.Level())
	assert.Equal(t, 2, StatusUnhealthy.Level())
}

func TestMonitor_SamplePublishesRetained(t *testing.T) {
	broker := newSource("broker", link.StateConnected)
	panel := newSource("panel", link.StateConnecting)
	pub := &mockPublisher{}

	m := NewMonitor(Config{GatewayID: "gw-1", Version: "1.2.0", Topic: "graylogic/relay/gw-1/health", QoS: 1},
		[]Source{broker, panel}, pub, nil)

	var seen []Status
	m.Observe(func(s Snapshot) { seen = append(seen, s.Status) })

	snap := m.Sample()
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.Equal(t, "not connected: panel", snap.Reason)
	require.Len(t, snap.Links, 2)
	assert.Equal(t, "connected", snap.Links[0].State)

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "graylogic/relay/gw-1/health", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	assert.Equal(t, byte(1), msgs[0].qos)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(msgs[0].payload, &decoded))
	assert.Equal(t, "gw-1", decoded.Gateway)
	assert.Equal(t, StatusDegraded, decoded.Status)

	panel.set(link.StateConnected)
	assert.Equal(t, StatusHealthy, m.Sample().Status)
	assert.Equal(t, []Status{StatusDegraded, StatusHealthy}, seen)
}

func TestMonitor_NoTopicDoesNotPublish(t *testing.T) {
	pub := &mockPublisher{}
	m := NewMonitor(Config{GatewayID: "gw"}, []Source{newSource("broker", link.StateConnected)}, pub, nil)
	m.Sample()
	assert.Empty(t, pub.all())
}

func TestMonitor_UnhealthyAfterGracePeriod(t *testing.T) {
	broker := newSource("broker", link.StateDisconnected)
	m := NewMonitor(Config{GatewayID: "gw", UnhealthyAfter: time.Minute}, []Source{broker}, nil, nil)

	clock := time.Now()
	m.now = func() time.Time { return clock }

	assert.Equal(t, StatusDegraded, m.Sample().Status, "inside the grace period")

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, StatusUnhealthy, m.Sample().Status)

	broker.set(link.StateConnected)
	assert.Equal(t, StatusHealthy, m.Sample().Status)

	broker.set(link.StateConnecting)
	clock = clock.Add(30 * time.Second)
	assert.Equal(t, StatusDegraded, m.Sample().Status, "grace period restarts after recovery")
}

func TestMonitor_StateChangeTriggersSample(t *testing.T) {
	panel := newSource("panel", link.StateConnecting)
	m := NewMonitor(Config{GatewayID: "gw", Interval: time.Hour}, []Source{panel}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return !m.Snapshot().Timestamp.IsZero() && len(m.Snapshot().Links) == 1 },
		time.Second, 5*time.Millisecond)

	panel.set(link.StateConnected)
	m.Emit(link.Event{Type: link.EventOverflow})
	m.Emit(link.Event{Type: link.EventStateChanged, Link: "panel"})

	require.Eventually(t, func() bool { return m.Snapshot().Status == StatusHealthy }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitor_SnapshotIsCopy(t *testing.T) {
	m := NewMonitor(Config{GatewayID: "gw"}, []Source{newSource("broker", link.StateConnected)}, nil, nil)
	m.Sample()
	s := m.Snapshot()
	s.Links[0].State = "mutated"
	assert.Equal(t, "connected", m.Snapshot().Links[0].State)
}
