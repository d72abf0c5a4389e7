// Package metrics exposes the relay's Prometheus instruments.
//
// Counters are driven by link events and by the bridge router. Link state,
// queue depth and delivered totals are read at scrape time from the links
// themselves, so they never drift from the source of truth.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
)

const namespace = "graylogic_relay"

// Source is a link observed at scrape time.
type Source interface {
	Name() string
	State() link.State
	Outbound() *queue.Queue
	Delivered() uint64
}

// Metrics holds the relay's instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	received    *prometheus.CounterVec
	forwarded   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	unroutable  *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	health      prometheus.Gauge
}

// New creates the instruments and registers the Go runtime and process
// collectors alongside them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		received: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from a link",
		}, []string{"link"}),
		forwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_forwarded_total",
			Help:      "Messages enqueued for a destination link by the router",
		}, []string{"from", "to"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped from a queue, by reason",
		}, []string{"queue", "reason"}),
		unroutable: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_unroutable_total",
			Help:      "Received messages with no matching route",
		}, []string{"link"}),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "Repeated enqueues rejected by the delivery ledger",
		}, []string{"link"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_errors_total",
			Help:      "Non-fatal link errors",
		}, []string{"link"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_transitions_total",
			Help:      "Connection state transitions, by target state",
		}, []string{"link", "state"}),
		health: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_status",
			Help:      "Aggregate health: 0 healthy, 1 degraded, 2 unhealthy",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Watch registers scrape-time gauges for a link: its connection state,
// outbound queue depth and delivered total.
func (m *Metrics) Watch(src Source) {
	labels := prometheus.Labels{"link": src.Name()}
	f := promauto.With(m.registry)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "link_state",
		Help:        "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 closing",
		ConstLabels: labels,
	}, func() float64 { return float64(src.State()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Messages waiting in the link's outbound queue",
		ConstLabels: labels,
	}, func() float64 { return float64(src.Outbound().Len()) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "messages_delivered_total",
		Help:        "Messages written to the link's peer",
		ConstLabels: labels,
	}, func() float64 { return float64(src.Delivered()) })
}

// Emit counts a link event. Metrics is a link.Emitter.
func (m *Metrics) Emit(e link.Event) {
	switch e.Type {
	case link.EventStateChanged:
		m.transitions.WithLabelValues(e.Link, e.To.String()).Inc()
	case link.EventOverflow:
		m.dropped.WithLabelValues(e.Link, queue.DropOverflow.String()).Inc()
	case link.EventExpired:
		m.dropped.WithLabelValues(e.Link, queue.DropExpired.String()).Inc()
	case link.EventUnroutable:
		m.unroutable.WithLabelValues(e.Link).Inc()
	case link.EventDuplicate:
		m.duplicates.WithLabelValues(e.Link).Inc()
	case link.EventError:
		m.errors.WithLabelValues(e.Link).Inc()
	}
}

// Received counts a message taken from the inbox.
func (m *Metrics) Received(linkName string) {
	m.received.WithLabelValues(linkName).Inc()
}

// Forwarded counts a message enqueued for a destination.
func (m *Metrics) Forwarded(from, to string) {
	m.forwarded.WithLabelValues(from, to).Inc()
}

// SetHealth records the aggregate health level.
func (m *Metrics) SetHealth(level int) {
	m.health.Set(float64(level))
}
