package bridge

import (
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/message"
)

// Direction says which routing table a route belongs to.
type Direction int

const (
	// BrokerToSocket routes match MQTT topics against a topic filter.
	BrokerToSocket Direction = iota + 1

	// SocketToBroker routes match socket channels exactly, or "*".
	SocketToBroker
)

// String returns the direction name used in logs.
func (d Direction) String() string {
	switch d {
	case BrokerToSocket:
		return "broker_to_socket"
	case SocketToBroker:
		return "socket_to_broker"
	default:
		return "unknown"
	}
}

// wildcardChannel matches every channel of a socket route.
const wildcardChannel = "*"

// Target is one destination of a route. An empty Channel keeps the
// incoming channel.
type Target struct {
	Link    string
	Channel string
}

// Route is an immutable entry of a routing table.
type Route struct {
	Direction Direction
	From      string

	// Link restricts a socket route to one source link.
	Link string

	Targets   []Target
	Transform string

	// QoS and Retain apply to broker publishes.
	QoS    byte
	Retain bool
}

// Matches reports whether m was received on this route's side and channel.
func (r Route) Matches(m message.Message) bool {
	switch r.Direction {
	case BrokerToSocket:
		return m.Origin() == message.OriginBroker && mqtt.MatchFilter(r.From, m.Channel())
	case SocketToBroker:
		if m.Origin() != message.OriginSocket {
			return false
		}
		if r.Link != "" && r.Link != m.Link() {
			return false
		}
		return r.From == wildcardChannel || r.From == m.Channel()
	default:
		return false
	}
}

// CompileRoutes builds both routing tables from configuration.
//
// Broker routes keep the topic as the socket channel unless a target
// rewrites it. Socket routes without a target channel publish to
// mqtt.topic when it is set, and to the incoming channel otherwise.
func CompileRoutes(cfg *config.Config) []Route {
	broker := cfg.BrokerName()
	routes := make([]Route, 0, len(cfg.Routes.BrokerToSocket)+len(cfg.Routes.SocketToBroker))

	for _, rc := range cfg.Routes.BrokerToSocket {
		r := Route{Direction: BrokerToSocket, From: rc.From}
		for _, t := range rc.To {
			r.Targets = append(r.Targets, Target{Link: t.Link, Channel: t.Channel})
		}
		routes = append(routes, r)
	}

	for _, rc := range cfg.Routes.SocketToBroker {
		r := Route{
			Direction: SocketToBroker,
			From:      rc.From,
			Link:      rc.Link,
			Transform: rc.Transform,
			QoS:       byte(cfg.MQTT.QoS),
			Retain:    rc.Retain,
		}
		if rc.QoS != nil {
			r.QoS = byte(*rc.QoS)
		}
		for _, t := range rc.To {
			channel := t.Channel
			if channel == "" {
				channel = cfg.MQTT.Topic
			}
			r.Targets = append(r.Targets, Target{Link: broker, Channel: channel})
		}
		routes = append(routes, r)
	}

	return routes
}

// Filters returns the distinct topic filters of the broker routes, in
// table order. The bridge subscribes the broker to each of them.
func Filters(routes []Route) []string {
	seen := make(map[string]bool)
	var filters []string
	for _, r := range routes {
		if r.Direction != BrokerToSocket || seen[r.From] {
			continue
		}
		seen[r.From] = true
		filters = append(filters, r.From)
	}
	return filters
}
