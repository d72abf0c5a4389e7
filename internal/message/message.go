package message

import (
	"time"

	"github.com/google/uuid"
)

// Origin identifies which side of the bridge produced a message.
type Origin int

const (
	// OriginBroker marks a message received from the MQTT broker.
	OriginBroker Origin = iota + 1

	// OriginSocket marks a message received from a WebSocket peer.
	OriginSocket

	// OriginLocal marks a message produced by the relay itself (heartbeat, health).
	OriginLocal
)

// String returns the lower-case origin name used in logs and metrics.
func (o Origin) String() string {
	switch o {
	case OriginBroker:
		return "broker"
	case OriginSocket:
		return "socket"
	case OriginLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Message is an immutable unit of relayed traffic.
type Message struct {
	id        string
	origin    Origin
	link      string
	channel   string
	payload   []byte
	qos       byte
	retained  bool
	timestamp time.Time
}

// New builds a message with a fresh ID and the current UTC timestamp.
// The payload is copied.
func New(origin Origin, link, channel string, payload []byte) Message {
	return Message{
		id:        uuid.NewString(),
		origin:    origin,
		link:      link,
		channel:   channel,
		payload:   clone(payload),
		timestamp: time.Now().UTC(),
	}
}

// WithDelivery returns a copy carrying MQTT delivery options.
func (m Message) WithDelivery(qos byte, retained bool) Message {
	m.qos = qos
	m.retained = retained
	return m
}

// Retarget returns a copy addressed to a different channel. The ID is
// preserved so the bridge can still recognise the original event.
func (m Message) Retarget(channel string) Message {
	m.channel = channel
	return m
}

// WithPayload returns a copy carrying a different payload. Used by route
// transforms; the ID is preserved.
func (m Message) WithPayload(payload []byte) Message {
	m.payload = clone(payload)
	return m
}

// ID returns the unique identifier assigned when the message was received.
func (m Message) ID() string { return m.id }

// Origin returns the side of the bridge that produced the message.
func (m Message) Origin() Origin { return m.origin }

// Link returns the name of the link that received the message.
func (m Message) Link() string { return m.link }

// Channel returns the MQTT topic or socket channel of the message.
func (m Message) Channel() string { return m.channel }

// Payload returns a copy of the message body.
func (m Message) Payload() []byte { return clone(m.payload) }

// Size returns the payload length in bytes.
func (m Message) Size() int { return len(m.payload) }

// QoS returns the MQTT quality-of-service level for broker delivery.
func (m Message) QoS() byte { return m.qos }

// Retained reports whether the broker should retain the message.
func (m Message) Retained() bool { return m.retained }

// Timestamp returns when the message was received.
func (m Message) Timestamp() time.Time { return m.timestamp }

// Expired reports whether the message is older than ttl at now.
// A zero ttl never expires.
func (m Message) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(m.timestamp) > ttl
}

// IsZero reports whether m is the zero Message.
func (m Message) IsZero() bool { return m.id == "" }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
