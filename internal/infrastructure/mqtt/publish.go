package mqtt

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-relay/internal/message"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// maxPublishAttempts bounds how often one message is retried after the
// broker rejects it on a live connection.
const maxPublishAttempts = 3

// Publish enqueues a message for the broker.
//
// While Connected the send loop publishes it immediately; otherwise it is
// flushed in FIFO order right after the next Connected transition, after
// subscription replay. A full queue drops its oldest entry.
//
// Parameters:
//   - topic: The topic to publish to (wildcards are rejected)
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil once queued, or a validation error
func (l *BrokerLink) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkPublish(topic, payload, qos); err != nil {
		return err
	}

	m := message.New(message.OriginLocal, l.name, topic, payload).WithDelivery(qos, retained)
	l.outbound.Push(m)
	return nil
}

// PublishRetained enqueues a retained message with the configured default QoS.
//
// Use for state updates where new subscribers should receive the current state.
func (l *BrokerLink) PublishRetained(topic string, payload []byte) error {
	return l.Publish(topic, payload, byte(l.cfg.QoS), true)
}

// checkPublish applies the broker's PUBLISH constraints.
func checkPublish(topic string, payload []byte, qos byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	return nil
}

// sendLoop drains the outbound queue through s until the connection is
// lost or ctx is cancelled.
//
// A message that cannot be published at all is dropped with an error
// event. One that fails because the connection is gone goes back to the
// head of the queue so that order survives the reconnect. Any other
// failure is retried at the head up to maxPublishAttempts times, then
// dropped so the messages behind it keep moving.
func (l *BrokerLink) sendLoop(ctx context.Context, s *session) error {
	for {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m, ok := l.outbound.Pop()
			if !ok {
				break
			}
			if err := checkPublish(m.Channel(), m.Payload(), m.QoS()); err != nil {
				l.logger.Warn("dropping unpublishable message", "link", l.name, "topic", m.Channel(), "error", err)
				l.emitError(err, m.Channel())
				continue
			}
			if err := s.publish(m); err != nil {
				if errors.Is(err, ErrNotConnected) || !l.countFailure(m.ID()) {
					l.outbound.PushFront(m)
					return err
				}
				l.logger.Warn("dropping message after repeated publish failures",
					"link", l.name,
					"topic", m.Channel(),
					"attempts", maxPublishAttempts,
					"error", err,
				)
				l.emitError(err, m.Channel())
				continue
			}
			l.failedID, l.failures = "", 0
			l.delivered.Add(1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.t.Lost():
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		case <-l.outbound.Ready():
		}
	}
}

// countFailure records a rejected publish of message id and reports
// whether it has now used up its attempts. Only sendLoop calls it.
func (l *BrokerLink) countFailure(id string) bool {
	if l.failedID != id {
		l.failedID, l.failures = id, 0
	}
	l.failures++
	if l.failures < maxPublishAttempts {
		return false
	}
	l.failedID, l.failures = "", 0
	return true
}
