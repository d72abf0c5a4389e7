package mqtt

import (
	"fmt"
	"slices"
)

// subscription holds subscription details for replay on reconnect.
type subscription struct {
	topic string
	qos   byte
}

// Subscribe registers a subscription.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "sensors/+/state" matches any sensor
//   - # (multi-level): "sensors/#" matches everything below sensors
//
// Registration is idempotent per topic. When the link is Connected the
// broker subscription is made immediately; otherwise it is recorded and
// replayed on every successful (re)connect. Delivered messages go to the
// bridge inbox.
//
// Parameters:
//   - topic: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: ErrInvalidTopic or ErrInvalidQoS for bad input; a wrapped
//     ErrSubscribeFailed if the live subscribe failed (the registration
//     stays and is replayed on the next connect)
func (l *BrokerLink) Subscribe(topic string, qos byte) error {
	if err := ValidateFilter(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	l.subMu.Lock()
	if slices.ContainsFunc(l.subs, func(s subscription) bool { return s.topic == topic }) {
		l.subMu.Unlock()
		return nil
	}
	l.subs = append(l.subs, subscription{topic: topic, qos: qos})
	active := l.active
	l.subMu.Unlock()

	if active == nil {
		return nil
	}
	if err := active.subscribe(topic, qos); err != nil {
		l.emitError(err, topic)
		return fmt.Errorf("subscribing %s: %w", topic, err)
	}
	return nil
}

// Subscriptions returns the registered topic filters in registration order.
func (l *BrokerLink) Subscriptions() []string {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	topics := make([]string, len(l.subs))
	for i, s := range l.subs {
		topics[i] = s.topic
	}
	return topics
}

// replay subscribes every registered topic exactly once, in registration
// order, and makes s the live session. Topics registered while the replay
// runs are subscribed directly by Subscribe.
func (l *BrokerLink) replay(s *session) error {
	l.subMu.Lock()
	subs := slices.Clone(l.subs)
	l.active = s
	l.subMu.Unlock()

	for _, sub := range subs {
		if err := s.subscribe(sub.topic, sub.qos); err != nil {
			return err
		}
	}
	if len(subs) > 0 {
		l.logger.Debug("subscriptions replayed", "link", l.name, "count", len(subs))
	}
	return nil
}
