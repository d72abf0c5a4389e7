package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// inboundFunc receives every message delivered by the broker.
type inboundFunc func(topic string, payload []byte, qos byte, retained bool)

// transport is one broker connection. The paho client is the production
// implementation; tests substitute a fake.
type transport interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, qos byte, fn inboundFunc) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect(quiesce time.Duration)

	// Lost delivers the error that ended the connection.
	Lost() <-chan error
}

// transportFactory creates a fresh transport for each connection attempt.
type transportFactory func() (transport, error)

// pahoTransport adapts a paho client with auto-reconnect disabled.
type pahoTransport struct {
	client pahomqtt.Client
	lost   chan error
}

// newPahoFactory returns a factory building a new paho client per attempt,
// so that a dead client never leaks state into the next session.
func newPahoFactory(build func() (*pahomqtt.ClientOptions, error)) transportFactory {
	return func() (transport, error) {
		opts, err := build()
		if err != nil {
			return nil, err
		}

		t := &pahoTransport{lost: make(chan error, 1)}
		opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			select {
			case t.lost <- err:
			default:
			}
		})
		t.client = pahomqtt.NewClient(opts)
		return t, nil
	}
}

func (t *pahoTransport) Connect(ctx context.Context) error {
	token := t.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil
	case <-ctx.Done():
		t.client.Disconnect(0)
		return ctx.Err()
	}
}

func (t *pahoTransport) Subscribe(topic string, qos byte, fn inboundFunc) error {
	token := t.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		fn(msg.Topic(), msg.Payload(), msg.Qos(), msg.Retained())
	})
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: %s: %w after %v", ErrSubscribeFailed, topic, ErrTimeout, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

func (t *pahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !t.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := t.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (t *pahoTransport) Disconnect(quiesce time.Duration) {
	t.client.Disconnect(uint(quiesce.Milliseconds()))
}

func (t *pahoTransport) Lost() <-chan error { return t.lost }
