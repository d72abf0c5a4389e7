//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Name: "broker",
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:          1,
		KeepAlive:    10,
		CleanSession: true,
	}
}

// TestIntegration_Roundtrip publishes through the queue and receives the
// message back through the subscription into the inbox.
func TestIntegration_Roundtrip(t *testing.T) {
	inbox := queue.New(queue.Config{Name: "inbox", Capacity: 16})
	l, err := New(Options{
		Config: integrationConfig("graylogic-relay-int-roundtrip"),
		Retry:  link.RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		Inbox:  inbox,
	})
	require.NoError(t, err)

	topic := "graylogic/relay/int/roundtrip"
	require.NoError(t, l.Subscribe(topic, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx) //nolint:errcheck

	require.Eventually(t, func() bool { return l.State() == link.StateConnected }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, l.Publish(topic, []byte(`{"value":1}`), 1, false))

	select {
	case <-inbox.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
	m, ok := inbox.Pop()
	require.True(t, ok)
	assert.Equal(t, topic, m.Channel())
	assert.JSONEq(t, `{"value":1}`, string(m.Payload()))
}

// TestIntegration_QueuedBeforeConnect verifies that publishes made before
// the first connect are flushed once the link comes up.
func TestIntegration_QueuedBeforeConnect(t *testing.T) {
	inbox := queue.New(queue.Config{Name: "inbox", Capacity: 16})
	l, err := New(Options{
		Config: integrationConfig("graylogic-relay-int-queued"),
		Inbox:  inbox,
	})
	require.NoError(t, err)

	topic := "graylogic/relay/int/queued"
	require.NoError(t, l.Subscribe(topic, 1))
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, l.Publish(topic, []byte(p), 1, false))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx) //nolint:errcheck

	var got []string
	deadline := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case <-inbox.Ready():
			for {
				m, ok := inbox.Pop()
				if !ok {
					break
				}
				got = append(got, string(m.Payload()))
			}
		case <-deadline:
			t.Fatalf("received %v before timeout", got)
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}
