package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AssignsIdentity(t *testing.T) {
	a := New(OriginBroker, "broker", "t1", []byte("x"))
	b := New(OriginBroker, "broker", "t1", []byte("x"))

	require.False(t, a.IsZero())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, OriginBroker, a.Origin())
	assert.Equal(t, "broker", a.Link())
	assert.Equal(t, "t1", a.Channel())
	assert.WithinDuration(t, time.Now(), a.Timestamp(), time.Second)
}

func TestPayload_IsCopied(t *testing.T) {
	body := []byte("hello")
	m := New(OriginSocket, "ha", "events", body)

	body[0] = 'j'
	assert.Equal(t, "hello", string(m.Payload()))

	out := m.Payload()
	out[0] = 'y'
	assert.Equal(t, "hello", string(m.Payload()))
}

func TestRetarget_KeepsID(t *testing.T) {
	m := New(OriginBroker, "broker", "t1", []byte("x"))
	r := m.Retarget("room/1").WithDelivery(1, true)

	assert.Equal(t, m.ID(), r.ID())
	assert.Equal(t, "room/1", r.Channel())
	assert.Equal(t, "t1", m.Channel())
	assert.Equal(t, byte(1), r.QoS())
	assert.True(t, r.Retained())
}

func TestExpired(t *testing.T) {
	m := New(OriginBroker, "broker", "t1", nil)

	assert.False(t, m.Expired(time.Now().Add(time.Hour), 0))
	assert.False(t, m.Expired(time.Now(), time.Minute))
	assert.True(t, m.Expired(time.Now().Add(2*time.Minute), time.Minute))
}

func TestOriginString(t *testing.T) {
	assert.Equal(t, "broker", OriginBroker.String())
	assert.Equal(t, "socket", OriginSocket.String())
	assert.Equal(t, "local", OriginLocal.String())
	assert.Equal(t, "unknown", Origin(0).String())
}
