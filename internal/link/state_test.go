package link

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-relay/internal/message"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) transitions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Type == EventStateChanged {
			out = append(out, e.From.String()+">"+e.To.String())
		}
	}
	return out
}

func TestCanTransition(t *testing.T) {
	all := []State{StateDisconnected, StateConnecting, StateConnected, StateClosing}
	legal := map[[2]State]bool{
		{StateDisconnected, StateConnecting}: true,
		{StateConnecting, StateConnected}:    true,
		{StateConnecting, StateDisconnected}: true,
		{StateConnected, StateClosing}:       true,
		{StateConnected, StateDisconnected}:  true,
		{StateClosing, StateDisconnected}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]State{from, to}], CanTransition(from, to), "%s → %s", from, to)
		}
	}
}

func TestStateMachine_RejectsSkippingConnecting(t *testing.T) {
	log := &eventLog{}
	m := NewStateMachine("ws", message.OriginSocket, log)

	err := m.Transition(StateConnected, nil)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Empty(t, log.events)
}

func TestStateMachine_FullCycleEmitsEvents(t *testing.T) {
	log := &eventLog{}
	m := NewStateMachine("broker", message.OriginBroker, log)

	require.NoError(t, m.Transition(StateConnecting, nil))
	require.NoError(t, m.Transition(StateConnected, nil))
	require.NoError(t, m.Transition(StateClosing, nil))
	require.NoError(t, m.Transition(StateDisconnected, nil))

	assert.Equal(t, []string{
		"disconnected>connecting",
		"connecting>connected",
		"connected>closing",
		"closing>disconnected",
	}, log.transitions())
	assert.Equal(t, "broker", log.events[0].Link)
	assert.Equal(t, message.OriginBroker, log.events[0].Origin)
}

func TestStateMachine_DisconnectCarriesCause(t *testing.T) {
	log := &eventLog{}
	m := NewStateMachine("ws", message.OriginSocket, log)
	cause := errors.New("bad frame")

	require.NoError(t, m.Transition(StateConnecting, nil))
	require.NoError(t, m.Transition(StateConnected, nil))
	require.NoError(t, m.Transition(StateDisconnected, cause))

	last := log.events[len(log.events)-1]
	assert.ErrorIs(t, last.Err, cause)
	assert.False(t, last.Clean())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "state(9)", State(9).String())
}
