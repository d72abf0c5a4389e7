package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-relay/internal/message"
)

type dropRecorder struct {
	mu      sync.Mutex
	dropped []message.Message
	reasons []DropReason
}

func (r *dropRecorder) record(_ string, m message.Message, reason DropReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, m)
	r.reasons = append(r.reasons, reason)
}

func msg(body string) message.Message {
	return message.New(message.OriginBroker, "broker", "t1", []byte(body))
}

func drain(q *Queue) []string {
	var out []string
	for {
		m, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, string(m.Payload()))
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := New(Config{Name: "ws", Capacity: 10})

	for i := 1; i <= 4; i++ {
		require.True(t, q.Push(msg(fmt.Sprint(i))))
	}

	assert.Equal(t, 4, q.Len())
	assert.Equal(t, []string{"1", "2", "3", "4"}, drain(q))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DropOldestOnOverflow(t *testing.T) {
	rec := &dropRecorder{}
	q := New(Config{Name: "ws", Capacity: 3, OnDrop: rec.record})

	for i := 1; i <= 5; i++ {
		q.Push(msg(fmt.Sprint(i)))
		assert.LessOrEqual(t, q.Len(), 3)
	}

	assert.Equal(t, []string{"3", "4", "5"}, drain(q))
	require.Len(t, rec.dropped, 2)
	assert.Equal(t, "1", string(rec.dropped[0].Payload()))
	assert.Equal(t, "2", string(rec.dropped[1].Payload()))
	assert.Equal(t, []DropReason{DropOverflow, DropOverflow}, rec.reasons)
	assert.Equal(t, uint64(2), q.Overflowed())
}

func TestQueue_PushFrontRequeuesAtHead(t *testing.T) {
	q := New(Config{Capacity: 4})
	q.Push(msg("1"))
	q.Push(msg("2"))

	first, ok := q.Pop()
	require.True(t, ok)
	require.True(t, q.PushFront(first))

	assert.Equal(t, []string{"1", "2"}, drain(q))
}

func TestQueue_PushFrontWhenFullDropsRequeued(t *testing.T) {
	rec := &dropRecorder{}
	q := New(Config{Capacity: 2, OnDrop: rec.record})
	q.Push(msg("1"))
	first, _ := q.Pop()
	q.Push(msg("2"))
	q.Push(msg("3"))

	assert.False(t, q.PushFront(first))
	assert.Equal(t, []string{"2", "3"}, drain(q))
	require.Len(t, rec.dropped, 1)
	assert.Equal(t, first.ID(), rec.dropped[0].ID())
}

func TestQueue_TTLExpiry(t *testing.T) {
	rec := &dropRecorder{}
	q := New(Config{Capacity: 4, TTL: time.Minute, OnDrop: rec.record})
	q.Push(msg("old"))
	q.Push(msg("new"))

	// Advance the clock so both look old, then only one.
	q.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, []DropReason{DropExpired, DropExpired}, rec.reasons)
	assert.Equal(t, uint64(2), q.Expired())
}

func TestQueue_ReadySignal(t *testing.T) {
	q := New(Config{Capacity: 2})

	select {
	case <-q.Ready():
		t.Fatal("ready signalled on empty queue")
	default:
	}

	q.Push(msg("1"))
	q.Push(msg("2"))

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready not signalled after push")
	}
}

func TestQueue_WrapAround(t *testing.T) {
	q := New(Config{Capacity: 3})
	for round := 0; round < 5; round++ {
		q.Push(msg(fmt.Sprintf("%d-a", round)))
		q.Push(msg(fmt.Sprintf("%d-b", round)))
		assert.Equal(t, []string{fmt.Sprintf("%d-a", round), fmt.Sprintf("%d-b", round)}, drain(q))
	}
}

func TestQueue_ConcurrentNeverExceedsCapacity(t *testing.T) {
	q := New(Config{Capacity: 8})
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.Push(msg("x"))
				if n := q.Len(); n > q.Cap() {
					t.Errorf("Len() = %d exceeds Cap() = %d", n, q.Cap())
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			q.Pop()
		}
	}()
	wg.Wait()

	assert.LessOrEqual(t, q.Len(), 8)
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := New(Config{})
	assert.Equal(t, defaultCapacity, q.Cap())
}

func TestQueue_Snapshot(t *testing.T) {
	q := New(Config{Capacity: 3})
	q.Push(msg("a"))
	q.Push(msg("b"))

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", string(snap[0].Payload()))
	assert.Equal(t, 2, q.Len())
}
