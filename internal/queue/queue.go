package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/message"
)

// DropReason explains why a message left the queue without being delivered.
type DropReason int

const (
	// DropOverflow means the message was the oldest entry when capacity was exceeded.
	DropOverflow DropReason = iota + 1

	// DropExpired means the message outlived the queue TTL.
	DropExpired
)

// String returns the reason name used in events and metrics.
func (r DropReason) String() string {
	switch r {
	case DropOverflow:
		return "overflow"
	case DropExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DropFunc is called for every message discarded by the queue.
// It is invoked after the queue lock has been released.
type DropFunc func(queue string, m message.Message, reason DropReason)

// defaultCapacity is used when Config.Capacity is not positive.
const defaultCapacity = 1000

// Config holds queue construction options.
type Config struct {
	// Name identifies the queue in drop reports, usually the destination link name.
	Name string

	// Capacity is the maximum number of queued messages.
	Capacity int

	// TTL discards messages older than this on Pop. Zero disables expiry.
	TTL time.Duration

	// OnDrop is notified of every overflow or expiry. Optional.
	OnDrop DropFunc
}

// Queue is a bounded FIFO of messages with drop-oldest overflow.
//
// Thread Safety: All methods are safe for concurrent use.
type Queue struct {
	name     string
	capacity int
	ttl      time.Duration
	onDrop   DropFunc
	now      func() time.Time

	mu    sync.Mutex
	items []message.Message // ring buffer
	head  int
	size  int

	ready chan struct{}

	overflowed atomic.Uint64
	expired    atomic.Uint64
}

// New creates an empty queue.
func New(cfg Config) *Queue {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{
		name:     cfg.Name,
		capacity: capacity,
		ttl:      cfg.TTL,
		onDrop:   cfg.OnDrop,
		now:      time.Now,
		items:    make([]message.Message, capacity),
		ready:    make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Cap returns the maximum depth.
func (q *Queue) Cap() int { return q.capacity }

// Len returns the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Ready returns a channel that receives a value after a push. The channel
// holds at most one pending signal, so consumers must drain with Pop until
// it reports empty.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Push appends m at the tail. If the queue is full the oldest entry is
// dropped first. Returns false when a message had to be dropped.
func (q *Queue) Push(m message.Message) bool {
	q.mu.Lock()
	var dropped message.Message
	overflow := false
	if q.size == q.capacity {
		dropped = q.items[q.head]
		q.items[q.head] = message.Message{}
		q.head = (q.head + 1) % q.capacity
		q.size--
		overflow = true
	}
	q.items[(q.head+q.size)%q.capacity] = m
	q.size++
	q.mu.Unlock()

	if overflow {
		q.report(dropped, DropOverflow)
	}
	q.signal()
	return !overflow
}

// PushFront puts m back at the head, ahead of everything queued. Send
// loops use it to retry a message whose delivery failed mid-flight. When
// the queue is already full, m is itself the oldest entry and is dropped.
func (q *Queue) PushFront(m message.Message) bool {
	q.mu.Lock()
	if q.size == q.capacity {
		q.mu.Unlock()
		q.report(m, DropOverflow)
		return false
	}
	q.head = (q.head - 1 + q.capacity) % q.capacity
	q.items[q.head] = m
	q.size++
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop removes and returns the oldest unexpired message.
func (q *Queue) Pop() (message.Message, bool) {
	var stale []message.Message
	now := q.now()

	q.mu.Lock()
	var out message.Message
	found := false
	for q.size > 0 {
		m := q.items[q.head]
		q.items[q.head] = message.Message{}
		q.head = (q.head + 1) % q.capacity
		q.size--
		if m.Expired(now, q.ttl) {
			stale = append(stale, m)
			continue
		}
		out, found = m, true
		break
	}
	q.mu.Unlock()

	for _, m := range stale {
		q.report(m, DropExpired)
	}
	return out, found
}

// Snapshot returns the queued messages in delivery order without removing them.
func (q *Queue) Snapshot() []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]message.Message, 0, q.size)
	for i := 0; i < q.size; i++ {
		out = append(out, q.items[(q.head+i)%q.capacity])
	}
	return out
}

// Overflowed returns the number of messages dropped for capacity.
func (q *Queue) Overflowed() uint64 { return q.overflowed.Load() }

// Expired returns the number of messages dropped for age.
func (q *Queue) Expired() uint64 { return q.expired.Load() }

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) report(m message.Message, reason DropReason) {
	switch reason {
	case DropOverflow:
		q.overflowed.Add(1)
	case DropExpired:
		q.expired.Add(1)
	}
	if q.onDrop != nil {
		q.onDrop(q.name, m, reason)
	}
}
