// Package journal persists link events to SQLite for later inspection
// through the HTTP API.
//
// The Journal is a link.Emitter: Emit never blocks and never touches the
// database. A single writer goroutine started by Run inserts entries and
// prunes those older than the retention window. When the writer falls
// behind, new events are dropped and counted rather than slowing the
// dispatcher down.
package journal

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/link"
)

const (
	defaultBuffer        = 1024
	defaultPruneInterval = time.Hour

	// writeTimeout bounds each insert, and the final drain on shutdown.
	writeTimeout = 5 * time.Second
)

// Options configures a Journal.
type Options struct {
	// Retention is how long entries are kept. Zero keeps them forever.
	Retention     time.Duration
	PruneInterval time.Duration
	Buffer        int
	Logger        link.Logger
}

// Journal records state changes, drops and errors.
type Journal struct {
	repo    Repository
	opts    Options
	logger  link.Logger
	events  chan link.Event
	dropped atomic.Uint64
	written atomic.Uint64
	now     func() time.Time
}

// New creates a Journal over repo.
func New(repo Repository, opts Options) *Journal {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = link.NopLogger{}
	}
	return &Journal{
		repo:   repo,
		opts:   opts,
		logger: logger,
		events: make(chan link.Event, opts.Buffer),
		now:    time.Now,
	}
}

// Recorded reports whether events of type t are journaled. Duplicate
// rejections are routine at-most-once bookkeeping and are not recorded.
func Recorded(t link.EventType) bool {
	switch t {
	case link.EventStateChanged, link.EventOverflow, link.EventExpired, link.EventUnroutable, link.EventError:
		return true
	default:
		return false
	}
}

// Emit queues e for the writer. Non-blocking.
func (j *Journal) Emit(e link.Event) {
	if !Recorded(e.Type) {
		return
	}
	select {
	case j.events <- e:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the writer was behind.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Written returns how many entries were inserted.
func (j *Journal) Written() uint64 { return j.written.Load() }

// List returns a page of entries, newest first.
func (j *Journal) List(ctx context.Context, f Filter) (*ListResult, error) {
	return j.repo.List(ctx, f)
}

// Run writes events until ctx is cancelled, then drains what is buffered.
func (j *Journal) Run(ctx context.Context) error {
	prune := time.NewTicker(j.opts.PruneInterval)
	defer prune.Stop()

	j.prune()
	for {
		select {
		case <-ctx.Done():
			j.drain()
			return nil
		case e := <-j.events:
			j.write(e)
		case <-prune.C:
			j.prune()
		}
	}
}

func (j *Journal) drain() {
	for {
		select {
		case e := <-j.events:
			j.write(e)
		default:
			return
		}
	}
}

// write and prune use their own deadline so that events already accepted
// are persisted even while Run is shutting down.
func (j *Journal) write(e link.Event) {
	entry := FromEvent(e)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.repo.Insert(ctx, &entry); err != nil {
		j.logger.Warn("journal write failed", "type", entry.Type, "link", entry.Link, "error", err)
		return
	}
	j.written.Add(1)
}

func (j *Journal) prune() {
	if j.opts.Retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	n, err := j.repo.Prune(ctx, j.now().Add(-j.opts.Retention))
	if err != nil {
		j.logger.Warn("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Debug("journal pruned", "removed", n, "retention", j.opts.Retention.String())
	}
}

// FromEvent converts a link event to a journal entry.
func FromEvent(e link.Event) Entry {
	entry := Entry{
		Type:      e.Type.String(),
		Link:      e.Link,
		Origin:    e.Origin.String(),
		Channel:   e.Channel,
		MessageID: e.MessageID,
		CreatedAt: e.Time,
	}
	if e.Type == link.EventStateChanged {
		entry.FromState = e.From.String()
		entry.ToState = e.To.String()
	}
	if e.Err != nil {
		entry.Error = e.Err.Error()
	}
	return entry
}
