package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/message"
	"github.com/nerrad567/gray-logic-relay/migrations"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "relay.db"), WALMode: true, BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.Migrate(ctx, migrations.FS, ".")
	require.NoError(t, err)
	return NewSQLiteRepository(db.DB)
}

func TestRepository_InsertAndList(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Type: "state_changed", Link: "panel", Origin: "socket", FromState: "connecting", ToState: "connected", CreatedAt: base},
		{Type: "overflow", Link: "panel", Origin: "local", Channel: "t1", MessageID: "m-1", CreatedAt: base.Add(time.Second)},
		{Type: "error", Link: "broker", Origin: "broker", Error: "mqtt: publish failed", CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range entries {
		require.NoError(t, repo.Insert(ctx, &entries[i]))
		assert.NotEmpty(t, entries[i].ID)
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, defaultLimit, all.Limit)
	require.Len(t, all.Events, 3)
	assert.Equal(t, "error", all.Events[0].Type, "newest first")
	assert.Equal(t, "mqtt: publish failed", all.Events[0].Error)
	assert.True(t, base.Equal(all.Events[2].CreatedAt))
	assert.Equal(t, "connected", all.Events[2].ToState)

	panel, err := repo.List(ctx, Filter{Link: "panel", Type: "overflow"})
	require.NoError(t, err)
	require.Len(t, panel.Events, 1)
	assert.Equal(t, "m-1", panel.Events[0].MessageID)
	assert.Empty(t, panel.Events[0].FromState)

	recent, err := repo.List(ctx, Filter{Since: base.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 2, recent.Total)

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "overflow", page.Events[0].Type)

	clamped, err := repo.List(ctx, Filter{Limit: 10_000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, clamped.Limit)
	assert.Equal(t, 0, clamped.Offset)
}

func TestRepository_ListEmpty(t *testing.T) {
	res, err := newRepo(t).List(context.Background(), Filter{Link: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
}

func TestRepository_Prune(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now()

	old := Entry{Type: "overflow", Link: "panel", Origin: "local", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := Entry{Type: "overflow", Link: "panel", Origin: "local", CreatedAt: now}
	require.NoError(t, repo.Insert(ctx, &old))
	require.NoError(t, repo.Insert(ctx, &fresh))

	n, err := repo.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, fresh.ID, res.Events[0].ID)
}

func TestFromEvent(t *testing.T) {
	ts := time.Now()
	e := FromEvent(link.Event{
		Type:   link.EventStateChanged,
		Link:   "ha",
		Origin: message.OriginSocket,
		From:   link.StateConnected,
		To:     link.StateDisconnected,
		Err:    errors.New("websocket: protocol violation"),
		Time:   ts,
	})
	assert.Equal(t, "state_changed", e.Type)
	assert.Equal(t, "connected", e.FromState)
	assert.Equal(t, "disconnected", e.ToState)
	assert.Equal(t, "websocket: protocol violation", e.Error)
	assert.Equal(t, ts, e.CreatedAt)

	o := FromEvent(link.Event{Type: link.EventUnroutable, Link: "broker", Origin: message.OriginBroker, Channel: "t1"})
	assert.Empty(t, o.FromState)
	assert.Empty(t, o.Error)
	assert.Equal(t, "t1", o.Channel)
}

func TestJournal_RecordsAndDrainsOnShutdown(t *testing.T) {
	repo := newRepo(t)
	j := New(repo, Options{Retention: time.Hour})

	j.Emit(link.Event{Type: link.EventOverflow, Link: "panel", Origin: message.OriginLocal, Time: time.Now()})
	j.Emit(link.Event{Type: link.EventDuplicate, Link: "panel", Time: time.Now()})
	j.Emit(link.Event{Type: link.EventStateChanged, Link: "panel", From: link.StateConnecting, To: link.StateConnected, Time: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, j.Run(ctx))

	assert.Equal(t, uint64(2), j.Written(), "duplicates are not journaled")
	res, err := j.List(context.Background(), Filter{Link: "panel"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestJournal_DropsWhenBehind(t *testing.T) {
	j := New(newRepo(t), Options{Buffer: 1})
	j.Emit(link.Event{Type: link.EventError, Link: "a"})
	j.Emit(link.Event{Type: link.EventError, Link: "b"})
	assert.Equal(t, uint64(1), j.Dropped())
}

func TestJournal_PrunesOnStart(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	stale := Entry{Type: "error", Link: "broker", Origin: "broker", CreatedAt: time.Now().Add(-10 * 24 * time.Hour)}
	require.NoError(t, repo.Insert(ctx, &stale))

	j := New(repo, Options{Retention: 7 * 24 * time.Hour})
	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, j.Run(runCtx))

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}

func TestRecorded(t *testing.T) {
	assert.True(t, Recorded(link.EventStateChanged))
	assert.True(t, Recorded(link.EventExpired))
	assert.False(t, Recorded(link.EventDuplicate))
}
