package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded link event.
type Entry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Link      string    `json:"link"`
	Origin    string    `json:"origin"`
	FromState string    `json:"from_state,omitempty"`
	ToState   string    `json:"to_state,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Link   string    // optional: one link name
	Type   string    // optional: state_changed, overflow, expired, unroutable, error
	Since  time.Time // optional: entries at or after this time
	Limit  int       // default 50, max 500
	Offset int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Events []Entry `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository persists journal entries.
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores entries in the link_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert writes one entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO link_events (id, type, link, origin, from_state, to_state, channel, message_id, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Link, e.Origin,
		nullableString(e.FromState), nullableString(e.ToState),
		nullableString(e.Channel), nullableString(e.MessageID), nullableString(e.Error),
		e.CreatedAt.UTC().Format(database.TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting link event: %w", err)
	}
	return nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching f, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conditions []string
	var args []any
	if f.Link != "" {
		conditions = append(conditions, "link = ?")
		args = append(args, f.Link)
	}
	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, f.Type)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(database.TimeLayout))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM link_events " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting link events: %w", err)
	}

	query := "SELECT id, type, link, origin, from_state, to_state, channel, message_id, error, created_at FROM link_events " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying link events: %w", err)
	}
	defer rows.Close()

	events := []Entry{}
	for rows.Next() {
		var e Entry
		var from, to, channel, msgID, errText sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.Link, &e.Origin, &from, &to, &channel, &msgID, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning link event: %w", err)
		}
		e.FromState = from.String
		e.ToState = to.String
		e.Channel = channel.String
		e.MessageID = msgID.String
		e.Error = errText.String

		t, err := time.Parse(database.TimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing link event timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link events: %w", err)
	}

	return &ListResult{Events: events, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Prune deletes entries older than before and returns how many were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM link_events WHERE created_at < ?", before.UTC().Format(database.TimeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning link events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning link events: %w", err)
	}
	return n, nil
}
