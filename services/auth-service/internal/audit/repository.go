// Package audit keeps an append-only trail of account activity in Postgres.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/db"
)

const (
	EventLogin           = "auth.login"
	EventRegister        = "auth.register"
	EventProfileComplete = "auth.profile_completed"
	EventGoogleConnected = "auth.google_connected"
	EventKeyRotated      = "jwt.rotate"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Query narrows a listing. Zero fields match everything; Before pages backwards by id.
type Query struct {
	EventType string
	ActorID   string
	Since     time.Time
	Before    int64
	Limit     int
}

func (q Query) pageSize() int {
	if q.Limit <= 0 || q.Limit > maxPageSize {
		return defaultPageSize
	}
	return q.Limit
}

// where renders the filter as a SQL clause with positional args.
func (q Query) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.EventType != "" {
		add("event_type = $%d", q.EventType)
	}
	if q.ActorID != "" {
		add("actor_id = $%d::uuid", q.ActorID)
	}
	if !q.Since.IsZero() {
		add("created_at >= $%d", q.Since)
	}
	if q.Before > 0 {
		add("id < $%d", q.Before)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends one event. An empty actorID is stored as NULL.
func (r *Repository) Record(ctx context.Context, eventType, actorID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_events (event_type, actor_id, metadata) VALUES ($1, NULLIF($2, '')::uuid, $3)`,
		eventType, actorID, raw)
	return err
}

// List returns matching events newest first.
func (r *Repository) List(ctx context.Context, q Query) ([]Event, error) {
	where, args := q.where()
	args = append(args, q.pageSize())
	sql := fmt.Sprintf(`
		SELECT id, event_type, COALESCE(actor_id::text, ''), metadata, created_at
		FROM audit_events
		%s
		ORDER BY id DESC
		LIMIT $%d`, where, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
