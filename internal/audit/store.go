package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careportal/careportal/internal/shared"
)

// Store persists session events in the session_audit table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert writes one event.
func (s *Store) Insert(ctx context.Context, event shared.SessionEvent) error {
	meta := []byte("{}")
	if len(event.Meta) > 0 {
		encoded, err := json.Marshal(event.Meta)
		if err != nil {
			return fmt.Errorf("audit: encode meta: %w", err)
		}
		meta = encoded
	}
	const query = `INSERT INTO session_audit (id, action, user_id, role, session_id, path, remote_addr, user_agent, meta, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		uuid.New(),
		event.Action,
		event.UserID,
		event.Role,
		event.SessionID,
		event.Path,
		event.RemoteAddr,
		event.UserAgent,
		meta,
		event.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// List implements Repository.
func (s *Store) List(ctx context.Context, q Query) ([]TimelineRow, error) {
	sql, args := buildListQuery(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.Action, &row.Subject, &row.Role, &row.SessionID, &row.Path, &row.RemoteAddr); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Purge deletes rows older than before and reports how many went.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM session_audit WHERE at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildListQuery(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !q.From.IsZero() {
		where = append(where, "at >= "+arg(q.From.UTC()))
	}
	if !q.To.IsZero() {
		where = append(where, "at < "+arg(q.To.UTC()))
	}
	if q.Action != "" {
		where = append(where, "action = "+arg(q.Action))
	}
	if q.Subject != "" {
		where = append(where, "user_id = "+arg(q.Subject))
	}
	var b strings.Builder
	b.WriteString("SELECT at, action, user_id, role, session_id, path, remote_addr FROM session_audit")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY at DESC, id")
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + arg(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + arg(q.Offset))
	}
	return b.String(), args
}
