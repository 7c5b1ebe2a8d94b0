package changelog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Change is one append-only log entry. Entries are never updated and only
// removed en masse when their calendar is deleted.
type Change struct {
	CalendarID string
	URI        string
	SyncToken  int64
	Operation  contracts.ChangeOp
}

const createChangesTableSQL = `
CREATE TABLE IF NOT EXISTS calendarchanges (
  calendar_id text NOT NULL,
  uri text NOT NULL,
  synctoken bigint NOT NULL,
  operation integer NOT NULL
)`

const createChangesIndexSQL = `
CREATE INDEX IF NOT EXISTS calendarchanges_calendar_token
ON calendarchanges (calendar_id, synctoken)`

// appendChangeSQL records the change at the calendar's current token and
// bumps the counter, in one statement. The single-document update serializes
// concurrent mutators, and no reader can observe the new token without the
// matching change row.
const appendChangeSQL = `
WITH bumped AS (
  UPDATE calendars SET synctoken = synctoken + 1
  WHERE id = $1
  RETURNING synctoken - 1 AS previous
)
INSERT INTO calendarchanges (calendar_id, uri, synctoken, operation)
SELECT $1, $2, previous, $3 FROM bumped`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createChangesTableSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createChangesIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *Repository) Append(ctx context.Context, calendarID, uri string, op contracts.ChangeOp) error {
	tag, err := r.Pool.Exec(ctx, appendChangeSQL, calendarID, uri, int(op))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// ListSince returns changes with synctoken in [from, to), ascending. A limit
// of 0 means unbounded.
func (r *Repository) ListSince(ctx context.Context, calendarID string, from, to int64, limit int) ([]Change, error) {
	query := `SELECT calendar_id, uri, synctoken, operation
	 FROM calendarchanges
	 WHERE calendar_id = $1 AND synctoken >= $2 AND synctoken < $3
	 ORDER BY synctoken ASC`
	args := []any{calendarID, from, to}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]Change, 0)
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.CalendarID, &c.URI, &c.SyncToken, &c.Operation); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *Repository) DeleteByCalendar(ctx context.Context, calendarID string) error {
	_, err := r.Pool.Exec(ctx,
		`DELETE FROM calendarchanges WHERE calendar_id = $1`, calendarID)
	return err
}
