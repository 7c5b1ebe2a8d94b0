package objects

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Object is one stored calendar resource. FirstOccurrence and LastOccurrence
// are precomputed bounds so range queries never re-parse Data.
type Object struct {
	CalendarID      string
	URI             string
	UID             string
	ComponentType   string
	FirstOccurrence *time.Time
	LastOccurrence  *time.Time
	Data            string
	ETag            string
	Size            int
	LastModified    time.Time
}

const createObjectsTableSQL = `
CREATE TABLE IF NOT EXISTS calendarobjects (
  calendar_id text NOT NULL,
  uri text NOT NULL,
  uid text NOT NULL DEFAULT '',
  component_type text NOT NULL DEFAULT '',
  first_occurrence timestamptz,
  last_occurrence timestamptz,
  calendardata text NOT NULL,
  etag text NOT NULL,
  size integer NOT NULL DEFAULT 0,
  lastmodified timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (calendar_id, uri)
)`

const createObjectsCalendarIndexSQL = `
CREATE INDEX IF NOT EXISTS calendarobjects_calendar
ON calendarobjects (calendar_id)`

const createObjectsTimeRangeIndexSQL = `
CREATE INDEX IF NOT EXISTS calendarobjects_timerange
ON calendarobjects (calendar_id, component_type, first_occurrence, last_occurrence)`

const createObjectsUIDIndexSQL = `
CREATE INDEX IF NOT EXISTS calendarobjects_uid
ON calendarobjects (uid)`

const objectColumns = `calendar_id, uri, uid, component_type,
first_occurrence, last_occurrence, calendardata, etag, size, lastmodified`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		createObjectsTableSQL,
		createObjectsCalendarIndexSQL,
		createObjectsTimeRangeIndexSQL,
		createObjectsUIDIndexSQL,
	} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func scanObject(row pgx.Row) (Object, error) {
	var o Object
	err := row.Scan(
		&o.CalendarID,
		&o.URI,
		&o.UID,
		&o.ComponentType,
		&o.FirstOccurrence,
		&o.LastOccurrence,
		&o.Data,
		&o.ETag,
		&o.Size,
		&o.LastModified,
	)
	return o, err
}

func (r *Repository) queryObjects(ctx context.Context, where string, args ...any) ([]Object, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+objectColumns+` FROM calendarobjects `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Object, 0)
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *Repository) FindByCalendar(ctx context.Context, calendarID string) ([]Object, error) {
	return r.queryObjects(ctx, `WHERE calendar_id = $1 ORDER BY uri`, calendarID)
}

func (r *Repository) FindByURI(ctx context.Context, calendarID, uri string) (*Object, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+objectColumns+` FROM calendarobjects WHERE calendar_id = $1 AND uri = $2`,
		calendarID, uri)
	o, err := scanObject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repository) FindByURIs(ctx context.Context, calendarID string, uris []string) ([]Object, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	return r.queryObjects(ctx,
		`WHERE calendar_id = $1 AND uri = ANY($2) ORDER BY uri`, calendarID, uris)
}

// FindByUID searches for an object by iCalendar UID across a set of
// calendars, used for scheduling de-duplication.
func (r *Repository) FindByUID(ctx context.Context, calendarIDs []string, uid string) ([]Object, error) {
	if len(calendarIDs) == 0 {
		return nil, nil
	}
	return r.queryObjects(ctx,
		`WHERE calendar_id = ANY($1) AND uid = $2`, calendarIDs, uid)
}

func (r *Repository) FindByURIAcrossCalendars(ctx context.Context, calendarIDs []string, uri string) ([]Object, error) {
	if len(calendarIDs) == 0 {
		return nil, nil
	}
	return r.queryObjects(ctx,
		`WHERE calendar_id = ANY($1) AND uri = $2`, calendarIDs, uri)
}

func (r *Repository) ListURIs(ctx context.Context, calendarID string) ([]string, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT uri FROM calendarobjects WHERE calendar_id = $1 ORDER BY uri`,
		calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uris := make([]string, 0)
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, err
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}

// Query applies a component/time-range filter. The window overlap test is
// half-open on both sides: last_occurrence > start, first_occurrence < end.
func (r *Repository) Query(ctx context.Context, calendarID string, filter contracts.ObjectFilter) ([]Object, error) {
	where := `WHERE calendar_id = $1`
	args := []any{calendarID}
	if filter.ComponentType != "" {
		args = append(args, filter.ComponentType)
		where += ` AND component_type = $` + strconv.Itoa(len(args))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		where += ` AND last_occurrence > $` + strconv.Itoa(len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		where += ` AND first_occurrence < $` + strconv.Itoa(len(args))
	}
	return r.queryObjects(ctx, where+` ORDER BY uri`, args...)
}

func (r *Repository) Create(ctx context.Context, o Object) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO calendarobjects
		 (calendar_id, uri, uid, component_type, first_occurrence, last_occurrence, calendardata, etag, size, lastmodified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		o.CalendarID, o.URI, o.UID, o.ComponentType,
		o.FirstOccurrence, o.LastOccurrence, o.Data, o.ETag, o.Size,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return contracts.ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, o Object) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE calendarobjects
		 SET uid = $3, component_type = $4, first_occurrence = $5, last_occurrence = $6,
		     calendardata = $7, etag = $8, size = $9, lastmodified = now()
		 WHERE calendar_id = $1 AND uri = $2`,
		o.CalendarID, o.URI, o.UID, o.ComponentType,
		o.FirstOccurrence, o.LastOccurrence, o.Data, o.ETag, o.Size,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, calendarID, uri string) error {
	tag, err := r.Pool.Exec(ctx,
		`DELETE FROM calendarobjects WHERE calendar_id = $1 AND uri = $2`,
		calendarID, uri)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteByCalendar(ctx context.Context, calendarID string) error {
	_, err := r.Pool.Exec(ctx,
		`DELETE FROM calendarobjects WHERE calendar_id = $1`, calendarID)
	return err
}
