package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Object is one pending iTip message in a principal's inbox.
type Object struct {
	PrincipalURI string
	URI          string
	Data         string
	DateCreated  time.Time
}

const createSchedulingTableSQL = `
CREATE TABLE IF NOT EXISTS schedulingobjects (
  principal_uri text NOT NULL,
  uri text NOT NULL,
  calendardata text NOT NULL,
  datecreated timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (principal_uri, uri)
)`

const createSchedulingExpiryIndexSQL = `
CREATE INDEX IF NOT EXISTS schedulingobjects_datecreated
ON schedulingobjects (datecreated)`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createSchedulingTableSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createSchedulingExpiryIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *Repository) Find(ctx context.Context, principalURI, uri string) (*Object, error) {
	var o Object
	err := r.Pool.QueryRow(ctx,
		`SELECT principal_uri, uri, calendardata, datecreated
		 FROM schedulingobjects
		 WHERE principal_uri = $1 AND uri = $2`,
		principalURI, uri,
	).Scan(&o.PrincipalURI, &o.URI, &o.Data, &o.DateCreated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repository) FindByPrincipal(ctx context.Context, principalURI string) ([]Object, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT principal_uri, uri, calendardata, datecreated
		 FROM schedulingobjects
		 WHERE principal_uri = $1
		 ORDER BY datecreated`,
		principalURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Object, 0)
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.PrincipalURI, &o.URI, &o.Data, &o.DateCreated); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *Repository) Create(ctx context.Context, o Object) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO schedulingobjects (principal_uri, uri, calendardata, datecreated)
		 VALUES ($1, $2, $3, $4)`,
		o.PrincipalURI, o.URI, o.Data, o.DateCreated)
	return err
}

func (r *Repository) Delete(ctx context.Context, principalURI, uri string) error {
	tag, err := r.Pool.Exec(ctx,
		`DELETE FROM schedulingobjects WHERE principal_uri = $1 AND uri = $2`,
		principalURI, uri)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// DeleteExpired removes inbox messages created before the cutoff.
func (r *Repository) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.Pool.Exec(ctx,
		`DELETE FROM schedulingobjects WHERE datecreated < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
