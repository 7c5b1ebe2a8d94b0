package subscriptions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Subscription mirrors an external calendar source for one principal.
type Subscription struct {
	ID               string
	PrincipalURI     string
	URI              string
	Source           string
	DisplayName      *string
	RefreshRate      *string
	Color            *string
	Order            *int
	StripTodos       bool
	StripAlarms      bool
	StripAttachments bool
}

const createSubscriptionsTableSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
  id text PRIMARY KEY,
  principal_uri text NOT NULL,
  uri text NOT NULL,
  source text NOT NULL,
  displayname text,
  refreshrate text,
  color text,
  ordering integer,
  striptodos boolean NOT NULL DEFAULT false,
  stripalarms boolean NOT NULL DEFAULT false,
  stripattachments boolean NOT NULL DEFAULT false
)`

const createSubscriptionsUniqueIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_principal_uri
ON subscriptions (principal_uri, uri)`

const createSubscriptionsSourceIndexSQL = `
CREATE INDEX IF NOT EXISTS subscriptions_source
ON subscriptions (source)`

const subscriptionColumns = `id, principal_uri, uri, source, displayname,
refreshrate, color, ordering, striptodos, stripalarms, stripattachments`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		createSubscriptionsTableSQL,
		createSubscriptionsUniqueIndexSQL,
		createSubscriptionsSourceIndexSQL,
	} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID,
		&s.PrincipalURI,
		&s.URI,
		&s.Source,
		&s.DisplayName,
		&s.RefreshRate,
		&s.Color,
		&s.Order,
		&s.StripTodos,
		&s.StripAlarms,
		&s.StripAttachments,
	)
	return s, err
}

func (r *Repository) querySubscriptions(ctx context.Context, where string, args ...any) ([]Subscription, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *Repository) FindByPrincipal(ctx context.Context, principalURI string) ([]Subscription, error) {
	return r.querySubscriptions(ctx, `WHERE principal_uri = $1 ORDER BY uri`, principalURI)
}

func (r *Repository) Find(ctx context.Context, principalURI, uri string) (*Subscription, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE principal_uri = $1 AND uri = $2`,
		principalURI, uri)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FindBySource lists every subscription mirroring the given calendar path,
// used by the sharing workflow's cascade delete and by real-time fan-out.
func (r *Repository) FindBySource(ctx context.Context, source string) ([]Subscription, error) {
	return r.querySubscriptions(ctx, `WHERE source = $1 ORDER BY principal_uri, uri`, source)
}

func (r *Repository) Create(ctx context.Context, s Subscription) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO subscriptions
		 (id, principal_uri, uri, source, displayname, refreshrate, color, ordering, striptodos, stripalarms, stripattachments)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.PrincipalURI, s.URI, s.Source, s.DisplayName, s.RefreshRate,
		s.Color, s.Order, s.StripTodos, s.StripAlarms, s.StripAttachments,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", contracts.ErrConflict
		}
		return "", err
	}
	return s.ID, nil
}

func (r *Repository) Update(ctx context.Context, s Subscription) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE subscriptions
		 SET source = $3, displayname = $4, refreshrate = $5, color = $6,
		     ordering = $7, striptodos = $8, stripalarms = $9, stripattachments = $10
		 WHERE principal_uri = $1 AND uri = $2`,
		s.PrincipalURI, s.URI, s.Source, s.DisplayName, s.RefreshRate,
		s.Color, s.Order, s.StripTodos, s.StripAlarms, s.StripAttachments,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, principalURI, uri string) error {
	tag, err := r.Pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE principal_uri = $1 AND uri = $2`,
		principalURI, uri)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}
