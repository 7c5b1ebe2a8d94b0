package calendars

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Calendar is the shared metadata row behind one or more instances.
type Calendar struct {
	ID         string
	SyncToken  int64
	Properties Properties
}

// Properties holds the protocol-visible calendar properties, persisted as
// one JSONB document.
type Properties struct {
	DisplayName string  `json:"displayname,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Order       *int    `json:"order,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
}

// Instance binds a calendar to one principal with its own access level and
// invite state. Exactly one instance per calendar carries AccessSharedOwner.
type Instance struct {
	ID                string
	CalendarID        string
	PrincipalURI      string
	URI               string
	Access            contracts.Access
	ShareHref         string
	ShareDisplayName  *string
	ShareInviteStatus contracts.InviteStatus
	PublicRight       *string
}

// InstanceUpdate is a sparse field update; nil fields stay untouched.
type InstanceUpdate struct {
	Access            *contracts.Access
	ShareDisplayName  *string
	ShareInviteStatus *contracts.InviteStatus
}

const createCalendarsTableSQL = `
CREATE TABLE IF NOT EXISTS calendars (
  id text PRIMARY KEY,
  synctoken bigint NOT NULL DEFAULT 0,
  properties jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createInstancesTableSQL = `
CREATE TABLE IF NOT EXISTS calendarinstances (
  id text PRIMARY KEY,
  calendar_id text NOT NULL,
  principal_uri text NOT NULL,
  uri text NOT NULL,
  access integer NOT NULL,
  share_href text NOT NULL DEFAULT '',
  share_displayname text,
  share_invitestatus integer NOT NULL DEFAULT 1,
  public_right text
)`

const createInstancesUniqueIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS calendarinstances_principal_uri
ON calendarinstances (principal_uri, uri)`

const createInstancesCalendarIndexSQL = `
CREATE INDEX IF NOT EXISTS calendarinstances_calendar
ON calendarinstances (calendar_id)`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createCalendarsTableSQL); err != nil {
		return err
	}
	return nil
}

// FindByIDs returns the calendars that exist among ids; missing ids are
// silently dropped.
func (r *Repository) FindByIDs(ctx context.Context, ids []string) ([]Calendar, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT id, synctoken, properties FROM calendars WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Calendar, 0, len(ids))
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cal)
	}
	return result, rows.Err()
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Calendar, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT id, synctoken, properties FROM calendars WHERE id = $1`, id)
	cal, err := scanCalendar(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cal, nil
}

func scanCalendar(row pgx.Row) (Calendar, error) {
	var cal Calendar
	var props []byte
	if err := row.Scan(&cal.ID, &cal.SyncToken, &props); err != nil {
		return Calendar{}, err
	}
	if err := json.Unmarshal(props, &cal.Properties); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}

// Create inserts a calendar with a fresh id and a zero sync token.
func (r *Repository) Create(ctx context.Context, props Properties) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	_, err = r.Pool.Exec(ctx,
		`INSERT INTO calendars (id, synctoken, properties) VALUES ($1, 0, $2)`,
		id, raw,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateProperties(ctx context.Context, id string, props Properties) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	tag, err := r.Pool.Exec(ctx,
		`UPDATE calendars SET properties = $2 WHERE id = $1`, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM calendars WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// SyncToken reads the current token. The found flag is false for a missing
// calendar; reads never fail on absence.
func (r *Repository) SyncToken(ctx context.Context, id string) (int64, bool, error) {
	var token int64
	err := r.Pool.QueryRow(ctx,
		`SELECT synctoken FROM calendars WHERE id = $1`, id).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return token, true, nil
}

type InstanceRepository struct {
	Pool *pgxpool.Pool
}

func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{Pool: pool}
}

func (r *InstanceRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createInstancesTableSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createInstancesUniqueIndexSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createInstancesCalendarIndexSQL); err != nil {
		return err
	}
	return nil
}

const instanceColumns = `id, calendar_id, principal_uri, uri, access,
share_href, share_displayname, share_invitestatus, public_right`

func scanInstance(row pgx.Row) (Instance, error) {
	var inst Instance
	err := row.Scan(
		&inst.ID,
		&inst.CalendarID,
		&inst.PrincipalURI,
		&inst.URI,
		&inst.Access,
		&inst.ShareHref,
		&inst.ShareDisplayName,
		&inst.ShareInviteStatus,
		&inst.PublicRight,
	)
	return inst, err
}

func (r *InstanceRepository) queryInstances(ctx context.Context, where string, args ...any) ([]Instance, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM calendarinstances `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Instance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (r *InstanceRepository) queryInstance(ctx context.Context, where string, args ...any) (*Instance, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM calendarinstances `+where, args...)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *InstanceRepository) FindByPrincipal(ctx context.Context, principalURI string) ([]Instance, error) {
	return r.queryInstances(ctx, `WHERE principal_uri = $1 ORDER BY uri`, principalURI)
}

func (r *InstanceRepository) FindByPrincipalAndURI(ctx context.Context, principalURI, uri string, access []contracts.Access) (*Instance, error) {
	if len(access) == 0 {
		return r.queryInstance(ctx, `WHERE principal_uri = $1 AND uri = $2`, principalURI, uri)
	}
	levels := make([]int, 0, len(access))
	for _, a := range access {
		levels = append(levels, int(a))
	}
	return r.queryInstance(ctx,
		`WHERE principal_uri = $1 AND uri = $2 AND access = ANY($3)`,
		principalURI, uri, levels)
}

func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*Instance, error) {
	return r.queryInstance(ctx, `WHERE id = $1`, id)
}

func (r *InstanceRepository) FindByCalendar(ctx context.Context, calendarID string) ([]Instance, error) {
	return r.queryInstances(ctx, `WHERE calendar_id = $1 ORDER BY access, uri`, calendarID)
}

// FindOwnerInstance returns the single SHAREDOWNER-bound instance, nil when
// the calendar is unknown.
func (r *InstanceRepository) FindOwnerInstance(ctx context.Context, calendarID string) (*Instance, error) {
	return r.queryInstance(ctx,
		`WHERE calendar_id = $1 AND access = $2`,
		calendarID, int(contracts.AccessSharedOwner))
}

func (r *InstanceRepository) FindByShareHref(ctx context.Context, calendarID, shareHref string) (*Instance, error) {
	return r.queryInstance(ctx,
		`WHERE calendar_id = $1 AND share_href = $2`, calendarID, shareHref)
}

func (r *InstanceRepository) FindOwnedCalendarIDs(ctx context.Context, principalURI string) ([]string, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT calendar_id FROM calendarinstances
		 WHERE principal_uri = $1 AND access = $2`,
		principalURI, int(contracts.AccessSharedOwner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts an instance. A duplicate (principalUri, uri) pair violates
// the unique index and surfaces as ErrConflict.
func (r *InstanceRepository) Create(ctx context.Context, inst Instance) (string, error) {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.ShareInviteStatus == 0 {
		inst.ShareInviteStatus = contracts.InviteNoInvite
	}
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO calendarinstances
		 (id, calendar_id, principal_uri, uri, access, share_href, share_displayname, share_invitestatus, public_right)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inst.ID, inst.CalendarID, inst.PrincipalURI, inst.URI, int(inst.Access),
		inst.ShareHref, inst.ShareDisplayName, int(inst.ShareInviteStatus), inst.PublicRight,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", contracts.ErrConflict
		}
		return "", err
	}
	return inst.ID, nil
}

func (r *InstanceRepository) Update(ctx context.Context, id string, update InstanceUpdate) error {
	set := make([]string, 0, 3)
	args := []any{id}
	if update.Access != nil {
		args = append(args, int(*update.Access))
		set = append(set, "access = $"+strconv.Itoa(len(args)))
	}
	if update.ShareDisplayName != nil {
		args = append(args, *update.ShareDisplayName)
		set = append(set, "share_displayname = $"+strconv.Itoa(len(args)))
	}
	if update.ShareInviteStatus != nil {
		args = append(args, int(*update.ShareInviteStatus))
		set = append(set, "share_invitestatus = $"+strconv.Itoa(len(args)))
	}
	if len(set) == 0 {
		return nil
	}
	tag, err := r.Pool.Exec(ctx,
		`UPDATE calendarinstances SET `+strings.Join(set, ", ")+` WHERE id = $1`,
		args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *InstanceRepository) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM calendarinstances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *InstanceRepository) DeleteByShareHref(ctx context.Context, calendarID, shareHref string) error {
	_, err := r.Pool.Exec(ctx,
		`DELETE FROM calendarinstances WHERE calendar_id = $1 AND share_href = $2`,
		calendarID, shareHref)
	return err
}

func (r *InstanceRepository) DeleteByCalendar(ctx context.Context, calendarID string) error {
	_, err := r.Pool.Exec(ctx,
		`DELETE FROM calendarinstances WHERE calendar_id = $1`, calendarID)
	return err
}

// SetPublicRight updates the public right across every instance of the
// calendar; a nil right revokes it.
func (r *InstanceRepository) SetPublicRight(ctx context.Context, calendarID string, right *string) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE calendarinstances SET public_right = $2 WHERE calendar_id = $1`,
		calendarID, right)
	return err
}

func (r *InstanceRepository) SetInviteStatusByID(ctx context.Context, id string, status contracts.InviteStatus) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE calendarinstances SET share_invitestatus = $2 WHERE id = $1`,
		id, int(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *InstanceRepository) SetInviteStatusForOwner(ctx context.Context, calendarID string, status contracts.InviteStatus) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE calendarinstances SET share_invitestatus = $3
		 WHERE calendar_id = $1 AND access = $2`,
		calendarID, int(contracts.AccessSharedOwner), int(status))
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
