package changelog

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

type fakeTokens struct {
	token int64
	found bool
	err   error
}

func (f *fakeTokens) SyncToken(_ context.Context, _ string) (int64, bool, error) {
	return f.token, f.found, f.err
}

type fakeObjectURIs struct {
	uris []string
}

func (f *fakeObjectURIs) ListURIs(_ context.Context, _ string) ([]string, error) {
	return f.uris, nil
}

type fakeChangeLog struct {
	changes  []Change
	gotFrom  int64
	gotTo    int64
	gotLimit int
}

func (f *fakeChangeLog) ListSince(_ context.Context, _ string, from, to int64, limit int) ([]Change, error) {
	f.gotFrom = from
	f.gotTo = to
	f.gotLimit = limit
	return f.changes, nil
}

func TestChanges_UnknownCalendarSignalsNoSupport(t *testing.T) {
	svc := NewService(&fakeTokens{found: false}, &fakeObjectURIs{}, &fakeChangeLog{})

	set, err := svc.Changes(context.Background(), "cal-1", "", 1, 0)
	if err != nil {
		t.Fatalf("Changes returned error: %v", err)
	}
	if set != nil {
		t.Fatalf("expected nil change set for unknown calendar, got %+v", set)
	}
}

func TestChanges_InitialSyncReportsAllObjectsAdded(t *testing.T) {
	svc := NewService(
		&fakeTokens{token: 7, found: true},
		&fakeObjectURIs{uris: []string{"a.ics", "b.ics"}},
		&fakeChangeLog{},
	)

	set, err := svc.Changes(context.Background(), "cal-1", "", 1, 0)
	if err != nil {
		t.Fatalf("Changes returned error: %v", err)
	}
	if set.SyncToken != "7" {
		t.Fatalf("expected sync token 7, got %q", set.SyncToken)
	}
	if !reflect.DeepEqual(set.Added, []string{"a.ics", "b.ics"}) {
		t.Fatalf("unexpected added list: %v", set.Added)
	}
	if len(set.Modified) != 0 || len(set.Deleted) != 0 {
		t.Fatalf("initial sync must not report modified/deleted: %+v", set)
	}
}

func TestChanges_WindowAndBuckets(t *testing.T) {
	log := &fakeChangeLog{changes: []Change{
		{URI: "a.ics", SyncToken: 2, Operation: contracts.ChangeAdded},
		{URI: "b.ics", SyncToken: 3, Operation: contracts.ChangeModified},
		{URI: "c.ics", SyncToken: 4, Operation: contracts.ChangeDeleted},
	}}
	svc := NewService(&fakeTokens{token: 5, found: true}, &fakeObjectURIs{}, log)

	set, err := svc.Changes(context.Background(), "cal-1", "2", 1, 50)
	if err != nil {
		t.Fatalf("Changes returned error: %v", err)
	}
	if log.gotFrom != 2 || log.gotTo != 5 || log.gotLimit != 50 {
		t.Fatalf("unexpected window [%d, %d) limit %d", log.gotFrom, log.gotTo, log.gotLimit)
	}
	if !reflect.DeepEqual(set.Added, []string{"a.ics"}) ||
		!reflect.DeepEqual(set.Modified, []string{"b.ics"}) ||
		!reflect.DeepEqual(set.Deleted, []string{"c.ics"}) {
		t.Fatalf("unexpected buckets: %+v", set)
	}
}

func TestChanges_CollapsesToLastOperation(t *testing.T) {
	// Create, update, delete of one uri within a single window must surface
	// only as deleted.
	log := &fakeChangeLog{changes: []Change{
		{URI: "a.ics", SyncToken: 0, Operation: contracts.ChangeAdded},
		{URI: "a.ics", SyncToken: 1, Operation: contracts.ChangeModified},
		{URI: "a.ics", SyncToken: 2, Operation: contracts.ChangeDeleted},
	}}
	svc := NewService(&fakeTokens{token: 3, found: true}, &fakeObjectURIs{}, log)

	set, err := svc.Changes(context.Background(), "cal-1", "0", 1, 0)
	if err != nil {
		t.Fatalf("Changes returned error: %v", err)
	}
	if len(set.Added) != 0 || len(set.Modified) != 0 {
		t.Fatalf("collapsed uri leaked into added/modified: %+v", set)
	}
	if !reflect.DeepEqual(set.Deleted, []string{"a.ics"}) {
		t.Fatalf("expected a.ics under deleted only, got %+v", set)
	}
}

func TestChanges_InvalidClientToken(t *testing.T) {
	svc := NewService(&fakeTokens{token: 3, found: true}, &fakeObjectURIs{}, &fakeChangeLog{})

	_, err := svc.Changes(context.Background(), "cal-1", "not-a-number", 1, 0)
	if !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
