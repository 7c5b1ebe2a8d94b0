package objects

import (
	"context"
	"errors"
	"testing"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

type fakeRepository struct {
	stored    map[string]Object
	createErr error
	log       *[]string
}

func newFakeRepository(log *[]string) *fakeRepository {
	return &fakeRepository{stored: map[string]Object{}, log: log}
}

func (f *fakeRepository) record(step string) {
	if f.log != nil {
		*f.log = append(*f.log, step)
	}
}

func (f *fakeRepository) FindByURI(_ context.Context, calendarID, uri string) (*Object, error) {
	o, ok := f.stored[calendarID+"/"+uri]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeRepository) FindByURIs(_ context.Context, calendarID string, uris []string) ([]Object, error) {
	result := make([]Object, 0, len(uris))
	for _, uri := range uris {
		if o, ok := f.stored[calendarID+"/"+uri]; ok {
			result = append(result, o)
		}
	}
	return result, nil
}

func (f *fakeRepository) FindByCalendar(_ context.Context, calendarID string) ([]Object, error) {
	result := make([]Object, 0)
	for _, o := range f.stored {
		if o.CalendarID == calendarID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (f *fakeRepository) ListURIs(_ context.Context, calendarID string) ([]string, error) {
	uris := make([]string, 0)
	for _, o := range f.stored {
		if o.CalendarID == calendarID {
			uris = append(uris, o.URI)
		}
	}
	return uris, nil
}

func (f *fakeRepository) Query(_ context.Context, calendarID string, filter contracts.ObjectFilter) ([]Object, error) {
	result := make([]Object, 0)
	for _, o := range f.stored {
		if o.CalendarID != calendarID {
			continue
		}
		if filter.ComponentType != "" && o.ComponentType != filter.ComponentType {
			continue
		}
		if filter.Start != nil && (o.LastOccurrence == nil || !o.LastOccurrence.After(*filter.Start)) {
			continue
		}
		if filter.End != nil && (o.FirstOccurrence == nil || !o.FirstOccurrence.Before(*filter.End)) {
			continue
		}
		result = append(result, o)
	}
	return result, nil
}

func (f *fakeRepository) Create(_ context.Context, o Object) error {
	if f.createErr != nil {
		return f.createErr
	}
	key := o.CalendarID + "/" + o.URI
	if _, exists := f.stored[key]; exists {
		return contracts.ErrConflict
	}
	f.record("write")
	f.stored[key] = o
	return nil
}

func (f *fakeRepository) Update(_ context.Context, o Object) error {
	key := o.CalendarID + "/" + o.URI
	if _, exists := f.stored[key]; !exists {
		return contracts.ErrNotFound
	}
	f.record("write")
	f.stored[key] = o
	return nil
}

func (f *fakeRepository) Delete(_ context.Context, calendarID, uri string) error {
	key := calendarID + "/" + uri
	if _, exists := f.stored[key]; !exists {
		return contracts.ErrNotFound
	}
	f.record("write")
	delete(f.stored, key)
	return nil
}

type fakeChanges struct {
	appended []contracts.ChangeOp
	log      *[]string
}

func (f *fakeChanges) Append(_ context.Context, _, _ string, op contracts.ChangeOp) error {
	if f.log != nil {
		*f.log = append(*f.log, "append")
	}
	f.appended = append(f.appended, op)
	return nil
}

func TestCreate_WritesObjectBeforeAppendingChange(t *testing.T) {
	var steps []string
	repo := newFakeRepository(&steps)
	changes := &fakeChanges{log: &steps}
	svc := NewService(repo, changes)

	etag, err := svc.Create(context.Background(), "cal-1", "a.ics", "BEGIN:VCALENDAR", contracts.ObjectMeta{UID: "uid-1"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if etag == "" {
		t.Fatal("expected a non-empty etag")
	}
	if len(steps) != 2 || steps[0] != "write" || steps[1] != "append" {
		t.Fatalf("expected write before append, got %v", steps)
	}
	if len(changes.appended) != 1 || changes.appended[0] != contracts.ChangeAdded {
		t.Fatalf("expected one Added change, got %v", changes.appended)
	}
}

func TestCreate_FailedWriteAppendsNothing(t *testing.T) {
	repo := newFakeRepository(nil)
	repo.createErr = errors.New("store down")
	changes := &fakeChanges{}
	svc := NewService(repo, changes)

	if _, err := svc.Create(context.Background(), "cal-1", "a.ics", "data", contracts.ObjectMeta{}); err == nil {
		t.Fatal("expected error from failed write")
	}
	if len(changes.appended) != 0 {
		t.Fatalf("change log advanced despite failed write: %v", changes.appended)
	}
}

func TestRoundTrip_ETagChangesOnUpdate(t *testing.T) {
	repo := newFakeRepository(nil)
	changes := &fakeChanges{}
	svc := NewService(repo, changes)
	ctx := context.Background()

	first, err := svc.Create(ctx, "cal-1", "a.ics", "version one", contracts.ObjectMeta{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := svc.Get(ctx, "cal-1", "a.ics")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || got.Data != "version one" {
		t.Fatalf("unexpected round-trip object: %+v", got)
	}
	if got.ETag != first {
		t.Fatalf("stored etag %q differs from returned %q", got.ETag, first)
	}

	second, err := svc.Update(ctx, "cal-1", "a.ics", "version two", contracts.ObjectMeta{})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if second == first {
		t.Fatal("etag did not change on update")
	}
}

func TestMutations_AppendMatchingOperations(t *testing.T) {
	repo := newFakeRepository(nil)
	changes := &fakeChanges{}
	svc := NewService(repo, changes)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "cal-1", "a.ics", "one", contracts.ObjectMeta{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Update(ctx, "cal-1", "a.ics", "two", contracts.ObjectMeta{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := svc.Delete(ctx, "cal-1", "a.ics"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []contracts.ChangeOp{contracts.ChangeAdded, contracts.ChangeModified, contracts.ChangeDeleted}
	if len(changes.appended) != len(want) {
		t.Fatalf("expected %d changes, got %v", len(want), changes.appended)
	}
	for i, op := range want {
		if changes.appended[i] != op {
			t.Fatalf("change %d: expected %v, got %v", i, op, changes.appended[i])
		}
	}
}

func TestDelete_MissingObject(t *testing.T) {
	svc := NewService(newFakeRepository(nil), &fakeChanges{})
	err := svc.Delete(context.Background(), "cal-1", "ghost.ics")
	if !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
