package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

type fakeRepository struct {
	objects map[string]Object // keyed by principal+uri
	expired []time.Time
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{objects: map[string]Object{}}
}

func key(principalURI, uri string) string { return principalURI + "\x00" + uri }

func (f *fakeRepository) Find(_ context.Context, principalURI, uri string) (*Object, error) {
	obj, ok := f.objects[key(principalURI, uri)]
	if !ok {
		return nil, nil
	}
	copied := obj
	return &copied, nil
}

func (f *fakeRepository) FindByPrincipal(_ context.Context, principalURI string) ([]Object, error) {
	var result []Object
	for _, obj := range f.objects {
		if obj.PrincipalURI == principalURI {
			result = append(result, obj)
		}
	}
	return result, nil
}

func (f *fakeRepository) Create(_ context.Context, o Object) error {
	k := key(o.PrincipalURI, o.URI)
	if _, ok := f.objects[k]; ok {
		return contracts.ErrConflict
	}
	f.objects[k] = o
	return nil
}

func (f *fakeRepository) Delete(_ context.Context, principalURI, uri string) error {
	k := key(principalURI, uri)
	if _, ok := f.objects[k]; !ok {
		return contracts.ErrNotFound
	}
	delete(f.objects, k)
	return nil
}

func (f *fakeRepository) DeleteExpired(_ context.Context, olderThan time.Time) (int64, error) {
	f.expired = append(f.expired, olderThan)
	var removed int64
	for k, obj := range f.objects {
		if obj.DateCreated.Before(olderThan) {
			delete(f.objects, k)
			removed++
		}
	}
	return removed, nil
}

func TestCreate_StampsCreationTime(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }
	ctx := context.Background()

	if err := svc.Create(ctx, "principals/users/alice", "invite-1.ics", "BEGIN:VCALENDAR"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	obj, err := svc.Get(ctx, "principals/users/alice", "invite-1.ics")
	if err != nil || obj == nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if !obj.DateCreated.Equal(now) {
		t.Fatalf("creation time not stamped: got %v want %v", obj.DateCreated, now)
	}
	if obj.Data != "BEGIN:VCALENDAR" {
		t.Fatalf("payload not stored: %q", obj.Data)
	}
}

func TestGet_MissingMessage(t *testing.T) {
	svc := NewService(newFakeRepository())

	obj, err := svc.Get(context.Background(), "principals/users/alice", "none.ics")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if obj != nil {
		t.Fatalf("expected nil for missing message, got %+v", obj)
	}
}

func TestStartReaper_ZeroRetentionRegistersNothing(t *testing.T) {
	svc := NewService(newFakeRepository())
	c := cron.New()

	id, err := svc.StartReaper(c, 0)
	if err != nil {
		t.Fatalf("StartReaper returned error: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected no entry for zero retention, got id %v", id)
	}
	if len(c.Entries()) != 0 {
		t.Fatalf("cron should stay empty, has %d entries", len(c.Entries()))
	}
}

func TestStartReaper_RegistersHourlyJob(t *testing.T) {
	svc := NewService(newFakeRepository())
	c := cron.New()

	id, err := svc.StartReaper(c, 30)
	if err != nil {
		t.Fatalf("StartReaper returned error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a registered entry id")
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected 1 cron entry, got %d", len(c.Entries()))
	}
}

func TestReaperJob_PurgesOnlyExpiredMessages(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }
	ctx := context.Background()

	repo.objects[key("principals/users/alice", "old.ics")] = Object{
		PrincipalURI: "principals/users/alice",
		URI:          "old.ics",
		DateCreated:  now.Add(-31 * 24 * time.Hour),
	}
	repo.objects[key("principals/users/alice", "fresh.ics")] = Object{
		PrincipalURI: "principals/users/alice",
		URI:          "fresh.ics",
		DateCreated:  now.Add(-24 * time.Hour),
	}

	c := cron.New()
	if _, err := svc.StartReaper(c, 30); err != nil {
		t.Fatalf("StartReaper: %v", err)
	}
	// Run the registered job directly instead of waiting on the schedule.
	c.Entries()[0].Job.Run()

	if len(repo.expired) != 1 {
		t.Fatalf("expected one purge call, got %d", len(repo.expired))
	}
	wantCutoff := now.Add(-30 * 24 * time.Hour)
	if !repo.expired[0].Equal(wantCutoff) {
		t.Fatalf("cutoff %v, want %v", repo.expired[0], wantCutoff)
	}
	if _, ok := repo.objects[key("principals/users/alice", "old.ics")]; ok {
		t.Fatal("expired message survived the reaper")
	}
	if _, ok := repo.objects[key("principals/users/alice", "fresh.ics")]; !ok {
		t.Fatal("fresh message was purged")
	}

	msgs, err := svc.List(ctx, "principals/users/alice")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected 1 remaining message, got %d (%v)", len(msgs), err)
	}
}
