package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linagora/esn-sabre-sub002/internal/app/objects"
	"github.com/linagora/esn-sabre-sub002/internal/app/scheduling"
	"github.com/linagora/esn-sabre-sub002/internal/contracts"
	"github.com/linagora/esn-sabre-sub002/internal/platform/metrics"
)

type fakeObjectRepo struct {
	objects map[string]objects.Object // keyed by calendar+uri
}

func newFakeObjectRepo() *fakeObjectRepo {
	return &fakeObjectRepo{objects: map[string]objects.Object{}}
}

func objKey(calendarID, uri string) string { return calendarID + "\x00" + uri }

func (f *fakeObjectRepo) FindByURI(_ context.Context, calendarID, uri string) (*objects.Object, error) {
	obj, ok := f.objects[objKey(calendarID, uri)]
	if !ok {
		return nil, nil
	}
	copied := obj
	return &copied, nil
}

func (f *fakeObjectRepo) FindByURIs(_ context.Context, calendarID string, uris []string) ([]objects.Object, error) {
	var result []objects.Object
	for _, uri := range uris {
		if obj, ok := f.objects[objKey(calendarID, uri)]; ok {
			result = append(result, obj)
		}
	}
	return result, nil
}

func (f *fakeObjectRepo) FindByCalendar(_ context.Context, calendarID string) ([]objects.Object, error) {
	var result []objects.Object
	for _, obj := range f.objects {
		if obj.CalendarID == calendarID {
			result = append(result, obj)
		}
	}
	return result, nil
}

func (f *fakeObjectRepo) ListURIs(_ context.Context, calendarID string) ([]string, error) {
	var uris []string
	for _, obj := range f.objects {
		if obj.CalendarID == calendarID {
			uris = append(uris, obj.URI)
		}
	}
	return uris, nil
}

func (f *fakeObjectRepo) Query(_ context.Context, calendarID string, _ contracts.ObjectFilter) ([]objects.Object, error) {
	return f.FindByCalendar(context.Background(), calendarID)
}

func (f *fakeObjectRepo) Create(_ context.Context, o objects.Object) error {
	k := objKey(o.CalendarID, o.URI)
	if _, ok := f.objects[k]; ok {
		return contracts.ErrConflict
	}
	f.objects[k] = o
	return nil
}

func (f *fakeObjectRepo) Update(_ context.Context, o objects.Object) error {
	k := objKey(o.CalendarID, o.URI)
	if _, ok := f.objects[k]; !ok {
		return contracts.ErrNotFound
	}
	f.objects[k] = o
	return nil
}

func (f *fakeObjectRepo) Delete(_ context.Context, calendarID, uri string) error {
	k := objKey(calendarID, uri)
	if _, ok := f.objects[k]; !ok {
		return contracts.ErrNotFound
	}
	delete(f.objects, k)
	return nil
}

type fakeChangeAppender struct {
	ops []contracts.ChangeOp
}

func (f *fakeChangeAppender) Append(_ context.Context, _, _ string, op contracts.ChangeOp) error {
	f.ops = append(f.ops, op)
	return nil
}

type recordingPublisher struct {
	events []contracts.BackendEvent
}

func (r *recordingPublisher) publish(event contracts.BackendEvent) error {
	r.events = append(r.events, event)
	return nil
}

func newTestBackend() (*Backend, *recordingPublisher) {
	publisher := &recordingPublisher{}
	b := &Backend{
		Objects: objects.NewService(newFakeObjectRepo(), &fakeChangeAppender{}),
		Publish: publisher.publish,
	}
	return b, publisher
}

func TestSetPublishStatus_Unsupported(t *testing.T) {
	b, _ := newTestBackend()

	err := b.SetPublishStatus(context.Background(), "cal-1/inst-1", true)
	if !errors.Is(err, contracts.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestObjectOperations_RejectMalformedPath(t *testing.T) {
	b, publisher := newTestBackend()
	ctx := context.Background()

	if _, err := b.CreateCalendarObject(ctx, "no-instance", "a.ics", "data", contracts.ObjectMeta{}); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("create: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := b.GetCalendarObject(ctx, "", "a.ics"); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("get: expected ErrInvalidArgument, got %v", err)
	}
	if err := b.DeleteCalendar(ctx, "cal-1/"); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("delete calendar: expected ErrInvalidArgument, got %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("rejected operations must not publish events: %v", publisher.events)
	}
}

func TestCreateCalendarObject_PublishesEvent(t *testing.T) {
	b, publisher := newTestBackend()

	etag, err := b.CreateCalendarObject(context.Background(), "cal-1/inst-1", "meeting.ics", "BEGIN:VCALENDAR", contracts.ObjectMeta{UID: "uid-1"})
	if err != nil {
		t.Fatalf("CreateCalendarObject returned error: %v", err)
	}
	if etag == "" {
		t.Fatal("expected a non-empty etag")
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != contracts.EventObjectCreated {
		t.Fatalf("event type = %q", event.Type)
	}
	if event.CalendarID != "cal-1" || event.URI != "meeting.ics" || event.ETag != etag {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestCreateCalendarObject_FailureStaysSilent(t *testing.T) {
	b, publisher := newTestBackend()
	ctx := context.Background()

	if _, err := b.CreateCalendarObject(ctx, "cal-1/inst-1", "a.ics", "data", contracts.ObjectMeta{}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := b.CreateCalendarObject(ctx, "cal-1/inst-1", "a.ics", "data", contracts.ObjectMeta{}); !errors.Is(err, contracts.ErrConflict) {
		t.Fatalf("duplicate create: expected ErrConflict, got %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("failed create must not publish, got %d events", len(publisher.events))
	}
}

func TestCalendarSourcePath(t *testing.T) {
	b := &Backend{}
	cases := map[[2]string]string{
		{"principals/users/alice", "work"}: "calendars/alice/work.json",
		{"alice", "home"}:                  "calendars/alice/home.json",
	}
	for in, want := range cases {
		if got := b.CalendarSourcePath(in[0], in[1]); got != want {
			t.Errorf("CalendarSourcePath(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestOperationCounter(t *testing.T) {
	registry := metrics.NewRegistry()
	counter := metrics.NewCounterVec(metrics.Opts{
		Name: "calendar_backend_operations_total",
		Help: "Backend operations by name.",
	}, []string{"operation"})
	registry.MustRegister(counter)

	b := &Backend{
		Objects:    objects.NewService(newFakeObjectRepo(), &fakeChangeAppender{}),
		Operations: counter,
	}
	if _, err := b.CreateCalendarObject(context.Background(), "cal-1/inst-1", "a.ics", "data", contracts.ObjectMeta{}); err != nil {
		t.Fatalf("CreateCalendarObject: %v", err)
	}

	recorder := httptest.NewRecorder()
	registry.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := recorder.Body.String()
	want := `calendar_backend_operations_total{operation="create_object"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("metrics output missing %q:\n%s", want, body)
	}
}

func TestSchedulingMessageConversion(t *testing.T) {
	obj := scheduling.Object{
		PrincipalURI: "principals/users/alice",
		URI:          "invite.ics",
		Data:         "BEGIN:VCALENDAR",
	}
	msg := schedulingMessage(obj)
	if msg.PrincipalURI != obj.PrincipalURI || msg.URI != obj.URI || msg.Data != obj.Data {
		t.Fatalf("conversion lost fields: %+v", msg)
	}
}
