// Package backend exposes the storage subsystem to the external protocol
// engine through the four support contracts plus calendar/object CRUD.
package backend

import (
	"context"

	"github.com/linagora/esn-sabre-sub002/internal/app/calendars"
	"github.com/linagora/esn-sabre-sub002/internal/app/changelog"
	"github.com/linagora/esn-sabre-sub002/internal/app/objects"
	"github.com/linagora/esn-sabre-sub002/internal/app/scheduling"
	"github.com/linagora/esn-sabre-sub002/internal/app/sharing"
	"github.com/linagora/esn-sabre-sub002/internal/app/subscriptions"
	"github.com/linagora/esn-sabre-sub002/internal/contracts"
	"github.com/linagora/esn-sabre-sub002/internal/platform/metrics"
)

type Backend struct {
	Calendars     *calendars.Service
	Objects       *objects.Service
	Changelog     *changelog.Service
	Sharing       *sharing.Service
	Scheduling    *scheduling.Service
	Subscriptions *subscriptions.Service

	Publish    contracts.PublishFunc
	Operations *metrics.CounterVec
}

var (
	_ contracts.SyncSupport         = (*Backend)(nil)
	_ contracts.SharingSupport      = (*Backend)(nil)
	_ contracts.SchedulingSupport   = (*Backend)(nil)
	_ contracts.SubscriptionSupport = (*Backend)(nil)
)

// CalendarSourcePath renders the path dependent subscriptions are keyed by.
// It satisfies the PathResolver collaborator of the calendar and sharing
// services.
func (b *Backend) CalendarSourcePath(principalURI, calendarURI string) string {
	return "calendars/" + lastSegment(principalURI) + "/" + calendarURI + ".json"
}

func lastSegment(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '/' {
			return uri[i+1:]
		}
	}
	return uri
}

func (b *Backend) count(operation string) {
	if b.Operations != nil {
		b.Operations.WithLabelValues(operation).Inc()
	}
}

func (b *Backend) publish(event contracts.BackendEvent) {
	if b.Publish != nil {
		_ = b.Publish(event)
	}
}

// --- Calendar CRUD ---

func (b *Backend) GetCalendarsForUser(ctx context.Context, principalURI string) ([]contracts.CalendarInfo, error) {
	b.count("calendars_for_user")
	return b.Calendars.CalendarsForUser(ctx, principalURI)
}

func (b *Backend) CreateCalendar(ctx context.Context, principalURI, uri string, props calendars.Properties) (string, error) {
	b.count("create_calendar")
	path, err := b.Calendars.Create(ctx, principalURI, uri, props)
	if err != nil {
		return "", err
	}
	b.publish(contracts.BackendEvent{
		Type:         contracts.EventCalendarCreated,
		CalendarID:   path.CalendarID,
		PrincipalURI: principalURI,
		URI:          uri,
	})
	return path.String(), nil
}

func (b *Backend) UpdateCalendar(ctx context.Context, path string, props calendars.Properties) error {
	b.count("update_calendar")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return err
	}
	if err := b.Calendars.Update(ctx, parsed, props); err != nil {
		return err
	}
	b.publish(contracts.BackendEvent{
		Type:       contracts.EventCalendarUpdated,
		CalendarID: parsed.CalendarID,
	})
	return nil
}

func (b *Backend) DeleteCalendar(ctx context.Context, path string) error {
	b.count("delete_calendar")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return err
	}
	if err := b.Calendars.Delete(ctx, parsed); err != nil {
		return err
	}
	b.publish(contracts.BackendEvent{
		Type:       contracts.EventCalendarDeleted,
		CalendarID: parsed.CalendarID,
	})
	return nil
}

// --- Calendar object CRUD ---

func (b *Backend) GetCalendarObject(ctx context.Context, path, uri string) (*objects.Object, error) {
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return nil, err
	}
	return b.Objects.Get(ctx, parsed.CalendarID, uri)
}

func (b *Backend) GetMultipleCalendarObjects(ctx context.Context, path string, uris []string) ([]objects.Object, error) {
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return nil, err
	}
	return b.Objects.GetMultiple(ctx, parsed.CalendarID, uris)
}

func (b *Backend) GetAllCalendarObjectURIs(ctx context.Context, path string) ([]string, error) {
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return nil, err
	}
	return b.Objects.GetAllURIs(ctx, parsed.CalendarID)
}

func (b *Backend) CalendarQuery(ctx context.Context, path string, filter contracts.ObjectFilter) ([]string, error) {
	b.count("calendar_query")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return nil, err
	}
	return b.Objects.CalendarQuery(ctx, parsed.CalendarID, filter)
}

func (b *Backend) CalendarQueryWithAllData(ctx context.Context, path string, filter contracts.ObjectFilter) ([]objects.Object, error) {
	b.count("calendar_query")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return nil, err
	}
	return b.Objects.CalendarQueryWithAllData(ctx, parsed.CalendarID, filter)
}

func (b *Backend) CreateCalendarObject(ctx context.Context, path, uri, data string, meta contracts.ObjectMeta) (string, error) {
	b.count("create_object")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return "", err
	}
	etag, err := b.Objects.Create(ctx, parsed.CalendarID, uri, data, meta)
	if err != nil {
		return "", err
	}
	b.publish(contracts.BackendEvent{
		Type:       contracts.EventObjectCreated,
		CalendarID: parsed.CalendarID,
		URI:        uri,
		ETag:       etag,
	})
	return etag, nil
}

func (b *Backend) UpdateCalendarObject(ctx context.Context, path, uri, data string, meta contracts.ObjectMeta) (string, error) {
	b.count("update_object")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return "", err
	}
	etag, err := b.Objects.Update(ctx, parsed.CalendarID, uri, data, meta)
	if err != nil {
		return "", err
	}
	b.publish(contracts.BackendEvent{
		Type:       contracts.EventObjectUpdated,
		CalendarID: parsed.CalendarID,
		URI:        uri,
		ETag:       etag,
	})
	return etag, nil
}

func (b *Backend) DeleteCalendarObject(ctx context.Context, path, uri string) error {
	b.count("delete_object")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return err
	}
	if err := b.Objects.Delete(ctx, parsed.CalendarID, uri); err != nil {
		return err
	}
	b.publish(contracts.BackendEvent{
		Type:       contracts.EventObjectDeleted,
		CalendarID: parsed.CalendarID,
		URI:        uri,
	})
	return nil
}

func (b *Backend) GetCalendarObjectByUID(ctx context.Context, principalURI, uid string) (string, error) {
	return b.Calendars.ObjectByUID(ctx, principalURI, uid)
}

func (b *Backend) GetDuplicateCalendarObjectsByURI(ctx context.Context, principalURI, uri string) ([]objects.Object, error) {
	return b.Calendars.DuplicateObjectsByURI(ctx, principalURI, uri)
}

// --- SyncSupport ---

func (b *Backend) GetChangesForCalendar(ctx context.Context, path string, syncToken string, syncLevel, limit int) (*contracts.ChangeSet, error) {
	b.count("sync")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return nil, err
	}
	return b.Changelog.Changes(ctx, parsed.CalendarID, syncToken, syncLevel, limit)
}

// --- SharingSupport ---

func (b *Backend) UpdateInvites(ctx context.Context, path string, sharees []contracts.Sharee) error {
	b.count("update_invites")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return err
	}
	return b.Sharing.UpdateInvites(ctx, parsed.CalendarID, sharees)
}

func (b *Backend) GetInvites(ctx context.Context, path string) ([]contracts.Sharee, error) {
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return nil, err
	}
	return b.Sharing.Invites(ctx, parsed.CalendarID)
}

func (b *Backend) GetCalendarPublicRight(ctx context.Context, path string) (string, error) {
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return "", err
	}
	return b.Sharing.PublicRight(ctx, parsed.CalendarID)
}

func (b *Backend) SaveCalendarPublicRight(ctx context.Context, path string, privilege string) error {
	b.count("save_public_right")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return err
	}
	return b.Sharing.SavePublicRight(ctx, parsed.CalendarID, privilege)
}

func (b *Backend) SaveCalendarInviteStatus(ctx context.Context, path string, status contracts.InviteStatus) error {
	b.count("save_invite_status")
	parsed, err := contracts.ParseCalendarPath(path)
	if err != nil {
		return err
	}
	return b.Sharing.SaveInviteStatus(ctx, parsed.CalendarID, status)
}

// SetPublishStatus is a capability gap, not a data gap: the base backend has
// no publish workflow, so callers get ErrUnsupported rather than ErrNotFound.
func (b *Backend) SetPublishStatus(ctx context.Context, path string, published bool) error {
	return contracts.ErrUnsupported
}

// --- SchedulingSupport ---

func (b *Backend) GetSchedulingObject(ctx context.Context, principalURI, uri string) (*contracts.SchedulingMessage, error) {
	obj, err := b.Scheduling.Get(ctx, principalURI, uri)
	if err != nil || obj == nil {
		return nil, err
	}
	msg := schedulingMessage(*obj)
	return &msg, nil
}

func (b *Backend) GetSchedulingObjects(ctx context.Context, principalURI string) ([]contracts.SchedulingMessage, error) {
	found, err := b.Scheduling.List(ctx, principalURI)
	if err != nil {
		return nil, err
	}
	messages := make([]contracts.SchedulingMessage, 0, len(found))
	for _, obj := range found {
		messages = append(messages, schedulingMessage(obj))
	}
	return messages, nil
}

func (b *Backend) CreateSchedulingObject(ctx context.Context, principalURI, uri, data string) error {
	b.count("create_scheduling_object")
	return b.Scheduling.Create(ctx, principalURI, uri, data)
}

func (b *Backend) DeleteSchedulingObject(ctx context.Context, principalURI, uri string) error {
	b.count("delete_scheduling_object")
	return b.Scheduling.Delete(ctx, principalURI, uri)
}

func schedulingMessage(obj scheduling.Object) contracts.SchedulingMessage {
	return contracts.SchedulingMessage{
		PrincipalURI: obj.PrincipalURI,
		URI:          obj.URI,
		Data:         obj.Data,
		DateCreated:  obj.DateCreated,
	}
}

// --- SubscriptionSupport ---

func (b *Backend) GetSubscriptionsForUser(ctx context.Context, principalURI string) ([]contracts.SubscriptionInfo, error) {
	subs, err := b.Subscriptions.List(ctx, principalURI)
	if err != nil {
		return nil, err
	}
	infos := make([]contracts.SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		infos = append(infos, subscriptionInfo(sub))
	}
	return infos, nil
}

func (b *Backend) CreateSubscription(ctx context.Context, principalURI, uri string, props map[string]string) error {
	b.count("create_subscription")
	if _, err := b.Subscriptions.Create(ctx, principalURI, uri, props); err != nil {
		return err
	}
	b.publish(contracts.BackendEvent{
		Type:         contracts.EventSubscriptionCreated,
		PrincipalURI: principalURI,
		URI:          uri,
	})
	return nil
}

func (b *Backend) UpdateSubscription(ctx context.Context, principalURI, uri string, props map[string]string) error {
	b.count("update_subscription")
	if err := b.Subscriptions.Update(ctx, principalURI, uri, props); err != nil {
		return err
	}
	b.publish(contracts.BackendEvent{
		Type:         contracts.EventSubscriptionUpdated,
		PrincipalURI: principalURI,
		URI:          uri,
	})
	return nil
}

func (b *Backend) DeleteSubscription(ctx context.Context, principalURI, uri string) error {
	b.count("delete_subscription")
	if err := b.Subscriptions.Delete(ctx, principalURI, uri); err != nil {
		return err
	}
	b.publish(contracts.BackendEvent{
		Type:         contracts.EventSubscriptionDeleted,
		PrincipalURI: principalURI,
		URI:          uri,
	})
	return nil
}

func subscriptionInfo(sub subscriptions.Subscription) contracts.SubscriptionInfo {
	info := contracts.SubscriptionInfo{
		PrincipalURI: sub.PrincipalURI,
		URI:          sub.URI,
		Source:       sub.Source,
	}
	if sub.DisplayName != nil {
		info.DisplayName = *sub.DisplayName
	}
	if sub.RefreshRate != nil {
		info.RefreshRate = *sub.RefreshRate
	}
	if sub.Color != nil {
		info.Color = *sub.Color
	}
	if sub.Order != nil {
		info.Order = *sub.Order
	}
	return info
}
