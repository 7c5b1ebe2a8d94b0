package calendars

import (
	"context"
	"strconv"

	"github.com/linagora/esn-sabre-sub002/internal/app/objects"
	"github.com/linagora/esn-sabre-sub002/internal/app/principals"
	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Calendars is the calendar-store surface the service needs.
type Calendars interface {
	FindByIDs(ctx context.Context, ids []string) ([]Calendar, error)
	Create(ctx context.Context, props Properties) (string, error)
	UpdateProperties(ctx context.Context, id string, props Properties) error
	Delete(ctx context.Context, id string) error
}

// Instances is the instance-store surface the service needs.
type Instances interface {
	FindByPrincipal(ctx context.Context, principalURI string) ([]Instance, error)
	FindByID(ctx context.Context, id string) (*Instance, error)
	Create(ctx context.Context, inst Instance) (string, error)
	Update(ctx context.Context, id string, update InstanceUpdate) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByCalendar(ctx context.Context, calendarID string) error
}

// Objects is the object-store surface needed for cascades and lookups.
type Objects interface {
	FindByUID(ctx context.Context, calendarIDs []string, uid string) ([]objects.Object, error)
	FindByURIAcrossCalendars(ctx context.Context, calendarIDs []string, uri string) ([]objects.Object, error)
	DeleteByCalendar(ctx context.Context, calendarID string) error
}

// Changes is the change-log surface needed for cascades.
type Changes interface {
	DeleteByCalendar(ctx context.Context, calendarID string) error
}

// Sharing performs sharee cleanup when a calendar goes away; injected so the
// service never touches the sharing workflow's concrete type.
type Sharing interface {
	Invites(ctx context.Context, calendarID string) ([]contracts.Sharee, error)
	UpdateInvites(ctx context.Context, calendarID string, sharees []contracts.Sharee) error
}

// SubscriberCleaner cascades removal of subscriptions mirroring a deleted
// calendar.
type SubscriberCleaner interface {
	DeleteBySource(ctx context.Context, source string) error
}

// PathResolver renders the protocol path subscriptions reference.
type PathResolver interface {
	CalendarSourcePath(principalURI, calendarURI string) string
}

// PrincipalResolver looks up principals for default-calendar naming.
type PrincipalResolver interface {
	Lookup(ctx context.Context, principalURI string) (principals.Principal, bool, error)
}

type Service struct {
	Calendars   Calendars
	Instances   Instances
	Objects     Objects
	Changes     Changes
	Sharing     Sharing
	Subscribers SubscriberCleaner
	Paths       PathResolver
	Principals  PrincipalResolver
}

// CalendarsForUser lists the principal's calendar instances joined with the
// underlying calendar rows. A principal with no calendars gets a default one
// created lazily before the list is re-read.
func (s *Service) CalendarsForUser(ctx context.Context, principalURI string) ([]contracts.CalendarInfo, error) {
	instances, err := s.Instances.FindByPrincipal(ctx, principalURI)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		if err := s.createDefaultCalendar(ctx, principalURI); err != nil {
			return nil, err
		}
		instances, err = s.Instances.FindByPrincipal(ctx, principalURI)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.CalendarID)
	}
	cals, err := s.Calendars.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Calendar, len(cals))
	for _, cal := range cals {
		byID[cal.ID] = cal
	}

	infos := make([]contracts.CalendarInfo, 0, len(instances))
	for _, inst := range instances {
		cal, ok := byID[inst.CalendarID]
		if !ok {
			// Instance pointing at a vanished calendar; skip rather than fail.
			continue
		}
		infos = append(infos, buildCalendarInfo(cal, inst))
	}
	return infos, nil
}

func buildCalendarInfo(cal Calendar, inst Instance) contracts.CalendarInfo {
	info := contracts.CalendarInfo{
		Path:         contracts.CalendarPath{CalendarID: inst.CalendarID, InstanceID: inst.ID},
		URI:          inst.URI,
		PrincipalURI: inst.PrincipalURI,
		Access:       inst.Access,
		InviteStatus: inst.ShareInviteStatus,
		SyncToken:    strconv.FormatInt(cal.SyncToken, 10),
		DisplayName:  cal.Properties.DisplayName,
		Description:  cal.Properties.Description,
		Timezone:     cal.Properties.Timezone,
	}
	if inst.PublicRight != nil {
		info.PublicRight = *inst.PublicRight
	}
	if cal.Properties.Color != nil {
		info.Color = *cal.Properties.Color
	}
	if cal.Properties.Order != nil {
		info.Order = *cal.Properties.Order
	}
	if inst.ShareDisplayName != nil && inst.Access != contracts.AccessSharedOwner {
		info.DisplayName = *inst.ShareDisplayName
	}
	return info
}

// createDefaultCalendar provisions the principal's first calendar. Bookable
// resources are named after their directory display name, users after the
// local part of their principal uri.
func (s *Service) createDefaultCalendar(ctx context.Context, principalURI string) error {
	localID := principals.LocalID(principalURI)
	displayName := localID
	if s.Principals != nil {
		if principal, found, err := s.Principals.Lookup(ctx, principalURI); err != nil {
			return err
		} else if found && principal.Resource && principal.DisplayName != "" {
			displayName = principal.DisplayName
		}
	}
	_, err := s.Create(ctx, principalURI, localID, Properties{DisplayName: displayName})
	return err
}

// Create makes a calendar and its SHAREDOWNER instance for the principal.
func (s *Service) Create(ctx context.Context, principalURI, uri string, props Properties) (contracts.CalendarPath, error) {
	calendarID, err := s.Calendars.Create(ctx, props)
	if err != nil {
		return contracts.CalendarPath{}, err
	}
	instanceID, err := s.Instances.Create(ctx, Instance{
		CalendarID:        calendarID,
		PrincipalURI:      principalURI,
		URI:               uri,
		Access:            contracts.AccessSharedOwner,
		ShareInviteStatus: contracts.InviteNoInvite,
	})
	if err != nil {
		// The calendar row is unreachable without its owner instance.
		_ = s.Calendars.Delete(ctx, calendarID)
		return contracts.CalendarPath{}, err
	}
	return contracts.CalendarPath{CalendarID: calendarID, InstanceID: instanceID}, nil
}

// Update changes calendar properties through the owner instance, or the
// share display name when the path points at a received share.
func (s *Service) Update(ctx context.Context, path contracts.CalendarPath, props Properties) error {
	inst, err := s.instanceForPath(ctx, path)
	if err != nil {
		return err
	}
	if inst.Access == contracts.AccessSharedOwner {
		return s.Calendars.UpdateProperties(ctx, path.CalendarID, props)
	}
	if props.DisplayName == "" {
		return nil
	}
	name := props.DisplayName
	return s.Instances.Update(ctx, inst.ID, InstanceUpdate{ShareDisplayName: &name})
}

// Delete removes the calendar behind an owner instance with full cascade:
// sharee instances (through the sharing workflow), objects, change history,
// dependent subscriptions and finally the calendar row. Deleting through a
// non-owner instance only unbinds that share.
func (s *Service) Delete(ctx context.Context, path contracts.CalendarPath) error {
	inst, err := s.instanceForPath(ctx, path)
	if err != nil {
		return err
	}
	if inst.Access != contracts.AccessSharedOwner {
		return s.Instances.DeleteByID(ctx, inst.ID)
	}

	if s.Sharing != nil {
		sharees, err := s.Sharing.Invites(ctx, path.CalendarID)
		if err != nil {
			return err
		}
		if len(sharees) > 0 {
			for i := range sharees {
				sharees[i].Access = contracts.AccessNoAccess
			}
			if err := s.Sharing.UpdateInvites(ctx, path.CalendarID, sharees); err != nil {
				return err
			}
		}
	}

	if err := s.Objects.DeleteByCalendar(ctx, path.CalendarID); err != nil {
		return err
	}
	if err := s.Changes.DeleteByCalendar(ctx, path.CalendarID); err != nil {
		return err
	}
	if s.Subscribers != nil && s.Paths != nil {
		source := s.Paths.CalendarSourcePath(inst.PrincipalURI, inst.URI)
		if err := s.Subscribers.DeleteBySource(ctx, source); err != nil {
			return err
		}
	}
	if err := s.Instances.DeleteByCalendar(ctx, path.CalendarID); err != nil {
		return err
	}
	return s.Calendars.Delete(ctx, path.CalendarID)
}

// ObjectByUID locates an object by iCalendar UID across the principal's own
// calendars and returns its "calendarUri/objectUri" path, empty when absent.
func (s *Service) ObjectByUID(ctx context.Context, principalURI, uid string) (string, error) {
	ids, uriByID, err := s.ownedCalendars(ctx, principalURI)
	if err != nil {
		return "", err
	}
	found, err := s.Objects.FindByUID(ctx, ids, uid)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", nil
	}
	return uriByID[found[0].CalendarID] + "/" + found[0].URI, nil
}

// DuplicateObjectsByURI finds every copy of a resource uri across the
// principal's own calendars, for scheduling de-duplication.
func (s *Service) DuplicateObjectsByURI(ctx context.Context, principalURI, uri string) ([]objects.Object, error) {
	ids, _, err := s.ownedCalendars(ctx, principalURI)
	if err != nil {
		return nil, err
	}
	return s.Objects.FindByURIAcrossCalendars(ctx, ids, uri)
}

func (s *Service) ownedCalendars(ctx context.Context, principalURI string) ([]string, map[string]string, error) {
	instances, err := s.Instances.FindByPrincipal(ctx, principalURI)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(instances))
	uriByID := make(map[string]string, len(instances))
	for _, inst := range instances {
		if inst.Access != contracts.AccessSharedOwner {
			continue
		}
		ids = append(ids, inst.CalendarID)
		uriByID[inst.CalendarID] = inst.URI
	}
	return ids, uriByID, nil
}

func (s *Service) instanceForPath(ctx context.Context, path contracts.CalendarPath) (*Instance, error) {
	inst, err := s.Instances.FindByID(ctx, path.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil || inst.CalendarID != path.CalendarID {
		return nil, contracts.ErrNotFound
	}
	return inst, nil
}
