package sharing

import (
	"context"

	"github.com/google/uuid"

	"github.com/linagora/esn-sabre-sub002/internal/app/calendars"
	"github.com/linagora/esn-sabre-sub002/internal/app/principals"
	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Instances is the instance-store surface the sharing workflow needs.
type Instances interface {
	FindByCalendar(ctx context.Context, calendarID string) ([]calendars.Instance, error)
	FindOwnerInstance(ctx context.Context, calendarID string) (*calendars.Instance, error)
	FindByShareHref(ctx context.Context, calendarID, shareHref string) (*calendars.Instance, error)
	Create(ctx context.Context, inst calendars.Instance) (string, error)
	Update(ctx context.Context, id string, update calendars.InstanceUpdate) error
	DeleteByShareHref(ctx context.Context, calendarID, shareHref string) error
	SetPublicRight(ctx context.Context, calendarID string, right *string) error
	SetInviteStatusForOwner(ctx context.Context, calendarID string, status contracts.InviteStatus) error
}

// PrincipalResolver maps a sharee href onto a directory principal.
type PrincipalResolver interface {
	LookupByHref(ctx context.Context, href string) (principals.Principal, bool, error)
}

// SubscriberCleaner cascades removal of subscriptions that mirror a calendar
// whose public right went away. Implemented by the subscription service.
type SubscriberCleaner interface {
	DeleteBySource(ctx context.Context, source string) error
}

// PathResolver renders the protocol path of a calendar, the key subscribers
// are stored under.
type PathResolver interface {
	CalendarSourcePath(principalURI, calendarURI string) string
}

type Service struct {
	Instances   Instances
	Principals  PrincipalResolver
	Subscribers SubscriberCleaner
	Paths       PathResolver
	Publish     contracts.PublishFunc
}

func NewService(instances Instances, resolver PrincipalResolver, cleaner SubscriberCleaner, paths PathResolver) *Service {
	return &Service{
		Instances:   instances,
		Principals:  resolver,
		Subscribers: cleaner,
		Paths:       paths,
	}
}

// UpdateInvites reconciles the sharee set of a calendar. A sharee with
// AccessNoAccess is removed; a known href gets its access updated; anyone
// else receives a fresh pending instance bound to their principal.
func (s *Service) UpdateInvites(ctx context.Context, calendarID string, sharees []contracts.Sharee) error {
	for _, sharee := range sharees {
		if sharee.Access == contracts.AccessNoAccess {
			if err := s.Instances.DeleteByShareHref(ctx, calendarID, sharee.Href); err != nil {
				return err
			}
			s.publishInvite(calendarID, sharee.Href)
			continue
		}

		existing, err := s.Instances.FindByShareHref(ctx, calendarID, sharee.Href)
		if err != nil {
			return err
		}
		if existing != nil {
			access := sharee.Access
			update := calendars.InstanceUpdate{Access: &access}
			if sharee.DisplayName != "" {
				name := sharee.DisplayName
				update.ShareDisplayName = &name
			}
			if err := s.Instances.Update(ctx, existing.ID, update); err != nil {
				return err
			}
			s.publishInvite(calendarID, sharee.Href)
			continue
		}

		principalURI := sharee.Principal
		if principalURI == "" {
			if s.Principals == nil {
				return contracts.ErrInvalidArgument
			}
			principal, found, err := s.Principals.LookupByHref(ctx, sharee.Href)
			if err != nil {
				return err
			}
			if !found {
				return contracts.ErrInvalidArgument
			}
			principalURI = principal.URI
		}

		owner, err := s.Instances.FindOwnerInstance(ctx, calendarID)
		if err != nil {
			return err
		}
		if owner == nil {
			return contracts.ErrNotFound
		}

		inst := calendars.Instance{
			CalendarID:        calendarID,
			PrincipalURI:      principalURI,
			URI:               uuid.NewString(),
			Access:            sharee.Access,
			ShareHref:         sharee.Href,
			ShareInviteStatus: contracts.InvitePending,
			PublicRight:       owner.PublicRight,
		}
		if sharee.DisplayName != "" {
			name := sharee.DisplayName
			inst.ShareDisplayName = &name
		}
		if _, err := s.Instances.Create(ctx, inst); err != nil {
			return err
		}
		s.publishInvite(calendarID, sharee.Href)
	}
	return nil
}

// Invites lists the calendar's sharees. The owner instance is not a sharee
// and never appears here.
func (s *Service) Invites(ctx context.Context, calendarID string) ([]contracts.Sharee, error) {
	instances, err := s.Instances.FindByCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	sharees := make([]contracts.Sharee, 0, len(instances))
	for _, inst := range instances {
		if inst.Access == contracts.AccessSharedOwner {
			continue
		}
		sharee := contracts.Sharee{
			Principal:    inst.PrincipalURI,
			Href:         inst.ShareHref,
			Access:       inst.Access,
			InviteStatus: inst.ShareInviteStatus,
		}
		if inst.ShareDisplayName != nil {
			sharee.DisplayName = *inst.ShareDisplayName
		}
		sharees = append(sharees, sharee)
	}
	return sharees, nil
}

// PublicRight reads the right granted to all authenticated principals.
func (s *Service) PublicRight(ctx context.Context, calendarID string) (string, error) {
	owner, err := s.Instances.FindOwnerInstance(ctx, calendarID)
	if err != nil {
		return "", err
	}
	if owner == nil {
		return "", contracts.ErrNotFound
	}
	if owner.PublicRight == nil {
		return "", nil
	}
	return *owner.PublicRight, nil
}

// SavePublicRight sets the right on every instance of the calendar. Revoking
// it (empty privilege) also drops the subscriptions mirroring the calendar.
func (s *Service) SavePublicRight(ctx context.Context, calendarID string, privilege string) error {
	owner, err := s.Instances.FindOwnerInstance(ctx, calendarID)
	if err != nil {
		return err
	}
	if owner == nil {
		return contracts.ErrNotFound
	}

	var right *string
	if privilege != "" {
		right = &privilege
	}
	if err := s.Instances.SetPublicRight(ctx, calendarID, right); err != nil {
		return err
	}
	if right == nil {
		source := s.Paths.CalendarSourcePath(owner.PrincipalURI, owner.URI)
		if err := s.Subscribers.DeleteBySource(ctx, source); err != nil {
			return err
		}
	}
	s.publishInvite(calendarID, "")
	return nil
}

// SaveInviteStatus records an accept/decline on the SHAREDOWNER-bound
// instance of the calendar.
func (s *Service) SaveInviteStatus(ctx context.Context, calendarID string, status contracts.InviteStatus) error {
	if err := s.Instances.SetInviteStatusForOwner(ctx, calendarID, status); err != nil {
		return err
	}
	s.publishInvite(calendarID, "")
	return nil
}

func (s *Service) publishInvite(calendarID, href string) {
	if s.Publish == nil {
		return
	}
	_ = s.Publish(contracts.BackendEvent{
		Type:       contracts.EventInviteUpdated,
		CalendarID: calendarID,
		URI:        href,
	})
}
