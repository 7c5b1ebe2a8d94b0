package subscriptions

import (
	"context"
	"strconv"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Store is the store surface the service needs.
type Store interface {
	FindByPrincipal(ctx context.Context, principalURI string) ([]Subscription, error)
	Find(ctx context.Context, principalURI, uri string) (*Subscription, error)
	FindBySource(ctx context.Context, source string) ([]Subscription, error)
	Create(ctx context.Context, s Subscription) (string, error)
	Update(ctx context.Context, s Subscription) error
	Delete(ctx context.Context, principalURI, uri string) error
}

// PropertyMap translates protocol property names into stored field names.
type PropertyMap map[string]string

// Stored field names PropertyMap values resolve to.
const (
	FieldDisplayName      = "displayname"
	FieldRefreshRate      = "refreshrate"
	FieldColor            = "color"
	FieldOrder            = "order"
	FieldSource           = "source"
	FieldStripTodos       = "striptodos"
	FieldStripAlarms      = "stripalarms"
	FieldStripAttachments = "stripattachments"
)

// DefaultPropertyMap covers the property names CalDAV clients commonly send.
func DefaultPropertyMap() PropertyMap {
	return PropertyMap{
		"{DAV:}displayname":                                           FieldDisplayName,
		"{http://apple.com/ns/ical/}refreshrate":                      FieldRefreshRate,
		"{http://apple.com/ns/ical/}calendar-color":                   FieldColor,
		"{http://apple.com/ns/ical/}calendar-order":                   FieldOrder,
		"{http://calendarserver.org/ns/}source":                       FieldSource,
		"{http://calendarserver.org/ns/}subscribed-strip-todos":       FieldStripTodos,
		"{http://calendarserver.org/ns/}subscribed-strip-alarms":      FieldStripAlarms,
		"{http://calendarserver.org/ns/}subscribed-strip-attachments": FieldStripAttachments,
	}
}

type Service struct {
	Repository Store
	Properties PropertyMap
}

func NewService(repository Store) *Service {
	return &Service{Repository: repository, Properties: DefaultPropertyMap()}
}

func (s *Service) List(ctx context.Context, principalURI string) ([]Subscription, error) {
	return s.Repository.FindByPrincipal(ctx, principalURI)
}

func (s *Service) Get(ctx context.Context, principalURI, uri string) (*Subscription, error) {
	return s.Repository.Find(ctx, principalURI, uri)
}

// Subscribers returns every subscription mirroring the given source path.
func (s *Service) Subscribers(ctx context.Context, source string) ([]Subscription, error) {
	return s.Repository.FindBySource(ctx, source)
}

func (s *Service) Create(ctx context.Context, principalURI, uri string, props map[string]string) (string, error) {
	sub := Subscription{PrincipalURI: principalURI, URI: uri}
	s.apply(&sub, props)
	if sub.Source == "" {
		return "", contracts.ErrInvalidArgument
	}
	return s.Repository.Create(ctx, sub)
}

func (s *Service) Update(ctx context.Context, principalURI, uri string, props map[string]string) error {
	existing, err := s.Repository.Find(ctx, principalURI, uri)
	if err != nil {
		return err
	}
	if existing == nil {
		return contracts.ErrNotFound
	}
	s.apply(existing, props)
	return s.Repository.Update(ctx, *existing)
}

func (s *Service) Delete(ctx context.Context, principalURI, uri string) error {
	return s.Repository.Delete(ctx, principalURI, uri)
}

// DeleteBySource removes every subscription mirroring the source, used when
// the source calendar disappears or its public right is revoked.
func (s *Service) DeleteBySource(ctx context.Context, source string) error {
	subs, err := s.Repository.FindBySource(ctx, source)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := s.Repository.Delete(ctx, sub.PrincipalURI, sub.URI); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) apply(sub *Subscription, props map[string]string) {
	for name, value := range props {
		field, ok := s.Properties[name]
		if !ok {
			continue
		}
		switch field {
		case FieldDisplayName:
			v := value
			sub.DisplayName = &v
		case FieldRefreshRate:
			v := value
			sub.RefreshRate = &v
		case FieldColor:
			v := value
			sub.Color = &v
		case FieldOrder:
			if parsed, err := strconv.Atoi(value); err == nil {
				sub.Order = &parsed
			}
		case FieldSource:
			sub.Source = value
		case FieldStripTodos:
			sub.StripTodos = parseBool(value)
		case FieldStripAlarms:
			sub.StripAlarms = parseBool(value)
		case FieldStripAttachments:
			sub.StripAttachments = parseBool(value)
		}
	}
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}
