package objects

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

// Store is the store surface the service needs.
type Store interface {
	FindByURI(ctx context.Context, calendarID, uri string) (*Object, error)
	FindByURIs(ctx context.Context, calendarID string, uris []string) ([]Object, error)
	FindByCalendar(ctx context.Context, calendarID string) ([]Object, error)
	ListURIs(ctx context.Context, calendarID string) ([]string, error)
	Query(ctx context.Context, calendarID string, filter contracts.ObjectFilter) ([]Object, error)
	Create(ctx context.Context, o Object) error
	Update(ctx context.Context, o Object) error
	Delete(ctx context.Context, calendarID, uri string) error
}

// Changes records one mutation in the calendar's change log and advances its
// sync token. Implemented by changelog.Repository.
type Changes interface {
	Append(ctx context.Context, calendarID, uri string, op contracts.ChangeOp) error
}

type Service struct {
	Repository Store
	Changes    Changes
}

func NewService(repository Store, changes Changes) *Service {
	return &Service{Repository: repository, Changes: changes}
}

func (s *Service) Get(ctx context.Context, calendarID, uri string) (*Object, error) {
	return s.Repository.FindByURI(ctx, calendarID, uri)
}

func (s *Service) GetMultiple(ctx context.Context, calendarID string, uris []string) ([]Object, error) {
	return s.Repository.FindByURIs(ctx, calendarID, uris)
}

func (s *Service) GetAll(ctx context.Context, calendarID string) ([]Object, error) {
	return s.Repository.FindByCalendar(ctx, calendarID)
}

func (s *Service) GetAllURIs(ctx context.Context, calendarID string) ([]string, error) {
	return s.Repository.ListURIs(ctx, calendarID)
}

// CalendarQuery returns the uris of objects matching the filter.
func (s *Service) CalendarQuery(ctx context.Context, calendarID string, filter contracts.ObjectFilter) ([]string, error) {
	matched, err := s.Repository.Query(ctx, calendarID, filter)
	if err != nil {
		return nil, err
	}
	uris := make([]string, 0, len(matched))
	for _, o := range matched {
		uris = append(uris, o.URI)
	}
	return uris, nil
}

// CalendarQueryWithAllData returns the full matching objects.
func (s *Service) CalendarQueryWithAllData(ctx context.Context, calendarID string, filter contracts.ObjectFilter) ([]Object, error) {
	return s.Repository.Query(ctx, calendarID, filter)
}

// Create stores the object and then records the Added change. The object
// write always lands before the token advances, so a synchronizing reader
// can never see a counter ahead of the data.
func (s *Service) Create(ctx context.Context, calendarID, uri, data string, meta contracts.ObjectMeta) (string, error) {
	etag := computeETag(data)
	err := s.Repository.Create(ctx, Object{
		CalendarID:      calendarID,
		URI:             uri,
		UID:             meta.UID,
		ComponentType:   meta.ComponentType,
		FirstOccurrence: meta.FirstOccurrence,
		LastOccurrence:  meta.LastOccurrence,
		Data:            data,
		ETag:            etag,
		Size:            len(data),
	})
	if err != nil {
		return "", err
	}
	if err := s.Changes.Append(ctx, calendarID, uri, contracts.ChangeAdded); err != nil {
		return "", err
	}
	return etag, nil
}

func (s *Service) Update(ctx context.Context, calendarID, uri, data string, meta contracts.ObjectMeta) (string, error) {
	etag := computeETag(data)
	err := s.Repository.Update(ctx, Object{
		CalendarID:      calendarID,
		URI:             uri,
		UID:             meta.UID,
		ComponentType:   meta.ComponentType,
		FirstOccurrence: meta.FirstOccurrence,
		LastOccurrence:  meta.LastOccurrence,
		Data:            data,
		ETag:            etag,
		Size:            len(data),
	})
	if err != nil {
		return "", err
	}
	if err := s.Changes.Append(ctx, calendarID, uri, contracts.ChangeModified); err != nil {
		return "", err
	}
	return etag, nil
}

func (s *Service) Delete(ctx context.Context, calendarID, uri string) error {
	if err := s.Repository.Delete(ctx, calendarID, uri); err != nil {
		return err
	}
	return s.Changes.Append(ctx, calendarID, uri, contracts.ChangeDeleted)
}

func computeETag(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}
