package scheduling

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Store is the store surface the service needs.
type Store interface {
	Find(ctx context.Context, principalURI, uri string) (*Object, error)
	FindByPrincipal(ctx context.Context, principalURI string) ([]Object, error)
	Create(ctx context.Context, o Object) error
	Delete(ctx context.Context, principalURI, uri string) error
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

type Service struct {
	Repository Store
	Now        func() time.Time
}

func NewService(repository Store) *Service {
	return &Service{
		Repository: repository,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, principalURI, uri string) (*Object, error) {
	return s.Repository.Find(ctx, principalURI, uri)
}

func (s *Service) List(ctx context.Context, principalURI string) ([]Object, error) {
	return s.Repository.FindByPrincipal(ctx, principalURI)
}

func (s *Service) Create(ctx context.Context, principalURI, uri, data string) error {
	return s.Repository.Create(ctx, Object{
		PrincipalURI: principalURI,
		URI:          uri,
		Data:         data,
		DateCreated:  s.Now(),
	})
}

func (s *Service) Delete(ctx context.Context, principalURI, uri string) error {
	return s.Repository.Delete(ctx, principalURI, uri)
}

// StartReaper registers the hourly expiry job purging inbox messages older
// than retentionDays. Retention of 0 or less means indefinite retention and
// registers nothing.
func (s *Service) StartReaper(c *cron.Cron, retentionDays int) (cron.EntryID, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour
	return c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		removed, err := s.Repository.DeleteExpired(ctx, s.Now().Add(-retention))
		if err != nil {
			log.Printf("scheduling inbox reaper failed: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("scheduling inbox reaper removed %d expired messages", removed)
		}
	})
}
