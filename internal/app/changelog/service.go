package changelog

import (
	"context"
	"strconv"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

type Tokens interface {
	SyncToken(ctx context.Context, calendarID string) (int64, bool, error)
}

type ObjectURIs interface {
	ListURIs(ctx context.Context, calendarID string) ([]string, error)
}

type ChangeLog interface {
	ListSince(ctx context.Context, calendarID string, from, to int64, limit int) ([]Change, error)
}

// Service computes the delta feed handed to synchronizing clients.
type Service struct {
	Tokens  Tokens
	Objects ObjectURIs
	Log     ChangeLog
}

func NewService(tokens Tokens, objects ObjectURIs, log ChangeLog) *Service {
	return &Service{Tokens: tokens, Objects: objects, Log: log}
}

// Changes implements the sync algorithm. A missing calendar yields
// (nil, nil): the caller treats that as "sync not supported". An empty
// client token is an initial sync and reports every object as added.
func (s *Service) Changes(ctx context.Context, calendarID, clientToken string, syncLevel, limit int) (*contracts.ChangeSet, error) {
	current, found, err := s.Tokens.SyncToken(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	result := &contracts.ChangeSet{
		SyncToken: strconv.FormatInt(current, 10),
		Added:     []string{},
		Modified:  []string{},
		Deleted:   []string{},
	}

	if clientToken == "" {
		uris, err := s.Objects.ListURIs(ctx, calendarID)
		if err != nil {
			return nil, err
		}
		result.Added = append(result.Added, uris...)
		return result, nil
	}

	from, err := strconv.ParseInt(clientToken, 10, 64)
	if err != nil {
		return nil, contracts.ErrInvalidArgument
	}

	changes, err := s.Log.ListSince(ctx, calendarID, from, current, limit)
	if err != nil {
		return nil, err
	}

	// Later records overwrite earlier ones so a uri surfaces once, under
	// its most recent operation only.
	lastOp := make(map[string]contracts.ChangeOp, len(changes))
	order := make([]string, 0, len(changes))
	for _, c := range changes {
		if _, seen := lastOp[c.URI]; !seen {
			order = append(order, c.URI)
		}
		lastOp[c.URI] = c.Operation
	}

	for _, uri := range order {
		switch lastOp[uri] {
		case contracts.ChangeAdded:
			result.Added = append(result.Added, uri)
		case contracts.ChangeModified:
			result.Modified = append(result.Modified, uri)
		case contracts.ChangeDeleted:
			result.Deleted = append(result.Deleted, uri)
		}
	}
	return result, nil
}
