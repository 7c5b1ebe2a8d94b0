package contracts

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Error taxonomy shared by stores, services and the facade. Read paths
// return empty results instead of ErrNotFound; mutating paths use it.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("resource conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("operation not supported")
)

// Access is the access level of one calendar instance.
type Access int

const (
	AccessOwner Access = iota + 1
	AccessSharedOwner
	AccessRead
	AccessReadWrite
	AccessAdministration
	AccessFreeBusy
	AccessNoAccess
)

func (a Access) String() string {
	switch a {
	case AccessOwner:
		return "owner"
	case AccessSharedOwner:
		return "shared-owner"
	case AccessRead:
		return "read"
	case AccessReadWrite:
		return "read-write"
	case AccessAdministration:
		return "administration"
	case AccessFreeBusy:
		return "free-busy"
	case AccessNoAccess:
		return "no-access"
	default:
		return "unknown"
	}
}

// InviteStatus tracks the lifecycle of a share invite.
type InviteStatus int

const (
	InviteNoInvite InviteStatus = iota + 1
	InvitePending
	InviteAccepted
	InviteDeclined
	InviteInvalid
)

// ChangeOp is the operation recorded in the per-calendar change log.
type ChangeOp int

const (
	ChangeAdded    ChangeOp = 1
	ChangeModified ChangeOp = 2
	ChangeDeleted  ChangeOp = 3
)

// CalendarPath is the composite identifier the protocol engine uses for a
// calendar: the underlying calendar id plus the instance the principal is
// bound through.
type CalendarPath struct {
	CalendarID string
	InstanceID string
}

func (p CalendarPath) String() string {
	return p.CalendarID + "/" + p.InstanceID
}

// ParseCalendarPath splits "<calendarId>/<instanceId>". A missing component
// is a caller bug, reported as ErrInvalidArgument.
func ParseCalendarPath(raw string) (CalendarPath, error) {
	calendarID, instanceID, ok := strings.Cut(raw, "/")
	if !ok || calendarID == "" || instanceID == "" {
		return CalendarPath{}, ErrInvalidArgument
	}
	return CalendarPath{CalendarID: calendarID, InstanceID: instanceID}, nil
}

// ObjectMeta carries the precomputed metadata the object write path needs.
// Deriving it (including recurrence bounds) belongs to the calling engine;
// icalmeta provides a default.
type ObjectMeta struct {
	UID             string
	ComponentType   string
	FirstOccurrence *time.Time
	LastOccurrence  *time.Time
}

// ObjectFilter restricts a calendar query to a component type and an
// occurrence window. Nil halves leave that side unbounded.
type ObjectFilter struct {
	ComponentType string
	Start         *time.Time
	End           *time.Time
}

// ChangeSet is the delta feed returned to a synchronizing client.
type ChangeSet struct {
	SyncToken string
	Added     []string
	Modified  []string
	Deleted   []string
}

// Sharee describes one non-owner binding of a calendar.
type Sharee struct {
	Principal    string
	Href         string
	Access       Access
	InviteStatus InviteStatus
	DisplayName  string
}

// CalendarInfo is the per-instance view handed to the protocol engine.
type CalendarInfo struct {
	Path         CalendarPath
	URI          string
	PrincipalURI string
	Access       Access
	InviteStatus InviteStatus
	PublicRight  string
	SyncToken    string
	DisplayName  string
	Description  string
	Color        string
	Order        int
	Timezone     string
}

// SchedulingMessage is a pending iTip message in a principal's inbox.
type SchedulingMessage struct {
	PrincipalURI string
	URI          string
	Data         string
	DateCreated  time.Time
}

// SubscriptionInfo is the stored view of one external subscription.
type SubscriptionInfo struct {
	PrincipalURI string
	URI          string
	Source       string
	DisplayName  string
	RefreshRate  string
	Color        string
	Order        int
}

// SyncSupport is the change-tracking contract consumed by the engine.
type SyncSupport interface {
	// GetChangesForCalendar returns nil (and no error) when the calendar
	// does not exist, signalling that sync is not supported for the path.
	GetChangesForCalendar(ctx context.Context, path string, syncToken string, syncLevel, limit int) (*ChangeSet, error)
}

// SharingSupport is the invite and public-right contract.
type SharingSupport interface {
	UpdateInvites(ctx context.Context, path string, sharees []Sharee) error
	GetInvites(ctx context.Context, path string) ([]Sharee, error)
	GetCalendarPublicRight(ctx context.Context, path string) (string, error)
	SaveCalendarPublicRight(ctx context.Context, path string, privilege string) error
	SaveCalendarInviteStatus(ctx context.Context, path string, status InviteStatus) error
	SetPublishStatus(ctx context.Context, path string, published bool) error
}

// SchedulingSupport is the iTip inbox contract.
type SchedulingSupport interface {
	GetSchedulingObject(ctx context.Context, principalURI, uri string) (*SchedulingMessage, error)
	GetSchedulingObjects(ctx context.Context, principalURI string) ([]SchedulingMessage, error)
	CreateSchedulingObject(ctx context.Context, principalURI, uri, data string) error
	DeleteSchedulingObject(ctx context.Context, principalURI, uri string) error
}

// SubscriptionSupport is the external-subscription contract.
type SubscriptionSupport interface {
	GetSubscriptionsForUser(ctx context.Context, principalURI string) ([]SubscriptionInfo, error)
	CreateSubscription(ctx context.Context, principalURI, uri string, props map[string]string) error
	UpdateSubscription(ctx context.Context, principalURI, uri string, props map[string]string) error
	DeleteSubscription(ctx context.Context, principalURI, uri string) error
}
