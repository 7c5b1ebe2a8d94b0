package contracts

import "time"

// Outbound event types published on the backend's event port. The real-time
// layer subscribes to these; storage invariants never depend on delivery.
const (
	EventCalendarCreated = "calendar.created"
	EventCalendarUpdated = "calendar.updated"
	EventCalendarDeleted = "calendar.deleted"

	EventObjectCreated = "object.created"
	EventObjectUpdated = "object.updated"
	EventObjectDeleted = "object.deleted"

	EventInviteUpdated = "invite.updated"

	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
)

// BackendEvent is the payload published for every domain mutation.
type BackendEvent struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	CalendarID   string    `json:"calendar_id,omitempty"`
	PrincipalURI string    `json:"principal_uri,omitempty"`
	URI          string    `json:"uri,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PublishFunc is the outbound-event port. Implementations must be safe for
// concurrent use; a nil port drops events.
type PublishFunc func(event BackendEvent) error
