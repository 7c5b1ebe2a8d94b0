package messaging

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

const calendarStream = "CALENDAR"

// SubjectPrefix is the subject space the backend publishes into. The
// real-time fan-out layer subscribes to "calendar.event.>".
const SubjectPrefix = "calendar.event."

// EnsureStreams creates (or validates) the stream carrying backend events.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(calendarStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      calendarStream,
				Subjects:  []string{SubjectPrefix + ">"},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}
	return nil
}

// Subject routes an event by type and calendar so subscribers can filter,
// e.g. "calendar.event.object.created.<calendarId>".
func Subject(event contracts.BackendEvent) string {
	subject := SubjectPrefix + event.Type
	if event.CalendarID != "" {
		subject += "." + event.CalendarID
	}
	return subject
}

// NewPublishFunc adapts a JetStream context into the backend's outbound
// event port, stamping event id and timestamp.
func NewPublishFunc(js nats.JetStreamContext) contracts.PublishFunc {
	return func(event contracts.BackendEvent) error {
		if event.EventID == "" {
			event.EventID = nuid.Next()
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now().UTC()
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		_, err = js.Publish(Subject(event), payload)
		return err
	}
}
