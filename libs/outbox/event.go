// Package outbox implements the transactional outbox: rows written next to domain
// changes and relayed to Kafka by a Publisher.
package outbox

import (
	"encoding/json"
	"fmt"
)

// Topics published through the outbox. The Kafka topic name equals EventType.
const (
	TopicLessonBooked       = "lesson.booked.v1"
	TopicLessonCancelled    = "lesson.cancelled.v1"
	TopicEmailRequested     = "notification.email.requested.v1"
	TopicNotificationSent   = "notification.sent.v1"
	TopicNotificationFailed = "notification.failed.v1"
	TopicUserRegistered     = "auth.user.registered.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload into an Event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
