package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/clearance-service/internal/domain"
)

// EventType enumerates the reactive triggers.
type EventType string

const (
	EventPrincipalCreated       EventType = "principal_created"
	EventProfileUpdated         EventType = "profile_updated"
	EventApplicationCreated     EventType = "application_created"
	EventApplicationUpdated     EventType = "application_updated"
	EventStorageObjectFinalized EventType = "storage_object_finalized"
	EventEmailRecordUpdated     EventType = "email_record_updated"
)

// ActorType identifies who caused an event.
type ActorType string

const (
	ActorSystem ActorType = "SYSTEM"
	ActorUser   ActorType = "USER"
	ActorStaff  ActorType = "STAFF"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor is used for writes the workflow performs on its own.
var SystemActor = Actor{Type: ActorSystem}

// ActorFor maps a caller to an event actor.
func ActorFor(caller domain.Caller) Actor {
	if caller.Role.IsStaff() {
		return Actor{Type: ActorStaff, ID: caller.UID}
	}
	return Actor{Type: ActorUser, ID: caller.UID}
}

// Event represents a trigger delivered to handlers. Delivery is at-least-once.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps a fresh event.
func New(eventType EventType, subject string, actor Actor, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Subject:   subject,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// PrincipalCreatedPayload carries the provider's view of a new principal.
type PrincipalCreatedPayload struct {
	Identity domain.Identity `json:"identity"`
}

// ProfileUpdatedPayload carries before/after snapshots of a profile write.
type ProfileUpdatedPayload struct {
	Before *domain.Profile `json:"before"`
	After  *domain.Profile `json:"after"`
}

// ApplicationChangedPayload carries snapshots of an application write. Before is nil on create.
type ApplicationChangedPayload struct {
	Before *domain.Application `json:"before,omitempty"`
	After  *domain.Application `json:"after"`
}

// StorageObjectFinalizedPayload describes a completed object write.
type StorageObjectFinalizedPayload struct {
	Bucket      string     `json:"bucket"`
	Name        string     `json:"name"`
	Scheme      string     `json:"scheme"`
	TimeCreated *time.Time `json:"timeCreated,omitempty"`
}

// Locator renders the object as scheme://bucket/name.
func (p StorageObjectFinalizedPayload) Locator() string {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "s3"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, p.Bucket, p.Name)
}

// EmailRecordUpdatedPayload carries before/after snapshots of a mail record.
type EmailRecordUpdatedPayload struct {
	Before *domain.MailRecord `json:"before"`
	After  *domain.MailRecord `json:"after"`
}

type envelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Subject   string          `json:"subject"`
	Actor     Actor           `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode serializes an event for transport.
func Encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// Decode restores an event with its typed payload.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, err
	}
	event := Event{ID: env.ID, Type: env.Type, Subject: env.Subject, Actor: env.Actor, Timestamp: env.Timestamp}

	var target any
	switch env.Type {
	case EventPrincipalCreated:
		target = &PrincipalCreatedPayload{}
	case EventProfileUpdated:
		target = &ProfileUpdatedPayload{}
	case EventApplicationCreated, EventApplicationUpdated:
		target = &ApplicationChangedPayload{}
	case EventStorageObjectFinalized:
		target = &StorageObjectFinalizedPayload{}
	case EventEmailRecordUpdated:
		target = &EmailRecordUpdatedPayload{}
	default:
		return event, fmt.Errorf("unknown event type %q", env.Type)
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, target); err != nil {
			return event, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	event.Payload = deref(target)
	return event, nil
}

func deref(v any) any {
	switch p := v.(type) {
	case *PrincipalCreatedPayload:
		return *p
	case *ProfileUpdatedPayload:
		return *p
	case *ApplicationChangedPayload:
		return *p
	case *StorageObjectFinalizedPayload:
		return *p
	case *EmailRecordUpdatedPayload:
		return *p
	}
	return v
}
