package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
)

//Event names, also used as topic names
const (
	DeviceCreated     = "device.created"
	DeviceUpdated     = "device.updated"
	DeviceDeleted     = "device.deleted"
	FirmwareUploaded  = "firmware.uploaded"
	FirmwareDeleted   = "firmware.deleted"
	DeploymentCreated = "deployment.created"
)

//MessagingContext is an interface that allows mocking of messaging.Context parameters
type MessagingContext interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//EntityChanged is published after a change to an entity has been committed
type EntityChanged struct {
	Event     string    `json:"event"`
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Timestamp string    `json:"timestamp"`
}

//ContentType returns the content type of the serialized message
func (e *EntityChanged) ContentType() string {
	return "application/json"
}

//TopicName returns the topic the message is published on
func (e *EntityChanged) TopicName() string {
	return e.Event
}

//Publisher emits entity change events. Failures are logged and never returned.
type Publisher struct {
	messenger MessagingContext
	log       logging.Logger
}

//NewPublisher returns a Publisher sending on messenger. A nil messenger disables publishing.
func NewPublisher(messenger MessagingContext, log logging.Logger) *Publisher {
	return &Publisher{messenger: messenger, log: log}
}

//Publish sends an event for the entity with the given id
func (p *Publisher) Publish(event string, companyID, id uuid.UUID) {
	if p == nil || p.messenger == nil {
		return
	}

	msg := &EntityChanged{
		Event:     event,
		ID:        id,
		CompanyID: companyID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := p.messenger.PublishOnTopic(msg); err != nil {
		p.log.Errorf("Failed to publish %s for %s: %s", event, id, err.Error())
	}
}
