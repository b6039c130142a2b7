// Package events announces item changes to other services.
package events

import (
	"context"
	"time"
)

const (
	ItemCreated       = "item.created"
	ItemUpdated       = "item.updated"
	ItemDeleted       = "item.deleted"
	ItemImageUploaded = "item.image_uploaded"
)

// Event is the payload published after a successful mutation.
type Event struct {
	Type       string    `json:"type"`
	ItemID     string    `json:"item_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(eventType, itemID string, data any) Event {
	return Event{
		Type:       eventType,
		ItemID:     itemID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
