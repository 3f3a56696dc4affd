package ports

import (
	"context"
	"time"

	"github.com/careflow/approvals/internal/domain/events"
)

// Notification is a human-readable event addressed to one recipient.
type Notification struct {
	Type        events.EventType `json:"type"`
	RecipientID string           `json:"recipient_id"`
	RequestID   string           `json:"request_id"`
	DocumentID  string           `json:"document_id"`
	Level       int              `json:"level"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Channels    []string         `json:"channels"`
	CreatedAt   time.Time        `json:"created_at"`
}

// HasChannel reports whether the notification asks for delivery on channel.
func (n Notification) HasChannel(channel string) bool {
	for _, c := range n.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// NotificationDispatcher delivers notifications on a best-effort basis.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}
