package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types carried in the payload "type" field
const (
	NotificationNewOrder   = "new_order"
	NotificationNewRequest = "new_request"
	NotificationNewJob     = "new_job"
)

// NotificationPayload is the opaque key-value data attached to a push notification
type NotificationPayload map[string]any

// NotificationMessage is the envelope published on the notifications exchange.
// Identifier names the physical notification; both delivery paths carry it.
type NotificationMessage struct {
	Identifier string              `json:"identifier"`
	Title      string              `json:"title,omitempty"`
	Body       string              `json:"body,omitempty"`
	Data       NotificationPayload `json:"data"`
	Timestamp  time.Time           `json:"timestamp"`
}

// NewOrderNotification builds the message sent to admins once an order's items are stored
func NewOrderNotification(orderID string, itemCount int) *NotificationMessage {
	return &NotificationMessage{
		Identifier: uuid.NewString(),
		Title:      "New order",
		Body:       "A new order was placed",
		Data: NotificationPayload{
			"type":      NotificationNewOrder,
			"orderId":   orderID,
			"itemCount": itemCount,
		},
		Timestamp: time.Now().UTC(),
	}
}

// EntityKind names the detail screen family a notification points at
type EntityKind string

const (
	KindOrder   EntityKind = "order"
	KindRequest EntityKind = "request"
	KindJob     EntityKind = "job"
)

// RouteTarget is a normalized (kind, id) pair. ID is never empty.
type RouteTarget struct {
	Kind EntityKind
	ID   string
}
