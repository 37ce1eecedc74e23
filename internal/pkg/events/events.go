// internal/pkg/events/events.go
package events

import (
	"context"
	"fmt"
)

// Event kinds published by the domain services
const (
	KindNewOrder          = "new_order"
	KindOrderStatusUpdate = "order_status_update"
	KindOrderCancelled    = "order_cancelled"
	KindOrderAssigned     = "order_assigned"
	KindDeliveryUpdate    = "delivery_update"
	KindNotification      = "notification"
	KindLowStock          = "low_stock"
)

// Well-known topics. Persisted state is always written before an event
// is published; delivery is advisory and never load-bearing.
const (
	TopicAdmin    = "admin"
	TopicDelivery = "delivery" // All delivery actors
)

// TopicUser is the topic scoped to a single user
func TopicUser(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// TopicDeliveryActor is the topic scoped to one delivery actor
func TopicDeliveryActor(deliveryID uint) string {
	return fmt.Sprintf("delivery:%d", deliveryID)
}

// TopicOrder is the topic scoped to one order
func TopicOrder(orderID uint) string {
	return fmt.Sprintf("order:%d", orderID)
}

// Event is the envelope relayed to subscribers
type Event struct {
	Kind    string                 `json:"kind"`
	Payload map[string]interface{} `json:"payload"`
}

// Notification is the generic user-facing message payload
type Notification struct {
	Type    string                 `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Publisher fans out domain events to topic-scoped listeners.
// Implementations must not block callers on listener delivery.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// PublishAll publishes the same event to several topics, returning the
// first error. Callers treat errors as advisory.
func PublishAll(ctx context.Context, p Publisher, event Event, topics ...string) error {
	var firstErr error
	for _, topic := range topics {
		if err := p.Publish(ctx, topic, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
