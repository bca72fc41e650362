package pubsub

import (
	"context"
	"encoding/json"
)

// Topics used by the panel server. State snapshots are buffered so a client
// that connects mid-session immediately sees the current panel; render
// notifications are fire-and-forget.
const (
	TopicPanelState = "panel_state"
	TopicRender     = "render"
)

// Event is a single pub/sub message delivered to subscribers.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // e.g. "snapshot", "rendered"
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // per-topic ordering
}

// Subscription is a client's handle on a topic stream.
type Subscription interface {
	// Topic returns the subscribed topic.
	Topic() string

	// Events returns the channel events are delivered on.
	Events() <-chan Event

	// Close ends the subscription.
	Close() error
}

// Publisher fans events out to topic subscribers.
type Publisher interface {
	// Subscribe creates a subscription; cancelling ctx closes it.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic.
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions.
	Close() error
}
