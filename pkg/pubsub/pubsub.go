package pubsub

import (
	"context"
	"encoding/json"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "snapshot", "telemetry", "check")
	Type    string          `json:"type"`    // Event type (e.g., "updated", "UpToDateCheckFail")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// CheckStatus is published on the "check" topic after every Build check
type CheckStatus struct {
	Project  string   `json:"project"`
	CheckID  string   `json:"checkId"`
	UpToDate bool     `json:"upToDate"`
	Reason   string   `json:"reason,omitempty"`
	Lines    []string `json:"lines"`
}
