// Package telemetry carries up-to-date check outcome events to their sinks.
package telemetry

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/ritzau/fast-uptodate/pkg/logging"
	"github.com/ritzau/fast-uptodate/pkg/pubsub"
)

// Event names and property keys
const (
	EventCheckSuccess = "UpToDateCheckSuccess"
	EventCheckFail    = "UpToDateCheckFail"

	PropertyReason = "Reason"

	// TopicTelemetry is the pubsub topic PublisherService posts to
	TopicTelemetry = "telemetry"
)

// Event is a named telemetry event with optional string properties
type Event struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Service receives telemetry events
type Service interface {
	PostEvent(e Event)
}

// Recorder keeps every posted event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PostEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Properties = maps.Clone(e.Properties)
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in posting order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// PublisherService forwards events to a pubsub topic
type PublisherService struct {
	publisher pubsub.Publisher
}

// NewPublisherService creates a service posting to TopicTelemetry
func NewPublisherService(p pubsub.Publisher) *PublisherService {
	return &PublisherService{publisher: p}
}

func (s *PublisherService) PostEvent(e Event) {
	if err := s.publisher.Publish(TopicTelemetry, e.Name, e); err != nil {
		logging.Warn("failed to publish telemetry event", "event", e.Name, "error", err)
	}
}

// LogService writes events to a structured logger
type LogService struct {
	logger *slog.Logger
}

// NewLogService creates a service logging through logger, or the "telemetry" component logger when nil
func NewLogService(logger *slog.Logger) *LogService {
	if logger == nil {
		logger = logging.New("telemetry")
	}
	return &LogService{logger: logger}
}

func (s *LogService) PostEvent(e Event) {
	args := []any{"event", e.Name}
	for k, v := range e.Properties {
		args = append(args, k, v)
	}
	s.logger.Info("telemetry", args...)
}

// Multi fans each event out to several services
type Multi []Service

func (m Multi) PostEvent(e Event) {
	for _, s := range m {
		s.PostEvent(e)
	}
}

// Discard drops every event
type Discard struct{}

func (Discard) PostEvent(Event) {}
