package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ritzau/fast-uptodate/pkg/logging"
)

// ErrClosed is returned by Subscribe and Publish after Close
var ErrClosed = errors.New("publisher is closed")

// subscriberQueue is the per-subscription channel capacity; slow readers lose events
const subscriberQueue = 64

// TopicConfig configures retention for a topic
type TopicConfig struct {
	BufferSize int  // events retained for late subscribers (0 = none)
	ReplayAll  bool // replay every retained event instead of only the newest
}

// topic holds the per-topic state of an SSEPublisher
type topic struct {
	config  TopicConfig
	version int
	history []Event
	subs    map[*sseSubscription]struct{}
}

func (t *topic) retain(ev Event) {
	if t.config.BufferSize <= 0 {
		return
	}
	t.history = append(t.history, ev)
	if over := len(t.history) - t.config.BufferSize; over > 0 {
		t.history = t.history[over:]
	}
}

func (t *topic) replay() []Event {
	if len(t.history) == 0 {
		return nil
	}
	if t.config.ReplayAll {
		return append([]Event(nil), t.history...)
	}
	return []Event{t.history[len(t.history)-1]}
}

// SSEPublisher is an in-process Publisher whose events are streamed to HTTP clients
// as server-sent events
type SSEPublisher struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

// NewSSEPublisher creates a publisher with no configured topics
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topic)}
}

// topicLocked returns the named topic, creating it on first use; callers hold p.mu
func (p *SSEPublisher) topicLocked(name string) *topic {
	t, ok := p.topics[name]
	if !ok {
		t = &topic{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// ConfigureTopic sets retention for a topic. Already retained events are trimmed to fit.
func (p *SSEPublisher) ConfigureTopic(name string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.topicLocked(name)
	t.config = config
	if config.BufferSize <= 0 {
		t.history = nil
	} else if over := len(t.history) - config.BufferSize; over > 0 {
		t.history = t.history[over:]
	}
}

// Subscribe registers a subscription that first receives the topic's retained events.
// The subscription is closed when ctx is done.
func (p *SSEPublisher) Subscribe(ctx context.Context, name string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	t := p.topicLocked(name)
	backlog := t.replay()
	sub := &sseSubscription{
		topic:     name,
		events:    make(chan Event, len(backlog)+subscriberQueue),
		publisher: p,
	}
	// Replay while holding the lock so no live event can overtake the backlog
	for _, ev := range backlog {
		sub.events <- ev
	}
	t.subs[sub] = struct{}{}
	p.mu.Unlock()

	if len(backlog) > 0 {
		logging.Debug("replayed events to subscriber", "topic", name, "count", len(backlog))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Publish marshals data and fans the event out to every subscriber of the topic
func (p *SSEPublisher) Publish(name string, eventType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	t := p.topicLocked(name)
	t.version++
	ev := Event{Topic: name, Type: eventType, Data: raw, Version: t.version}
	t.retain(ev)

	for sub := range t.subs {
		select {
		case sub.events <- ev:
		default:
			logging.Warn("subscriber queue full, dropping event", "topic", name, "version", ev.Version)
		}
	}
	return nil
}

// Latest returns the newest retained event of a topic
func (p *SSEPublisher) Latest(name string) (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok || len(t.history) == 0 {
		return Event{}, false
	}
	return t.history[len(t.history)-1], true
}

// Close ends every subscription; later calls are no-ops
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, t := range p.topics {
		for sub := range t.subs {
			sub.markClosed()
			close(sub.events)
		}
		t.subs = nil
	}
	return nil
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[sub.topic]; ok && t.subs != nil {
		delete(t.subs, sub)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher

	mu     sync.Mutex
	closed bool
}

func (s *sseSubscription) Topic() string        { return s.topic }
func (s *sseSubscription) Events() <-chan Event { return s.events }

// Close detaches the subscription. The events channel is left open so a concurrent
// Publish never sends on a closed channel; readers stop on their own context.
func (s *sseSubscription) Close() error {
	if !s.markClosed() {
		return nil
	}
	s.publisher.unsubscribe(s)
	return nil
}

// markClosed reports whether this call closed the subscription
func (s *sseSubscription) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// WriteSSE writes one event in server-sent event framing: "data: {json}\n\n"
func WriteSSE(w io.Writer, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}

// Stream copies a subscription to an HTTP response until the client goes away
// or the publisher closes
func Stream(ctx context.Context, w http.ResponseWriter, sub Subscription) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// An initial comment opens the stream in clients that wait for the first byte
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return err
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := WriteSSE(w, ev); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
