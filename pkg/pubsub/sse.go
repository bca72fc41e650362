package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mhkang/flowscope/pkg/logging"
)

// TopicConfig controls replay behavior for late subscribers.
type TopicConfig struct {
	BufferSize int  // number of events retained (0 = none)
	ReplayAll  bool // replay the whole buffer instead of just the last event
}

// SSEPublisher is an in-process fan-out publisher whose events are meant to
// be written to Server-Sent Event streams.
type SSEPublisher struct {
	mu      sync.RWMutex
	subs    map[string]map[*sseSubscription]struct{}
	version map[string]int
	buffer  map[string][]Event
	topics  map[string]TopicConfig
	closed  bool
}

// NewSSEPublisher creates an empty publisher with no topic configuration.
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{
		subs:    make(map[string]map[*sseSubscription]struct{}),
		version: make(map[string]int),
		buffer:  make(map[string][]Event),
		topics:  make(map[string]TopicConfig),
	}
}

// NewPanelPublisher creates a publisher preconfigured for the panel topics:
// the latest state snapshot is replayed to new subscribers, render
// notifications are not.
func NewPanelPublisher() *SSEPublisher {
	p := NewSSEPublisher()
	p.ConfigureTopic(TopicPanelState, TopicConfig{BufferSize: 1})
	p.ConfigureTopic(TopicRender, TopicConfig{})
	return p
}

// ConfigureTopic sets replay behavior for a topic.
func (p *SSEPublisher) ConfigureTopic(topic string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics[topic] = config
}

// Subscribe registers a subscriber and replays buffered events per the
// topic's configuration. Cancelling ctx closes the subscription.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("publisher is closed")
	}

	sub := &sseSubscription{
		topic: topic,
		// Buffered so a slow client never blocks the publisher.
		events:    make(chan Event, 64),
		publisher: p,
	}
	if p.subs[topic] == nil {
		p.subs[topic] = make(map[*sseSubscription]struct{})
	}
	p.subs[topic][sub] = struct{}{}

	replay := p.replayFor(topic)
	p.mu.Unlock()

	for _, event := range replay {
		select {
		case sub.events <- event:
		default:
			logging.Warn("dropped replay event, subscriber channel full", "topic", topic)
		}
	}
	if len(replay) > 0 {
		logging.Debug("replayed buffered events", "topic", topic, "count", len(replay))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// replayFor returns the events a new subscriber should see. Caller holds mu.
func (p *SSEPublisher) replayFor(topic string) []Event {
	buffered := p.buffer[topic]
	if len(buffered) == 0 {
		return nil
	}
	if !p.topics[topic].ReplayAll {
		buffered = buffered[len(buffered)-1:]
	}
	out := make([]Event, len(buffered))
	copy(out, buffered)
	return out
}

// Publish marshals data, stamps it with the topic's next version, buffers it
// per the topic configuration and delivers it to every subscriber without
// blocking.
func (p *SSEPublisher) Publish(topic string, eventType string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.version[topic]++
	event := Event{
		Topic:   topic,
		Type:    eventType,
		Data:    jsonData,
		Version: p.version[topic],
	}

	if size := p.topics[topic].BufferSize; size > 0 {
		buffer := append(p.buffer[topic], event)
		if len(buffer) > size {
			buffer = buffer[len(buffer)-size:]
		}
		p.buffer[topic] = buffer
	}

	for sub := range p.subs[topic] {
		select {
		case sub.events <- event:
		default:
			logging.Warn("dropped event, subscriber channel full", "topic", topic)
		}
	}

	return nil
}

// Close shuts down the publisher and closes every subscriber channel.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, subs := range p.subs {
		for sub := range subs {
			close(sub.events)
		}
	}
	p.subs = make(map[string]map[*sseSubscription]struct{})

	return nil
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if subs := p.subs[sub.topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(p.subs, sub.topic)
		}
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	mu        sync.Mutex
	closed    bool
}

func (s *sseSubscription) Topic() string { return s.topic }

func (s *sseSubscription) Events() <-chan Event { return s.events }

func (s *sseSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.publisher.unsubscribe(s)

	return nil
}

// WriteSSE writes one event in wire format: "data: {json}\n\n".
func WriteSSE(w io.Writer, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", jsonData)
	return err
}
