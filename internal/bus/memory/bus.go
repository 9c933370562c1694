// Package memory provides an in-process Bus for tests and single-process
// deployments, generalizing the teacher's single-purpose buffered-channel
// queue to arbitrary publish-by-topic / subscribe-by-topic.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/skylineware/spidercore/internal/bus"
)

// Bus is a topic-keyed fan-out of byte payloads to subscriber handlers.
// Publish delivers synchronously to every current subscriber of the topic;
// there is no buffering or backlog — subscribe before publishing.
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*subscription
	closed bool
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{topics: make(map[string][]*subscription)}
}

type subscription struct {
	bus     *Bus
	topic   string
	id      int
	handler func(payload []byte)
}

// Publish invokes every current subscriber handler for topic with payload.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("bus closed")
	}
	subs := append([]*subscription(nil), b.topics[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(payload)
	}
	return nil
}

// Subscribe registers handler for topic and returns a Subscription that
// removes it on Close.
func (b *Bus) Subscribe(_ context.Context, topic string, handler func(payload []byte)) (bus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("bus closed")
	}
	s := &subscription{bus: b, topic: topic, handler: handler}
	b.topics[topic] = append(b.topics[topic], s)
	s.id = len(b.topics[topic]) - 1
	return s, nil
}

// Close marks the bus closed; further Publish/Subscribe calls fail.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.topics = nil
	return nil
}

// Close removes this subscription from its topic. It does not wait for
// handler calls already in progress, and a Publish that copied the
// subscriber list before Close may still deliver to this handler.
func (s *subscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.topics[s.topic]
	for i, existing := range subs {
		if existing == s {
			s.bus.topics[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
