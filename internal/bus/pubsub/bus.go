// Package pubsub implements a Bus backed by Google Cloud Pub/Sub,
// generalizing the teacher's single-topic publisher/subscriber wiring to
// arbitrary publish-by-topic / subscribe-by-topic of opaque frames.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/skylineware/spidercore/internal/bus"
)

// Bus publishes to and pulls from Pub/Sub topics/subscriptions named after
// the logical topic strings the core uses (e.g. "HTTPCLIENT", "A7").
// ProjectID-scoped subscription names are derived as "<topic>-sub"; an
// operator provisioning infrastructure is expected to pre-create the
// matching topic and subscription pair.
type Bus struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New constructs a Bus backed by the given Pub/Sub client.
func New(client *pubsub.Client) *Bus {
	return &Bus{client: client, topics: make(map[string]*pubsub.Topic)}
}

func (b *Bus) topicHandle(topic string) *pubsub.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		t = b.client.Topic(topic)
		b.topics[topic] = t
	}
	return t
}

// Publish sends payload to the Pub/Sub topic named by topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	result := b.topicHandle(topic).Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to topic %q: %w", topic, err)
	}
	return nil
}

// Subscribe pulls from the subscription "<topic>-sub" and invokes handler
// for every message, acking immediately — redelivery on handler panic is
// the operator's concern via Pub/Sub's own retry policy, not this bus's.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (bus.Subscription, error) {
	sub := b.client.Subscription(topic + "-sub")
	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = sub.Receive(subCtx, func(_ context.Context, msg *pubsub.Message) {
			handler(msg.Data)
			msg.Ack()
		})
	}()

	return &subscription{cancel: cancel, done: done}, nil
}

// Close closes the underlying Pub/Sub client.
func (b *Bus) Close() error {
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}
