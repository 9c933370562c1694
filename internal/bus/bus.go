// Package bus defines the MessageQueue external contract: publish-by-topic,
// subscribe-by-topic of opaque byte payloads. Concrete backends live in the
// memory, pubsub and sqs subpackages.
package bus

import "context"

// Bus is the MessageQueue contract from spec.md §1/§6.
type Bus interface {
	// Publish sends payload to topic. Implementations may treat this as
	// fire-and-forget.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers handler to be invoked for every payload
	// delivered on topic. It returns a Subscription the caller must
	// Close to stop receiving and release resources.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (Subscription, error)
	// Close releases the bus's own resources (clients, connections).
	Close() error
}

// Subscription represents one active Subscribe call.
type Subscription interface {
	// Close stops delivery to this subscription's handler and blocks
	// until any in-flight handler invocation finishes.
	Close() error
}
