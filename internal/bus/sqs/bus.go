// Package sqs implements a Bus backed by Amazon SQS, grounded on the
// isidorus writer worker's receive/delete client shape, generalized from
// one fixed queue to an arbitrary topic-to-queue-URL mapping so an
// operator can route different logical topics to different queues.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/skylineware/spidercore/internal/bus"
)

// QueueURLResolver maps a logical topic name (e.g. "HTTPCLIENT", "A7") to
// the SQS queue URL that backs it.
type QueueURLResolver func(topic string) (string, error)

// Bus publishes to and long-polls from SQS queues resolved per topic.
type Bus struct {
	client   *sqs.Client
	resolve  QueueURLResolver
	waitSecs int32
}

// New constructs a Bus. waitSeconds bounds how long each long-poll receive
// call blocks (SQS caps this at 20).
func New(client *sqs.Client, resolve QueueURLResolver, waitSeconds int32) *Bus {
	if waitSeconds <= 0 || waitSeconds > 20 {
		waitSeconds = 20
	}
	return &Bus{client: client, resolve: resolve, waitSecs: waitSeconds}
}

// Publish sends payload as the body of a message on the queue resolved
// from topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	queueURL, err := b.resolve(topic)
	if err != nil {
		return fmt.Errorf("resolve queue url for topic %q: %w", topic, err)
	}
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("send message to topic %q: %w", topic, err)
	}
	return nil
}

// Subscribe starts a long-poll receive loop against the queue resolved
// from topic, invoking handler for each message and deleting it once
// handler returns.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (bus.Subscription, error) {
	queueURL, err := b.resolve(topic)
	if err != nil {
		return nil, fmt.Errorf("resolve queue url for topic %q: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go b.receiveLoop(subCtx, done, queueURL, handler)

	return &subscription{cancel: cancel, done: done}, nil
}

func (b *Bus) receiveLoop(ctx context.Context, done chan struct{}, queueURL string, handler func(payload []byte)) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     b.waitSecs,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range out.Messages {
			if msg.Body != nil {
				handler([]byte(*msg.Body))
			}
			if msg.ReceiptHandle != nil {
				_, _ = b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(queueURL),
					ReceiptHandle: msg.ReceiptHandle,
				})
			}
		}
	}
}

// Close is a no-op: the SQS client holds no long-lived connection to tear down.
func (b *Bus) Close() error { return nil }

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}
