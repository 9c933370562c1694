package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/bus"
	"github.com/skylineware/spidercore/internal/requestqueue"
	"github.com/skylineware/spidercore/internal/spider"
)

type fakeBus struct {
	published []publishedMsg
	err       error
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func (b *fakeBus) Publish(_ context.Context, topic string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, publishedMsg{topic: topic, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string, func([]byte)) (bus.Subscription, error) {
	return nil, nil
}

func (b *fakeBus) Close() error { return nil }

type fakeProxies struct {
	uri    string
	leased bool
}

func (f *fakeProxies) Lease(context.Context, int) (string, bool) { return f.uri, f.leased }
func (f *fakeProxies) Release(string, int)                       {}

func TestPublishSendsToDefaultDownloaderTopicWhenAgentBlank(t *testing.T) {
	t.Parallel()

	b := &fakeBus{}
	q := requestqueue.New()
	p := NewPublisher(b, &fakeProxies{}, q, false, zap.NewNop())

	ok, err := p.Publish(context.Background(), spider.Request{Hash: "H1", RequestUri: "http://x"})
	if err != nil || !ok {
		t.Fatalf("Publish() = (%v, %v), want (true, nil)", ok, err)
	}
	if len(b.published) != 1 || b.published[0].topic != "HTTPCLIENT" {
		t.Fatalf("published = %+v, want one message on HTTPCLIENT", b.published)
	}
	if q.Count() != 1 {
		t.Fatalf("requestqueue.Count() = %d, want 1 after publish", q.Count())
	}
}

func TestPublishPinsChainedFollowUpToAgent(t *testing.T) {
	t.Parallel()

	b := &fakeBus{}
	q := requestqueue.New()
	p := NewPublisher(b, &fakeProxies{}, q, false, zap.NewNop())

	_, err := p.Publish(context.Background(), spider.Request{Hash: "H1", Agent: "agent-7", Policy: spider.PolicyChained})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(b.published) != 1 || b.published[0].topic != "AGENT-7" {
		t.Fatalf("published = %+v, want topic AGENT-7", b.published)
	}
}

func TestPublishRandomFollowUpUsesDownloaderTopic(t *testing.T) {
	t.Parallel()

	b := &fakeBus{}
	q := requestqueue.New()
	p := NewPublisher(b, &fakeProxies{}, q, false, zap.NewNop())

	_, err := p.Publish(context.Background(), spider.Request{Hash: "H1", Agent: "agent-7", Policy: spider.PolicyRandom, DownloaderType: "Headless"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(b.published) != 1 || b.published[0].topic != "HEADLESS" {
		t.Fatalf("published = %+v, want topic HEADLESS", b.published)
	}
}

func TestPublishRejectsUnsupportedPolicy(t *testing.T) {
	t.Parallel()

	b := &fakeBus{}
	q := requestqueue.New()
	p := NewPublisher(b, &fakeProxies{}, q, false, zap.NewNop())

	ok, err := p.Publish(context.Background(), spider.Request{Hash: "H1", Agent: "agent-7", Policy: "Weird"})
	if !errors.Is(err, spider.ErrUnsupportedPolicy) {
		t.Fatalf("Publish() error = %v, want ErrUnsupportedPolicy", err)
	}
	if !ok {
		t.Fatalf("Publish() ok = %v, want true: an unsupported policy is fatal to this request, not to the dispatcher", ok)
	}
}

func TestPublishDropsDuplicateInFlightWithoutSending(t *testing.T) {
	t.Parallel()

	b := &fakeBus{}
	q := requestqueue.New()
	q.Enqueue(spider.Request{Hash: "H1"})
	p := NewPublisher(b, &fakeProxies{}, q, false, zap.NewNop())

	ok, err := p.Publish(context.Background(), spider.Request{Hash: "H1"})
	if err != nil || !ok {
		t.Fatalf("Publish() = (%v, %v), want (true, nil) for a dropped duplicate", ok, err)
	}
	if len(b.published) != 0 {
		t.Fatalf("published = %+v, want no send for a duplicate", b.published)
	}
}

func TestPublishFailsFatallyWhenNoProxyAvailable(t *testing.T) {
	t.Parallel()

	b := &fakeBus{}
	q := requestqueue.New()
	p := NewPublisher(b, &fakeProxies{leased: false}, q, true, zap.NewNop())

	ok, err := p.Publish(context.Background(), spider.Request{Hash: "H1"})
	if ok || !errors.Is(err, spider.ErrNoProxyAvailable) {
		t.Fatalf("Publish() = (%v, %v), want (false, ErrNoProxyAvailable)", ok, err)
	}
}

func TestPublishStampsLeasedProxyAndTimestamp(t *testing.T) {
	t.Parallel()

	b := &fakeBus{}
	q := requestqueue.New()
	p := NewPublisher(b, &fakeProxies{uri: "proxy://1.2.3.4", leased: true}, q, true, zap.NewNop())
	before := time.Now().UnixMilli()

	_, err := p.Publish(context.Background(), spider.Request{Hash: "H1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	req, ok := q.Dequeue("H1")
	if !ok {
		t.Fatal("expected H1 to be in flight after publish")
	}
	if req.Proxy != "proxy://1.2.3.4" {
		t.Fatalf("req.Proxy = %q, want leased uri", req.Proxy)
	}
	if req.Timestamp < before {
		t.Fatalf("req.Timestamp = %d, want >= %d", req.Timestamp, before)
	}
}
