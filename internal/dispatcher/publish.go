package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/bus"
	"github.com/skylineware/spidercore/internal/proxypool"
	"github.com/skylineware/spidercore/internal/requestqueue"
	"github.com/skylineware/spidercore/internal/spider"
	"github.com/skylineware/spidercore/internal/wire"
)

const proxyMinScore = 70

// Publisher implements request publishing (spec.md §4.4): proxy leasing,
// destination-topic routing and atomic in-flight admission ahead of the
// wire send.
type Publisher struct {
	bus      bus.Bus
	proxies  proxypool.Pool
	inFlight *requestqueue.Queue
	useProxy bool
	now      func() time.Time
	logger   *zap.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(b bus.Bus, proxies proxypool.Pool, inFlight *requestqueue.Queue, useProxy bool, logger *zap.Logger) *Publisher {
	return &Publisher{bus: b, proxies: proxies, inFlight: inFlight, useProxy: useProxy, now: time.Now, logger: logger}
}

// Publish runs req through §4.4 and sends it if it survives. ok is false
// only on a fatal condition (no proxy available) that must terminate the
// dispatcher loop; an unsupported policy is fatal to this one request, not
// to the dispatcher, so it reports ok=true alongside the error — callers
// must inspect err, not ok, to tell the two apart. A dropped duplicate or
// a successful send both return (true, nil).
func (p *Publisher) Publish(ctx context.Context, req spider.Request) (ok bool, err error) {
	if p.useProxy {
		uri, leased := p.proxies.Lease(ctx, proxyMinScore)
		if !leased {
			return false, spider.ErrNoProxyAvailable
		}
		req.Proxy = uri
	}
	req.Timestamp = p.now().UnixMilli()

	topic, err := destinationTopic(req)
	if err != nil {
		return true, err
	}

	if !p.inFlight.Enqueue(req) {
		p.logger.Debug("dropped duplicate in-flight publish", zap.String("hash", req.Hash))
		return true, nil
	}

	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return true, fmt.Errorf("encode request %q: %w", req.Hash, err)
	}
	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		return true, fmt.Errorf("publish request %q to %q: %w", req.Hash, topic, err)
	}
	return true, nil
}

// destinationTopic chooses the outbound topic per spec.md §4.4 step 3.
func destinationTopic(req spider.Request) (string, error) {
	if req.Agent == "" {
		return strings.ToUpper(req.EffectiveDownloaderType()), nil
	}
	switch req.Policy {
	case spider.PolicyChained:
		return strings.ToUpper(req.Agent), nil
	case spider.PolicyRandom:
		return strings.ToUpper(req.EffectiveDownloaderType()), nil
	default:
		return "", fmt.Errorf("%w: %q", spider.ErrUnsupportedPolicy, req.Policy)
	}
}
