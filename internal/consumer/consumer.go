// Package consumer implements the response handler loop (spec.md §4.5):
// subscribe to a spider's control topic, decode inbound frames, correlate
// responses against the in-flight table, and route to the data-flow
// pipeline or back through admission.
package consumer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/admission"
	"github.com/skylineware/spidercore/internal/bus"
	"github.com/skylineware/spidercore/internal/dataflow"
	"github.com/skylineware/spidercore/internal/proxypool"
	"github.com/skylineware/spidercore/internal/requestqueue"
	"github.com/skylineware/spidercore/internal/spider"
	"github.com/skylineware/spidercore/internal/statistics"
	"github.com/skylineware/spidercore/internal/wire"
)

// ControlTopic returns the inbound control topic for spiderID, per
// spec.md §6: Spider.<ID_UPPER>.
func ControlTopic(spiderID string) string {
	return "Spider." + strings.ToUpper(spiderID)
}

// Consumer correlates agent responses against the in-flight table and
// drives the data-flow pipeline on success.
type Consumer struct {
	spiderID string
	inFlight *requestqueue.Queue
	admitter *admission.Admitter
	pipeline *dataflow.Pipeline
	stats    statistics.Client
	proxies  proxypool.Pool
	useProxy bool

	// exit is signaled once when an ExitMessage addressed to this
	// spider arrives.
	exit chan struct{}

	logger *zap.Logger
}

// New constructs a Consumer.
func New(
	spiderID string,
	inFlight *requestqueue.Queue,
	admitter *admission.Admitter,
	pipeline *dataflow.Pipeline,
	stats statistics.Client,
	proxies proxypool.Pool,
	useProxy bool,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		spiderID: spiderID,
		inFlight: inFlight,
		admitter: admitter,
		pipeline: pipeline,
		stats:    stats,
		proxies:  proxies,
		useProxy: useProxy,
		exit:     make(chan struct{}),
		logger:   logger,
	}
}

// Subscribe registers the Consumer's handler on b for this spider's
// control topic and returns the resulting Subscription.
func (c *Consumer) Subscribe(ctx context.Context, b bus.Bus) (bus.Subscription, error) {
	return b.Subscribe(ctx, ControlTopic(c.spiderID), func(payload []byte) {
		c.handle(ctx, payload)
	})
}

// Exited returns a channel closed exactly once, the moment an
// ExitMessage addressed to this spider has been received.
func (c *Consumer) Exited() <-chan struct{} {
	return c.exit
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	frame := wire.DecodeInbound(payload)
	switch frame.Kind {
	case wire.KindExit:
		c.handleExit(frame.Exit)
	case wire.KindResponse:
		c.handleResponse(ctx, frame.Response)
	default:
		c.logger.Warn("dropped unrecognized inbound frame", zap.Int("bytes", len(payload)))
	}
}

func (c *Consumer) handleExit(msg spider.ExitMessage) {
	if msg.Id != c.spiderID {
		return
	}
	select {
	case <-c.exit:
	default:
		close(c.exit)
	}
}

func (c *Consumer) handleResponse(ctx context.Context, resp spider.Response) {
	req, ok := c.inFlight.Dequeue(resp.RequestHash)
	if !ok {
		c.logger.Debug("dropped stale or duplicate response", zap.String("hash", resp.RequestHash))
		return
	}

	if c.useProxy && req.Proxy != "" {
		defer c.releaseProxy(req, resp)
	}

	if !resp.Succeeded() {
		c.stats.IncreaseAgentFailure(c.spiderID, resp.ElapsedMilliseconds)
		if _, err := c.admitter.AddRequests(ctx, c.spiderID, []spider.Request{req}); err != nil {
			c.logger.Warn("re-admission after agent failure failed", zap.String("hash", req.Hash), zap.Error(err))
		}
		return
	}

	req.Agent = resp.Agent
	c.stats.IncreaseAgentSuccess(c.spiderID, resp.ElapsedMilliseconds)

	follow, err := c.pipeline.Run(ctx, req, resp)
	if err != nil {
		c.logger.Warn("data-flow stage failed, re-admitting original request", zap.String("hash", req.Hash), zap.Error(err))
		if _, admitErr := c.admitter.AddRequests(ctx, c.spiderID, []spider.Request{req}); admitErr != nil {
			c.logger.Warn("re-admission after stage failure failed", zap.String("hash", req.Hash), zap.Error(admitErr))
		}
		return
	}

	if len(follow) > 0 {
		accepted, err := c.admitter.AddRequests(ctx, c.spiderID, follow)
		if err != nil {
			c.logger.Warn("admission of follow-up requests failed", zap.Error(err))
		} else {
			c.stats.IncreaseTotal(c.spiderID, accepted)
		}
	}
	c.stats.IncreaseSuccess(c.spiderID)
}

func (c *Consumer) releaseProxy(req spider.Request, resp spider.Response) {
	delta := -5
	if resp.Succeeded() {
		delta = 1
	}
	c.proxies.Release(req.Proxy, delta)
}
