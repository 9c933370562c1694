// Package prom implements statistics.Client directly on the Prometheus
// collectors in internal/metrics, so operators get a StatisticsClient
// backend with zero additional infrastructure.
package prom

import (
	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/metrics"
	"github.com/skylineware/spidercore/internal/statistics"
)

// Client is a statistics.Client backed by Prometheus counters/gauges.
type Client struct {
	logger *zap.Logger
}

// New constructs a Client. metrics.Init must have been called once by the
// hosting program before any method here runs.
func New(logger *zap.Logger) *Client {
	return &Client{logger: logger}
}

func (c *Client) Start(id, name string) {
	metrics.ObserveStart(id)
	c.logger.Info("spider started", zap.String("spider_id", id), zap.String("spider_name", name))
}

func (c *Client) IncreaseTotal(id string, delta int) {
	metrics.ObserveTotal(id, delta)
}

func (c *Client) IncreaseSuccess(id string) {
	metrics.ObserveSuccess(id)
}

func (c *Client) IncreaseFailure(id string) {
	metrics.ObserveFailure(id)
}

func (c *Client) IncreaseAgentSuccess(id string, elapsedMs int64) {
	metrics.ObserveAgentSuccess(id, elapsedMs)
}

func (c *Client) IncreaseAgentFailure(id string, elapsedMs int64) {
	metrics.ObserveAgentFailure(id, elapsedMs)
}

func (c *Client) Exit(id string) {
	metrics.ObserveExit(id)
	c.logger.Info("spider exited", zap.String("spider_id", id))
}

func (c *Client) Print(id string, snapshot statistics.Snapshot) {
	metrics.ObserveSnapshot(id, snapshot.InFlightCount, snapshot.PendingTotal)
	c.logger.Info("spider snapshot",
		zap.String("spider_id", id),
		zap.Int("in_flight", snapshot.InFlightCount),
		zap.Int("pending", snapshot.PendingTotal),
		zap.Int64("paused_ms", snapshot.PausedMs),
		zap.Int64("idle_ms", snapshot.IdleMs),
	)
}
