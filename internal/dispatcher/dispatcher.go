// Package dispatcher implements the rate-paced drain of the scheduler and
// publish to agents (spec.md §4.3), plus the request-publishing step
// (§4.4) in publish.go.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/admission"
	"github.com/skylineware/spidercore/internal/requestqueue"
	"github.com/skylineware/spidercore/internal/scheduler"
	"github.com/skylineware/spidercore/internal/spider"
	"github.com/skylineware/spidercore/internal/statistics"
)

// Reason names why the loop exited, for the lifecycle controller to log.
type Reason string

const (
	ReasonCanceled    Reason = "canceled"
	ReasonPausedLimit Reason = "paused too long"
	ReasonIdleLimit   Reason = "drained"
	ReasonNoProxy     Reason = "no proxy"
)

// Config governs pacing and termination thresholds from spec.md §4.3/§6.
type Config struct {
	// Speed is the target requests/second; see pacing() for how it maps
	// to an interval and batch size.
	Speed float64
	// RequestedQueueCount is the soft in-flight ceiling that triggers
	// back-pressure.
	RequestedQueueCount int
	// EmptySleepTime, in seconds, is the terminal threshold for both the
	// idle and paused states.
	EmptySleepTime int
	// RequestTimeout is how long an in-flight entry may sit before the
	// sweep re-admits it.
	RequestTimeout time.Duration
}

// pacing returns the tick interval and per-tick batch size per spec.md
// §4.3's pacing tuple.
func (c Config) pacing() (interval time.Duration, batch int) {
	speed := c.Speed
	if speed <= 0 {
		speed = 1
	}
	if speed >= 1 {
		return time.Second, int(speed)
	}
	return time.Duration(1/speed) * time.Second, 1
}

func (c Config) sleepLimit() time.Duration {
	return time.Duration(c.EmptySleepTime) * time.Second
}

// ConfigureRequest lets the hosting program adjust a request (e.g. set
// headers) immediately before it is published, per spec.md §4.3 step 5.
type ConfigureRequest func(spider.Request) spider.Request

// Dispatcher drains the Scheduler at a configured pace and publishes to
// agents, sweeping timeouts ahead of every dispatch.
type Dispatcher struct {
	spiderID  string
	store     scheduler.Store
	inFlight  *requestqueue.Queue
	admitter  *admission.Admitter
	publisher *Publisher
	stats     statistics.Client
	cfg       Config
	configure ConfigureRequest
	logger    *zap.Logger
}

// New constructs a Dispatcher.
func New(
	spiderID string,
	store scheduler.Store,
	inFlight *requestqueue.Queue,
	admitter *admission.Admitter,
	publisher *Publisher,
	stats statistics.Client,
	cfg Config,
	configure ConfigureRequest,
	logger *zap.Logger,
) *Dispatcher {
	if configure == nil {
		configure = func(r spider.Request) spider.Request { return r }
	}
	return &Dispatcher{
		spiderID:  spiderID,
		store:     store,
		inFlight:  inFlight,
		admitter:  admitter,
		publisher: publisher,
		stats:     stats,
		cfg:       cfg,
		configure: configure,
		logger:    logger,
	}
}

// Run executes the tick loop from spec.md §4.3 until ctx is canceled or a
// terminal condition is hit. It returns the reason the loop stopped.
func (d *Dispatcher) Run(ctx context.Context) Reason {
	interval, batch := d.cfg.pacing()
	sleepLimit := d.cfg.sleepLimit()

	var pausedMs, idleMs, printAccumMs time.Duration

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonCanceled
		case <-ticker.C:
		}

		printAccumMs += interval
		if printAccumMs >= 5*time.Second {
			printAccumMs = 0
			d.stats.Print(d.spiderID, d.snapshot(pausedMs, idleMs))
		}

		if d.inFlight.Count() > d.cfg.RequestedQueueCount {
			pausedMs += interval
			if pausedMs > sleepLimit {
				return ReasonPausedLimit
			}
			continue
		}
		pausedMs = 0

		timedOut := d.inFlight.GetAllTimeoutList(d.cfg.RequestTimeout)
		if len(timedOut) > 0 {
			if _, err := d.admitter.AddRequests(ctx, d.spiderID, timedOut); err != nil {
				d.logger.Warn("re-admission of timed-out requests failed", zap.Error(err))
			}
			continue
		}

		pending, err := d.store.Dequeue(ctx, batch)
		if err != nil {
			d.logger.Warn("scheduler dequeue failed", zap.Error(err))
			continue
		}
		if len(pending) == 0 {
			idleMs += interval
			if idleMs > sleepLimit {
				return ReasonIdleLimit
			}
			continue
		}
		idleMs = 0

		for _, req := range pending {
			req = d.configure(req)
			ok, err := d.publisher.Publish(ctx, req)
			if err != nil {
				d.logger.Warn("publish failed", zap.String("hash", req.Hash), zap.Error(err))
				if errors.Is(err, spider.ErrNoProxyAvailable) {
					return ReasonNoProxy
				}
				// Fatal to this one request (e.g. an unsupported Policy
				// value), not to the dispatcher: skip it and keep draining
				// the rest of the batch.
				continue
			}
			if !ok {
				return ReasonNoProxy
			}
		}
	}
}

func (d *Dispatcher) snapshot(pausedMs, idleMs time.Duration) statistics.Snapshot {
	pending, err := d.store.Total(context.Background())
	if err != nil {
		d.logger.Debug("scheduler total failed for snapshot", zap.Error(err))
	}
	return statistics.Snapshot{
		InFlightCount: d.inFlight.Count(),
		PendingTotal:  pending,
		PausedMs:      pausedMs.Milliseconds(),
		IdleMs:        idleMs.Milliseconds(),
	}
}
