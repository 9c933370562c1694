// Package lifecycle orchestrates a spider's start/stop sequence per
// spec.md §4.6: explicit ordered construction with no DI framework,
// following the teacher's fx.go Build/setupX shape.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/admission"
	"github.com/skylineware/spidercore/internal/bus"
	"github.com/skylineware/spidercore/internal/consumer"
	"github.com/skylineware/spidercore/internal/dataflow"
	"github.com/skylineware/spidercore/internal/dispatcher"
	"github.com/skylineware/spidercore/internal/scheduler"
	"github.com/skylineware/spidercore/internal/spider"
	"github.com/skylineware/spidercore/internal/statistics"
)

const maxIDLength = 36

// ApplicationLifetime is a handle to request whole-process shutdown. The
// controller calls StopApplication exactly once as the final step of its
// stop sequence, per spec.md §8's termination-completeness invariant.
type ApplicationLifetime interface {
	StopApplication()
}

// RequestSupplier produces the seed requests a spider starts with.
// Implementations are user-supplied; the controller drains each one in
// registration order during the start sequence.
type RequestSupplier interface {
	Requests(ctx context.Context) ([]spider.Request, error)
}

// Hooks lets the hosting program observe the start sequence without the
// controller depending on it directly. A nil hook is a no-op.
type Hooks struct {
	// Initialize runs once, after StatisticsClient.Start and before the
	// supplier loader.
	Initialize func(ctx context.Context) error
}

// Controller owns the ordered start/stop sequence for one spider.
type Controller struct {
	id   string
	name string

	bus       bus.Bus
	store     scheduler.Store
	stats     statistics.Client
	admitter  *admission.Admitter
	pipeline  *dataflow.Pipeline
	dispatch  *dispatcher.Dispatcher
	consume   *consumer.Consumer
	suppliers []RequestSupplier
	hooks     Hooks
	lifetime  ApplicationLifetime
	logger    *zap.Logger

	subscription bus.Subscription

	stopOnce sync.Once
	exitOnce sync.Once
}

// Config bundles the collaborators a Controller wires together.
type Config struct {
	ID, Name  string
	Bus       bus.Bus
	Store     scheduler.Store
	Stats     statistics.Client
	Admitter  *admission.Admitter
	Pipeline  *dataflow.Pipeline
	Dispatch  *dispatcher.Dispatcher
	Consume   *consumer.Consumer
	Suppliers []RequestSupplier
	Hooks     Hooks
	Lifetime  ApplicationLifetime
	Logger    *zap.Logger
}

// New validates cfg.ID per spec.md §6 identity constraints and
// constructs a Controller. Returns spider.ErrInvalidID on a blank or
// over-long id, fatal at start as specified.
func New(cfg Config) (*Controller, error) {
	if cfg.ID == "" || len(cfg.ID) > maxIDLength {
		return nil, fmt.Errorf("%w: %q", spider.ErrInvalidID, cfg.ID)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		id:        cfg.ID,
		name:      cfg.Name,
		bus:       cfg.Bus,
		store:     cfg.Store,
		stats:     cfg.Stats,
		admitter:  cfg.Admitter,
		pipeline:  cfg.Pipeline,
		dispatch:  cfg.Dispatch,
		consume:   cfg.Consume,
		suppliers: cfg.Suppliers,
		hooks:     cfg.Hooks,
		lifetime:  cfg.Lifetime,
		logger:    logger,
	}, nil
}

// Run executes the full start sequence from spec.md §4.6, blocks running
// the dispatcher until it terminates or the consumer observes an Exit
// message, then runs the stop sequence. It returns the dispatcher's
// termination reason.
func (c *Controller) Run(ctx context.Context) (dispatcher.Reason, error) {
	c.stats.Start(c.id, c.name)

	if c.hooks.Initialize != nil {
		if err := c.hooks.Initialize(ctx); err != nil {
			return "", fmt.Errorf("initialize hook: %w", err)
		}
	}

	if err := c.loadSuppliers(ctx); err != nil {
		return "", err
	}

	if err := c.pipeline.Init(ctx); err != nil {
		c.exit()
		return "", err // already wraps spider.ErrStageInitFailed
	}

	total, err := c.store.Total(ctx)
	if err != nil {
		c.logger.Warn("scheduler total failed at startup", zap.Error(err))
	} else {
		c.stats.IncreaseTotal(c.id, total)
	}

	sub, err := c.consume.Subscribe(ctx, c.bus)
	if err != nil {
		return "", fmt.Errorf("register consumer: %w", err)
	}
	c.subscription = sub

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.consume.Exited():
			cancel()
		case <-runCtx.Done():
		}
	}()

	reason := c.dispatch.Run(runCtx)

	c.Stop(ctx)
	return reason, nil
}

func (c *Controller) loadSuppliers(ctx context.Context) error {
	for _, supplier := range c.suppliers {
		seeds, err := supplier.Requests(ctx)
		if err != nil {
			return fmt.Errorf("supplier loader: %w", err)
		}
		if len(seeds) == 0 {
			continue
		}
		if _, err := c.admitter.AddRequests(ctx, c.id, seeds); err != nil {
			return fmt.Errorf("supplier loader admission: %w", err)
		}
	}
	return nil
}

// Stop runs the stop sequence exactly once: close the consumer
// subscription, dispose data-flow stages in registration order, and
// Exit. Safe to call multiple times; calls after the first do nothing.
// Stop does not synchronize with a Run in progress: it neither cancels
// the dispatcher nor guards the subscription field that Run sets.
func (c *Controller) Stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		if c.subscription != nil {
			if err := c.subscription.Close(); err != nil {
				c.logger.Warn("consumer subscription close failed", zap.Error(err))
			}
		}
		if err := c.pipeline.Dispose(ctx); err != nil {
			c.logger.Warn("data-flow stage dispose failed", zap.Error(err))
		}
		c.exit()
	})
}

// exit calls StatisticsClient.Exit then ApplicationLifetime.StopApplication
// exactly once each, per spec.md §8's termination-completeness invariant.
func (c *Controller) exit() {
	c.exitOnce.Do(func() {
		c.stats.Exit(c.id)
		if c.lifetime != nil {
			c.lifetime.StopApplication()
		}
	})
}
