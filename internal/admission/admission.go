// Package admission implements RequestAdmission: validation, retry
// counting, depth enforcement and owner stamping for requests on their
// way into the Scheduler.
package admission

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/hash/sha256"
	"github.com/skylineware/spidercore/internal/scheduler"
	"github.com/skylineware/spidercore/internal/spider"
	"github.com/skylineware/spidercore/internal/statistics"
)

// FallbackHasher computes a fingerprint for a request that doesn't supply
// its own Hash. spec.md §3 frames Hash as supplied or computed by the
// Scheduler, with the core treating it as opaque; this exists only so a
// blank Hash still dedups cleanly against backends (e.g. the postgres
// Scheduler's unique index) that require a non-blank value.
type FallbackHasher interface {
	Hash(data []byte) (string, error)
}

// Config governs admission thresholds from spec.md §6.
type Config struct {
	// RetriedTimes is the maximum admission attempts per request.
	RetriedTimes int
	// Depth, when > 0, caps how many hops from a seed a request may be;
	// zero disables the check.
	Depth int
}

// Admitter runs AddRequests against a Store, tagging failures against a
// spider Id via a statistics.Client.
type Admitter struct {
	store  scheduler.Store
	stats  statistics.Client
	cfg    Config
	hasher FallbackHasher
	logger *zap.Logger
}

// New constructs an Admitter, falling back to SHA-256 for requests
// whose Hash is blank.
func New(store scheduler.Store, stats statistics.Client, cfg Config, logger *zap.Logger) *Admitter {
	return NewWithHasher(store, stats, cfg, sha256.New(), logger)
}

// NewWithHasher constructs an Admitter with an explicit FallbackHasher,
// primarily for testing.
func NewWithHasher(store scheduler.Store, stats statistics.Client, cfg Config, hasher FallbackHasher, logger *zap.Logger) *Admitter {
	return &Admitter{store: store, stats: stats, cfg: cfg, hasher: hasher, logger: logger}
}

// AddRequests runs each of reqs through the admission checks from
// spec.md §4.2 in order, stamps Owner, and hands the surviving batch to
// the Scheduler. It returns the count the Scheduler newly accepted.
func (a *Admitter) AddRequests(ctx context.Context, spiderID string, reqs []spider.Request) (int, error) {
	batch := make([]spider.Request, 0, len(reqs))

	for _, req := range reqs {
		if req.IsADSL() && req.Headers[spider.RedialRegExpHeader] == "" {
			return 0, fmt.Errorf("%w: ADSL request missing %s header", spider.ErrInvalidRequest, spider.RedialRegExpHeader)
		}

		if req.Hash == "" {
			hash, err := a.hasher.Hash([]byte(req.RequestUri))
			if err != nil {
				return 0, fmt.Errorf("%w: fallback hash: %v", spider.ErrInvalidRequest, err)
			}
			req.Hash = hash
		}

		req.RequestedTimes++

		if req.RequestedTimes > a.cfg.RetriedTimes {
			a.stats.IncreaseFailure(spiderID)
			a.logger.Debug("request exceeded retry budget",
				zap.String("hash", req.Hash), zap.Int("requested_times", req.RequestedTimes))
			continue
		}

		if a.cfg.Depth > 0 && req.Depth > a.cfg.Depth {
			a.logger.Debug("request exceeded depth limit",
				zap.String("hash", req.Hash), zap.Int("depth", req.Depth))
			continue
		}

		req.Owner = spiderID
		batch = append(batch, req)
	}

	if len(batch) == 0 {
		return 0, nil
	}

	accepted, err := a.store.Enqueue(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("scheduler enqueue: %w", err)
	}
	return accepted, nil
}
