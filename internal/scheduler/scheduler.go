// Package scheduler defines the Scheduler store external contract: a
// persistent, FIFO-ish queue of pending requests with its own
// fingerprint-based deduplication policy. The core depends only on this
// interface; concrete backends live in the memory, postgres and sqlite
// subpackages.
package scheduler

import (
	"context"

	"github.com/skylineware/spidercore/internal/spider"
)

// Store is the external Scheduler contract from spec.md §6/Glossary.
// Implementations own their de-duplication policy: Enqueue may accept
// fewer requests than it was handed.
type Store interface {
	// Enqueue appends reqs, in order, to the pending queue. It returns
	// the count newly accepted — duplicates per the store's own policy
	// are silently dropped and do not count.
	Enqueue(ctx context.Context, reqs []spider.Request) (accepted int, err error)
	// Dequeue removes and returns up to n pending requests, in the order
	// they were accepted. It returns fewer than n (possibly zero) when
	// the queue is drained.
	Dequeue(ctx context.Context, n int) ([]spider.Request, error)
	// Total reports the number of requests currently pending.
	Total(ctx context.Context) (int, error)
}
