// Package requestqueue implements the in-flight table: the core's map of
// dispatched-but-not-yet-resolved requests, with O(1) lookup by hash and an
// insertion-ordered view for efficient timeout sweeps.
package requestqueue

import (
	"container/list"
	"sync"
	"time"

	"github.com/skylineware/spidercore/internal/spider"
)

type entry struct {
	req         spider.Request
	enqueuedAt  time.Time
	listElement *list.Element
}

// Queue is the in-flight table described in spec.md §4.1. It is safe for
// concurrent use; the dispatcher inserts, the consumer and timeout sweep
// remove.
type Queue struct {
	mu      sync.Mutex
	byHash  map[string]*entry
	order   *list.List // oldest-first; holds *entry values
	nowFunc func() time.Time
}

// New constructs an empty in-flight table.
func New() *Queue {
	return &Queue{
		byHash:  make(map[string]*entry),
		order:   list.New(),
		nowFunc: time.Now,
	}
}

// Enqueue inserts req iff no entry with the same hash exists. It returns
// true on insert, false if an entry is already in flight for that hash —
// callers must not re-dispatch a duplicate.
func (q *Queue) Enqueue(req spider.Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byHash[req.Hash]; exists {
		return false
	}
	e := &entry{req: req, enqueuedAt: q.nowFunc()}
	e.listElement = q.order.PushBack(e)
	q.byHash[req.Hash] = e
	return true
}

// Dequeue removes and returns the entry for hash. ok is false if no entry
// exists for that hash — the caller should treat the event as a stale or
// duplicate response and silently drop it.
func (q *Queue) Dequeue(hash string) (req spider.Request, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, exists := q.byHash[hash]
	if !exists {
		return spider.Request{}, false
	}
	q.remove(e)
	return e.req, true
}

// GetAllTimeoutList removes and returns, in insertion order, every entry
// whose time in the table exceeds timeout.
func (q *Queue) GetAllTimeoutList(timeout time.Duration) []spider.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.nowFunc()
	var timedOut []spider.Request
	for el := q.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if now.Sub(e.enqueuedAt) <= timeout {
			break // order is oldest-first; nothing after this can have timed out
		}
		timedOut = append(timedOut, e.req)
		q.remove(e)
		el = next
	}
	return timedOut
}

// Count returns the current number of in-flight entries.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byHash)
}

func (q *Queue) remove(e *entry) {
	delete(q.byHash, e.req.Hash)
	q.order.Remove(e.listElement)
}
