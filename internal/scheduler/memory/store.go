// Package memory provides an in-memory Scheduler store for development,
// testing and single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/skylineware/spidercore/internal/spider"
)

// Store is a FIFO queue of pending requests, deduplicated by Hash against
// the currently pending set: a request whose hash is already pending is
// silently dropped on Enqueue. Once a request is dequeued it leaves the
// pending set and its hash may be enqueued again — this is what lets a
// timed-out or retried request re-enter the queue.
type Store struct {
	mu      sync.Mutex
	pending []spider.Request
	seen    map[string]struct{}
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		seen: make(map[string]struct{}),
	}
}

// Enqueue appends reqs whose hash is not currently pending to the
// pending queue, in order, and returns how many were accepted.
func (s *Store) Enqueue(_ context.Context, reqs []spider.Request) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accepted := 0
	for _, req := range reqs {
		if _, dup := s.seen[req.Hash]; dup {
			continue
		}
		s.seen[req.Hash] = struct{}{}
		s.pending = append(s.pending, req)
		accepted++
	}
	return accepted, nil
}

// Dequeue removes and returns up to n pending requests in FIFO order.
func (s *Store) Dequeue(_ context.Context, n int) ([]spider.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.pending) == 0 {
		return nil, nil
	}
	if n > len(s.pending) {
		n = len(s.pending)
	}
	out := make([]spider.Request, n)
	copy(out, s.pending[:n])
	s.pending = s.pending[n:]
	for _, req := range out {
		delete(s.seen, req.Hash)
	}
	return out, nil
}

// Total reports the number of requests currently pending.
func (s *Store) Total(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), nil
}
