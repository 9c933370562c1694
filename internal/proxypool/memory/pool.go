// Package memory provides an in-process ProxyPool keyed by endpoint URI,
// each guarded by a token-bucket availability limiter the way the
// teacher's per-domain rate limiter guards fetch concurrency — here
// repurposed to gate how often a given proxy may be re-leased, rather
// than how often a given domain may be fetched.
package memory

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type endpoint struct {
	uri     string
	score   int
	limiter *rate.Limiter
	leased  bool
}

// Pool is a fixed registry of proxy endpoints with mutable quality
// scores. Lease picks the highest-scoring available endpoint meeting the
// minimum score and not currently leased or rate-limited.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	byURI     map[string]*endpoint
}

// Config describes one registered proxy endpoint.
type Config struct {
	URI          string
	InitialScore int
	// LeasesPerSecond bounds how often this endpoint may be re-leased;
	// zero means unlimited.
	LeasesPerSecond float64
}

// NewPool constructs a Pool from a fixed set of endpoints.
func NewPool(endpoints []Config) *Pool {
	p := &Pool{byURI: make(map[string]*endpoint, len(endpoints))}
	for _, cfg := range endpoints {
		limit := rate.Inf
		if cfg.LeasesPerSecond > 0 {
			limit = rate.Limit(cfg.LeasesPerSecond)
		}
		e := &endpoint{
			uri:     cfg.URI,
			score:   cfg.InitialScore,
			limiter: rate.NewLimiter(limit, 1),
		}
		p.endpoints = append(p.endpoints, e)
		p.byURI[cfg.URI] = e
	}
	return p
}

// Lease returns the highest-scoring unleased endpoint with score >=
// minScore whose rate limiter currently allows a lease.
func (p *Pool) Lease(_ context.Context, minScore int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *endpoint
	for _, e := range p.endpoints {
		if e.leased || e.score < minScore || !e.limiter.Allow() {
			continue
		}
		if best == nil || e.score > best.score {
			best = e
		}
	}
	if best == nil {
		return "", false
	}
	best.leased = true
	return best.uri, true
}

// Release marks uri available again and applies scoreDelta, clamped to
// [0, 100].
func (p *Pool) Release(uri string, scoreDelta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byURI[uri]
	if !ok {
		return
	}
	e.leased = false
	e.score += scoreDelta
	if e.score < 0 {
		e.score = 0
	}
	if e.score > 100 {
		e.score = 100
	}
}
