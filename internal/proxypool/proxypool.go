// Package proxypool defines the ProxyPool external contract: lease a
// proxy endpoint of at least a minimum quality score. The core only
// depends on this interface; internal/proxypool/memory is the default
// in-process implementation.
package proxypool

import "context"

// Pool is the ProxyPool contract from spec.md §1/§4.4/§6.
type Pool interface {
	// Lease returns a proxy URI with a quality score of at least
	// minScore. ok is false if no such proxy is currently available,
	// which causes the dispatcher to terminate (spec.md §4.4, §7
	// NoProxyAvailable).
	Lease(ctx context.Context, minScore int) (uri string, ok bool)
	// Release returns a previously leased proxy to the pool, optionally
	// adjusting its score based on how the lease went.
	Release(uri string, scoreDelta int)
}
