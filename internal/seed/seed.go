// Package seed provides a lifecycle.RequestSupplier that turns a flat
// list of URLs into admission-ready requests: Hash derived from the URL
// itself (so the same URL always dedupes to the same fingerprint) and
// Timestamp stamped at supply time.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/skylineware/spidercore/internal/spider"
)

// Hasher computes a stable digest for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Supplier implements lifecycle.RequestSupplier over a static URL list.
type Supplier struct {
	urls           []string
	downloaderType string
	hasher         Hasher
	clock          Clock
}

// New constructs a Supplier. downloaderType is stamped on every produced
// request; blank defaults to spider.DefaultDownloaderType at dispatch.
func New(urls []string, downloaderType string, hasher Hasher, clock Clock) *Supplier {
	return &Supplier{urls: urls, downloaderType: downloaderType, hasher: hasher, clock: clock}
}

// Requests hashes each URL and returns one spider.Request per entry.
func (s *Supplier) Requests(context.Context) ([]spider.Request, error) {
	out := make([]spider.Request, 0, len(s.urls))
	for _, url := range s.urls {
		hash, err := s.hasher.Hash([]byte(url))
		if err != nil {
			return nil, fmt.Errorf("hash seed url %q: %w", url, err)
		}
		out = append(out, spider.Request{
			Hash:           hash,
			RequestUri:     url,
			DownloaderType: s.downloaderType,
			Timestamp:      s.clock.Now().UnixMilli(),
		})
	}
	return out, nil
}
