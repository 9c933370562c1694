// Package retrievalsink is a data-flow stage that persists one durable
// row per resolved request/response pair via a RetrievalStore.
package retrievalsink

import (
	"context"
	"fmt"

	"github.com/skylineware/spidercore/internal/dataflow"
	"github.com/skylineware/spidercore/internal/spider"
)

// RetrievalStore is the persistence contract this stage writes through.
// internal/storage/postgres.RetrievalStore satisfies it.
type RetrievalStore interface {
	StoreRetrieval(ctx context.Context, req spider.Request, resp spider.Response) error
}

// Stage records every response the pipeline hands it. The pipeline runs
// only for successful responses, so failed fetches are not recorded here.
type Stage struct {
	store RetrievalStore
}

// New constructs a Stage over store.
func New(store RetrievalStore) *Stage {
	return &Stage{store: store}
}

// Name identifies the stage.
func (*Stage) Name() string { return "retrievalsink" }

// Init is a no-op; the RetrievalStore is already connected by construction.
func (*Stage) Init(context.Context) error { return nil }

// Dispose is a no-op; RetrievalStore implementations own no per-run state.
func (*Stage) Dispose(context.Context) error { return nil }

// Handle writes one retrieval row for the request/response pair.
func (s *Stage) Handle(ctx context.Context, dc *dataflow.Context) error {
	if err := s.store.StoreRetrieval(ctx, dc.Request, dc.Response); err != nil {
		return fmt.Errorf("store retrieval: %w", err)
	}
	return nil
}
