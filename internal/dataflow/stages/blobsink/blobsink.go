// Package blobsink is a data-flow stage that writes a successful
// response's content to a blob store, keyed by the request's
// fingerprint. It is backend-agnostic: local filesystem and GCS both
// satisfy BlobStore.
package blobsink

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/dataflow"
)

// BlobStore is the storage contract this stage writes through. Both
// internal/storage/gcs and internal/storage/local satisfy it.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Stage writes resp.Content to the configured BlobStore on every run and
// records the resulting URI under Properties["blob_uri"].
type Stage struct {
	store  BlobStore
	logger *zap.Logger
}

// New constructs a Stage over store.
func New(store BlobStore, logger *zap.Logger) *Stage {
	return &Stage{store: store, logger: logger}
}

// Name identifies the stage.
func (*Stage) Name() string { return "blobsink" }

// Init is a no-op; the BlobStore is already connected by construction.
func (*Stage) Init(context.Context) error { return nil }

// Dispose is a no-op; BlobStore implementations own no per-run state.
func (*Stage) Dispose(context.Context) error { return nil }

// Handle uploads the response body and records its URI. Requests with
// no body (redirects, empty 2xx responses) are skipped.
func (s *Stage) Handle(ctx context.Context, dc *dataflow.Context) error {
	if len(dc.Response.Content) == 0 {
		return nil
	}
	uri, err := s.store.PutObject(ctx, dc.Request.Hash, "", bytes.NewReader(dc.Response.Content))
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	dc.Properties["blob_uri"] = uri
	s.logger.Debug("stored response blob", zap.String("hash", dc.Request.Hash), zap.String("uri", uri))
	return nil
}
