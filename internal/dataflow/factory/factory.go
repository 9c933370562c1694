// Package factory builds the default data-flow stage from configuration,
// dispatching on a type string the way cmd/epp's plugin registration
// dispatches on a named plugin, but as a plain switch rather than a
// registry: the set of sinks is small and fixed.
package factory

import (
	"context"
	"fmt"

	gcpstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/dataflow"
	"github.com/skylineware/spidercore/internal/dataflow/stages/blobsink"
	"github.com/skylineware/spidercore/internal/dataflow/stages/retrievalsink"
	"github.com/skylineware/spidercore/internal/spider"
	"github.com/skylineware/spidercore/internal/storage/gcs"
	"github.com/skylineware/spidercore/internal/storage/local"
	"github.com/skylineware/spidercore/internal/storage/postgres"
)

// Config selects and parameterizes the default data-flow stage. Type is
// one of "gcs.BlobSink", "local.BlobSink", "postgres.RetrievalSink", or
// blank/"noop" for no persistence.
type Config struct {
	Type    string
	Options map[string]string
}

// New builds the Stage named by cfg.Type, returning
// spider.ErrStorageMisconfigured if the type is unrecognized or its
// required options are missing.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (dataflow.Stage, error) {
	switch cfg.Type {
	case "", "noop":
		return dataflow.NoopStage{}, nil

	case "gcs.BlobSink":
		bucket := cfg.Options["bucket"]
		if bucket == "" {
			return nil, fmt.Errorf("%w: gcs.BlobSink requires options.bucket", spider.ErrStorageMisconfigured)
		}
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: connect gcs: %v", spider.ErrStorageMisconfigured, err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", spider.ErrStorageMisconfigured, err)
		}
		return blobsink.New(store, logger), nil

	case "local.BlobSink":
		baseDir := cfg.Options["base_dir"]
		if baseDir == "" {
			return nil, fmt.Errorf("%w: local.BlobSink requires options.base_dir", spider.ErrStorageMisconfigured)
		}
		store, err := local.New(local.Config{BaseDir: baseDir})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", spider.ErrStorageMisconfigured, err)
		}
		return blobsink.New(store, logger), nil

	case "postgres.RetrievalSink":
		dsn := cfg.Options["dsn"]
		if dsn == "" {
			return nil, fmt.Errorf("%w: postgres.RetrievalSink requires options.dsn", spider.ErrStorageMisconfigured)
		}
		store, err := postgres.NewRetrievalStore(ctx, postgres.RetrievalStoreConfig{
			DSN:   dsn,
			Table: cfg.Options["table"],
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", spider.ErrStorageMisconfigured, err)
		}
		return retrievalsink.New(store), nil

	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", spider.ErrStorageMisconfigured, cfg.Type)
	}
}
