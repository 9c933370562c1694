package factory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/dataflow"
	"github.com/skylineware/spidercore/internal/spider"
)

func TestNewReturnsNoopStageForBlankType(t *testing.T) {
	t.Parallel()

	stage, err := New(context.Background(), Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if stage.Name() != "noop" {
		t.Fatalf("unexpected stage: %s", stage.Name())
	}
}

func TestNewReturnsNoopStageForExplicitNoop(t *testing.T) {
	t.Parallel()

	stage, err := New(context.Background(), Config{Type: "noop"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := stage.(dataflow.NoopStage); !ok {
		t.Fatalf("expected a NoopStage, got %T", stage)
	}
}

func TestNewBuildsLocalBlobSink(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "blobs")
	stage, err := New(context.Background(), Config{
		Type:    "local.BlobSink",
		Options: map[string]string{"base_dir": dir},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if stage.Name() != "blobsink" {
		t.Fatalf("unexpected stage: %s", stage.Name())
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		t.Fatalf("expected base dir to be created: %v", statErr)
	}
}

func TestNewRejectsLocalBlobSinkWithoutBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Type: "local.BlobSink"}, zap.NewNop())
	if !errors.Is(err, spider.ErrStorageMisconfigured) {
		t.Fatalf("expected ErrStorageMisconfigured, got %v", err)
	}
}

func TestNewRejectsGCSBlobSinkWithoutBucket(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Type: "gcs.BlobSink"}, zap.NewNop())
	if !errors.Is(err, spider.ErrStorageMisconfigured) {
		t.Fatalf("expected ErrStorageMisconfigured, got %v", err)
	}
}

func TestNewRejectsPostgresRetrievalSinkWithoutDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Type: "postgres.RetrievalSink"}, zap.NewNop())
	if !errors.Is(err, spider.ErrStorageMisconfigured) {
		t.Fatalf("expected ErrStorageMisconfigured, got %v", err)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Type: "s3.BlobSink"}, zap.NewNop())
	if !errors.Is(err, spider.ErrStorageMisconfigured) {
		t.Fatalf("expected ErrStorageMisconfigured, got %v", err)
	}
}
