package admission

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/spider"
	"github.com/skylineware/spidercore/internal/statistics"
)

type fakeStore struct {
	enqueued [][]spider.Request
	accept   int
	err      error
}

func (f *fakeStore) Enqueue(_ context.Context, reqs []spider.Request) (int, error) {
	f.enqueued = append(f.enqueued, reqs)
	if f.err != nil {
		return 0, f.err
	}
	if f.accept > 0 {
		return f.accept, nil
	}
	return len(reqs), nil
}

func (f *fakeStore) Dequeue(context.Context, int) ([]spider.Request, error) { return nil, nil }
func (f *fakeStore) Total(context.Context) (int, error)                     { return 0, nil }

type fakeStats struct {
	failures []string
}

func (f *fakeStats) Start(string, string)                     {}
func (f *fakeStats) IncreaseTotal(string, int)                {}
func (f *fakeStats) IncreaseSuccess(string)                   {}
func (f *fakeStats) IncreaseFailure(id string)                { f.failures = append(f.failures, id) }
func (f *fakeStats) IncreaseAgentSuccess(string, int64)       {}
func (f *fakeStats) IncreaseAgentFailure(string, int64)       {}
func (f *fakeStats) Exit(string)                              {}
func (f *fakeStats) Print(string, statistics.Snapshot)        {}

func TestAddRequestsStampsOwnerAndForwardsSurvivors(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	stats := &fakeStats{}
	a := New(store, stats, Config{RetriedTimes: 3, Depth: 0}, zap.NewNop())

	accepted, err := a.AddRequests(context.Background(), "spider-1", []spider.Request{
		{Hash: "H1"},
		{Hash: "H2"},
	})
	if err != nil {
		t.Fatalf("AddRequests() error = %v", err)
	}
	if accepted != 2 {
		t.Fatalf("AddRequests() accepted = %d, want 2", accepted)
	}
	if len(store.enqueued) != 1 || len(store.enqueued[0]) != 2 {
		t.Fatalf("store.enqueued = %+v, want one batch of 2", store.enqueued)
	}
	for _, req := range store.enqueued[0] {
		if req.Owner != "spider-1" {
			t.Fatalf("request %+v not stamped with owner", req)
		}
		if req.RequestedTimes != 1 {
			t.Fatalf("RequestedTimes = %d, want 1 on first admission", req.RequestedTimes)
		}
	}
}

func TestAddRequestsSkipsAndRecordsFailureWhenRetryBudgetExceeded(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	stats := &fakeStats{}
	a := New(store, stats, Config{RetriedTimes: 2}, zap.NewNop())

	// RequestedTimes is already 2; incrementing to 3 exceeds RetriedTimes=2.
	accepted, err := a.AddRequests(context.Background(), "spider-1", []spider.Request{
		{Hash: "H1", RequestedTimes: 2},
	})
	if err != nil {
		t.Fatalf("AddRequests() error = %v", err)
	}
	if accepted != 0 {
		t.Fatalf("AddRequests() accepted = %d, want 0", accepted)
	}
	if len(store.enqueued) != 0 {
		t.Fatalf("store.Enqueue should not be called for an empty batch, got %+v", store.enqueued)
	}
	if len(stats.failures) != 1 || stats.failures[0] != "spider-1" {
		t.Fatalf("stats.failures = %+v, want one failure for spider-1", stats.failures)
	}
}

func TestAddRequestsSkipsSilentlyWhenDepthExceeded(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	stats := &fakeStats{}
	a := New(store, stats, Config{RetriedTimes: 3, Depth: 2}, zap.NewNop())

	accepted, err := a.AddRequests(context.Background(), "spider-1", []spider.Request{
		{Hash: "H1", Depth: 3},
	})
	if err != nil {
		t.Fatalf("AddRequests() error = %v", err)
	}
	if accepted != 0 {
		t.Fatalf("AddRequests() accepted = %d, want 0", accepted)
	}
	if len(stats.failures) != 0 {
		t.Fatalf("depth-skip must not record a failure, got %+v", stats.failures)
	}
}

func TestAddRequestsRejectsADSLWithoutRedialHeader(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	stats := &fakeStats{}
	a := New(store, stats, Config{RetriedTimes: 3}, zap.NewNop())

	_, err := a.AddRequests(context.Background(), "spider-1", []spider.Request{
		{Hash: "H1", DownloaderType: "ADSL-A"},
	})
	if !errors.Is(err, spider.ErrInvalidRequest) {
		t.Fatalf("AddRequests() error = %v, want ErrInvalidRequest", err)
	}
	if len(store.enqueued) != 0 {
		t.Fatalf("store should not be touched on InvalidRequest, got %+v", store.enqueued)
	}
}

func TestAddRequestsFallsBackToSHA256HashWhenBlank(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	stats := &fakeStats{}
	a := New(store, stats, Config{RetriedTimes: 3}, zap.NewNop())

	_, err := a.AddRequests(context.Background(), "spider-1", []spider.Request{
		{RequestUri: "https://example.com/a"},
	})
	if err != nil {
		t.Fatalf("AddRequests() error = %v", err)
	}
	if len(store.enqueued) != 1 || len(store.enqueued[0]) != 1 {
		t.Fatalf("store.enqueued = %+v, want one batch of 1", store.enqueued)
	}
	if store.enqueued[0][0].Hash == "" {
		t.Fatal("request left with a blank Hash, want a computed fallback")
	}
}

func TestAddRequestsPropagatesHasherError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	stats := &fakeStats{}
	a := NewWithHasher(store, stats, Config{RetriedTimes: 3}, &failingHasher{}, zap.NewNop())

	_, err := a.AddRequests(context.Background(), "spider-1", []spider.Request{
		{RequestUri: "https://example.com/a"},
	})
	if !errors.Is(err, spider.ErrInvalidRequest) {
		t.Fatalf("AddRequests() error = %v, want ErrInvalidRequest", err)
	}
}

type failingHasher struct{}

func (failingHasher) Hash([]byte) (string, error) { return "", errors.New("boom") }

func TestAddRequestsAllowsADSLWithRedialHeader(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	stats := &fakeStats{}
	a := New(store, stats, Config{RetriedTimes: 3}, zap.NewNop())

	accepted, err := a.AddRequests(context.Background(), "spider-1", []spider.Request{
		{
			Hash:           "H1",
			DownloaderType: "ADSL-A",
			Headers:        map[string]string{spider.RedialRegExpHeader: ".*"},
		},
	})
	if err != nil {
		t.Fatalf("AddRequests() error = %v", err)
	}
	if accepted != 1 {
		t.Fatalf("AddRequests() accepted = %d, want 1", accepted)
	}
}
