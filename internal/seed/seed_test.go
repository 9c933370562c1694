package seed

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeHasher struct {
	err error
}

func (h *fakeHasher) Hash(data []byte) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hash:" + string(data), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestRequestsHashesEachURL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New([]string{"https://a.example", "https://b.example"}, "HttpClient", &fakeHasher{}, &fakeClock{now: now})

	reqs, err := s.Requests(context.Background())
	if err != nil {
		t.Fatalf("Requests() error = %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("len(reqs) = %d, want 2", len(reqs))
	}
	if reqs[0].Hash != "hash:https://a.example" || reqs[0].RequestUri != "https://a.example" {
		t.Fatalf("reqs[0] = %+v", reqs[0])
	}
	if reqs[0].DownloaderType != "HttpClient" {
		t.Fatalf("reqs[0].DownloaderType = %q, want HttpClient", reqs[0].DownloaderType)
	}
	if reqs[0].Timestamp != now.UnixMilli() {
		t.Fatalf("reqs[0].Timestamp = %d, want %d", reqs[0].Timestamp, now.UnixMilli())
	}
}

func TestRequestsPropagatesHasherError(t *testing.T) {
	t.Parallel()

	s := New([]string{"https://a.example"}, "", &fakeHasher{err: errors.New("boom")}, &fakeClock{now: time.Now()})

	_, err := s.Requests(context.Background())
	if err == nil {
		t.Fatal("Requests() error = nil, want hasher error")
	}
}

func TestRequestsReturnsEmptySliceForNoURLs(t *testing.T) {
	t.Parallel()

	s := New(nil, "", &fakeHasher{}, &fakeClock{now: time.Now()})
	reqs, err := s.Requests(context.Background())
	if err != nil {
		t.Fatalf("Requests() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("len(reqs) = %d, want 0", len(reqs))
	}
}
