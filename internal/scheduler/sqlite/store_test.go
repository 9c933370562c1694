package sqlite

import (
	"context"
	"testing"

	glebarezsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/skylineware/spidercore/internal/spider"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(glebarezsqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := NewWithDB(db)
	require.NoError(t, err)
	return s
}

func TestEnqueueDeduplicatesByHash(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	accepted, err := s.Enqueue(context.Background(), []spider.Request{
		{Hash: "h1", RequestUri: "https://example.com/a", Owner: "spider-1"},
		{Hash: "h1", RequestUri: "https://example.com/a", Owner: "spider-1"},
		{Hash: "h2", RequestUri: "https://example.com/b", Owner: "spider-1", Headers: map[string]string{"X-Test": "1"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, accepted)

	total, err := s.Total(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestDequeueReturnsFIFOOrderAndDrains(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Enqueue(context.Background(), []spider.Request{
		{Hash: "h1", RequestUri: "https://example.com/a", Owner: "spider-1"},
		{Hash: "h2", RequestUri: "https://example.com/b", Owner: "spider-1", Headers: map[string]string{"X-Test": "1"}},
		{Hash: "h3", RequestUri: "https://example.com/c", Owner: "spider-1"},
	})
	require.NoError(t, err)

	first, err := s.Dequeue(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "h1", first[0].Hash)
	require.Equal(t, "h2", first[1].Hash)
	require.Equal(t, "1", first[1].Headers["X-Test"])

	remaining, err := s.Total(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, remaining)

	second, err := s.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "h3", second[0].Hash)
}

func TestDequeueReturnsNilWhenNIsNonPositive(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	reqs, err := s.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.Nil(t, reqs)
}

func TestEnqueueAcceptsHashAgainAfterDequeue(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Enqueue(context.Background(), []spider.Request{{Hash: "h1", RequestUri: "https://example.com/a"}})
	require.NoError(t, err)

	_, err = s.Dequeue(context.Background(), 1)
	require.NoError(t, err)

	accepted, err := s.Enqueue(context.Background(), []spider.Request{{Hash: "h1", RequestUri: "https://example.com/a"}})
	require.NoError(t, err)
	require.Equal(t, 1, accepted)
}
