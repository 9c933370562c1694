package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/skylineware/spidercore/internal/spider"
)

func TestStoreRetrievalInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "retrievals")
	require.NoError(t, err)

	req := spider.Request{Hash: "abc123", RequestUri: "https://example.com", Owner: "spider-1"}
	resp := spider.Response{RequestHash: "abc123", Agent: "agent-1", StatusCode: 200, ElapsedMilliseconds: 120, Content: []byte("<html></html>")}

	mock.ExpectExec("INSERT INTO retrievals").
		WithArgs(
			req.Hash,
			req.RequestUri,
			req.Owner,
			resp.Agent,
			resp.StatusCode,
			resp.ElapsedMilliseconds,
			len(resp.Content),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.StoreRetrieval(context.Background(), req, resp)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRetrievalRejectsBlankHash(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "retrievals")
	require.NoError(t, err)

	err = store.StoreRetrieval(context.Background(), spider.Request{}, spider.Response{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
