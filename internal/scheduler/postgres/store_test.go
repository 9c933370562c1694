package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/skylineware/spidercore/internal/spider"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dialector := gormpostgres.New(gormpostgres.Config{
		DSN:                  "sqlmock_db_0",
		DriverName:           "postgres",
		Conn:                 db,
		PreferSimpleProtocol: true,
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	store, err := NewWithDB(gormDB)
	require.NoError(t, err)
	return store, mock
}

func TestEnqueueCountsOnlyAcceptedRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "pending_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "pending_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	accepted, err := store.Enqueue(context.Background(), []spider.Request{
		{Hash: "h1", RequestUri: "https://example.com/a", Owner: "spider-1"},
		{Hash: "h2", RequestUri: "https://example.com/b", Owner: "spider-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, accepted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalScansCount(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "pending_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := store.Total(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeueReturnsNilWhenNIsNonPositive(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	reqs, err := store.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.Nil(t, reqs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeueSelectsAndDeletesLockedRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	now := time.Now().Unix()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "pending_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "hash", "request_uri", "owner", "downloader_type", "agent", "policy", "proxy",
			"headers", "requested_times", "depth", "timestamp",
		}).AddRow(1, "h1", "https://example.com/a", "spider-1", "HttpClient", "", "Random", "",
			"{}", 1, 0, now))
	mock.ExpectExec(`DELETE FROM "pending_requests"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reqs, err := store.Dequeue(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, "h1", reqs[0].Hash)
	require.Equal(t, spider.PolicyRandom, reqs[0].Policy)
	require.NoError(t, mock.ExpectationsWereMet())
}
