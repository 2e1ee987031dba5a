package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailwatch/internal/domain/model"
)

var copyInstruments = regexp.QuoteMeta(`COPY "instrument_snapshots"`)

func newMockAdapter(t *testing.T) (*PostgresAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresAdapter{db: db}, mock
}

func testSnapshot() model.UniverseSnapshot {
	return model.UniverseSnapshot{
		Instruments: []model.Instrument{
			{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Price: 65000, Volume: 1000},
			{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", Price: 0.05, Volume: 400},
		},
		FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:    "binance",
	}
}

func TestNewPostgresAdapter_Unreachable(t *testing.T) {
	adapter, err := NewPostgresAdapter("host=127.0.0.1 port=9 user=x dbname=x sslmode=disable connect_timeout=1", 5, time.Minute)
	require.Error(t, err)
	assert.Nil(t, adapter)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestPostgresAdapter_InitSchema(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS instrument_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdapter_SaveUniverseSnapshot(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	snapshot := testSnapshot()

	mock.ExpectBegin()
	copyStmt := mock.ExpectPrepare(copyInstruments)
	for _, i := range snapshot.Instruments {
		copyStmt.ExpectExec().
			WithArgs(snapshot.FetchedAt, "binance", i.Symbol, i.BaseAsset, i.QuoteAsset, i.Price, i.Volume).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	copyStmt.ExpectExec().WillReturnResult(sqlmock.NewResult(0, int64(len(snapshot.Instruments))))
	mock.ExpectCommit()

	require.NoError(t, adapter.SaveUniverseSnapshot(context.Background(), snapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdapter_SaveEmptySnapshotIsNoop(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	err := adapter.SaveUniverseSnapshot(context.Background(), model.UniverseSnapshot{Source: "binance"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "no transaction is opened for an empty snapshot")
}

func TestPostgresAdapter_SaveRowFailureRollsBack(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	snapshot := testSnapshot()
	first := snapshot.Instruments[0]

	mock.ExpectBegin()
	copyStmt := mock.ExpectPrepare(copyInstruments)
	copyStmt.ExpectExec().
		WithArgs(snapshot.FetchedAt, "binance", first.Symbol, first.BaseAsset, first.QuoteAsset, first.Price, first.Volume).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := adapter.SaveUniverseSnapshot(context.Background(), snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to copy instrument BTCUSDT")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdapter_SaveFlushFailureRollsBack(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	snapshot := testSnapshot()

	mock.ExpectBegin()
	copyStmt := mock.ExpectPrepare(copyInstruments)
	for range snapshot.Instruments {
		copyStmt.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
	copyStmt.ExpectExec().WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := adapter.SaveUniverseSnapshot(context.Background(), snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to flush copy")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdapter_LastSnapshotTime(t *testing.T) {
	lastSnapshot := regexp.QuoteMeta("SELECT MAX(fetched_at) FROM instrument_snapshots")

	t.Run("empty archive", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectQuery(lastSnapshot).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

		last, err := adapter.LastSnapshotTime(context.Background())
		require.NoError(t, err)
		assert.True(t, last.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("latest fetch", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery(lastSnapshot).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(fetched))

		last, err := adapter.LastSnapshotTime(context.Background())
		require.NoError(t, err)
		assert.True(t, fetched.Equal(last))
	})

	t.Run("query error", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectQuery(lastSnapshot).WillReturnError(errors.New("relation does not exist"))

		_, err := adapter.LastSnapshotTime(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query last snapshot")
	})
}
