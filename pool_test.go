package lazysql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_NilSafety(t *testing.T) {
	var p *Pool
	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNilPool)
	assert.ErrorIs(t, p.Ping(context.Background()), ErrNilPool)
	assert.NoError(t, p.Close())
	assert.Equal(t, PoolStats{}, p.Stats())
}

func TestPool_BorrowAccounting(t *testing.T) {
	pool, _ := mockDB(t)

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Borrowed)
	assert.Equal(t, int64(1), stats.BorrowTotal)

	require.NoError(t, conn.Close())
	stats = pool.Stats()
	assert.Equal(t, int64(0), stats.Borrowed)
	assert.Equal(t, int64(1), stats.BorrowTotal)
}

func TestPool_LeakDetection(t *testing.T) {
	pool, _ := mockDB(t)
	pool.leakThreshold = time.Nanosecond

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	require.NoError(t, conn.Close())

	assert.Equal(t, int64(1), pool.Stats().LongHeld)
}

func TestPool_WithConnPropagatesError(t *testing.T) {
	pool, _ := mockDB(t)

	err := pool.WithConn(context.Background(), func(*Conn) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(0), pool.Stats().Borrowed, "the connection is returned on error")
}

func TestPool_SelfCheck(t *testing.T) {
	pool, mock := mockDB(t)
	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	require.NoError(t, pool.SelfCheck(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	pool := NewPoolDB(db, MySQLDialect{})

	mock.ExpectPing()
	require.NoError(t, pool.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_DialectDefault(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pool := NewPoolDB(db, nil)
	assert.Equal(t, "mysql", pool.Dialect().Name())
}

func TestValidatePoolConfig(t *testing.T) {
	require.NoError(t, ValidatePoolConfig(DefaultPoolConfig()))

	assert.Error(t, ValidatePoolConfig(PoolConfig{MaxOpen: 0}))
	assert.Error(t, ValidatePoolConfig(PoolConfig{MaxOpen: 5, MaxIdle: -1}))
	assert.Error(t, ValidatePoolConfig(PoolConfig{MaxOpen: 5, MaxIdle: 10}))
	assert.Error(t, ValidatePoolConfig(PoolConfig{MaxOpen: 5, MaxIdle: 2, ConnMaxLifetime: -time.Second}))
}

func TestConn_StmtCacheReuse(t *testing.T) {
	pool, mock := mockDB(t)
	pool.EnableStmtCache(4)

	prep := mock.ExpectPrepare("SELECT name FROM users WHERE id = ?")
	prep.ExpectQuery().WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))
	// second call reuses the cached statement, no second prepare
	prep.ExpectQuery().WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Bob"))

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	require.NotNil(t, conn.cache)

	stmt1, cached, err := conn.prepare(context.Background(), "SELECT name FROM users WHERE id = ?")
	require.NoError(t, err)
	assert.True(t, cached)
	rows, err := stmt1.QueryContext(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	stmt2, cached, err := conn.prepare(context.Background(), "SELECT name FROM users WHERE id = ?")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, stmt1, stmt2)
	rows, err = stmt2.QueryContext(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	hits, misses := conn.cache.stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestStmtCache_EvictsLRU(t *testing.T) {
	cache := newStmtCache(2)
	pool, mock := mockDB(t)
	mock.ExpectPrepare("SELECT 1")
	mock.ExpectPrepare("SELECT 2")
	mock.ExpectPrepare("SELECT 3")

	conn, err := pool.db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = cache.getOrPrepare(context.Background(), conn, "SELECT 1")
	require.NoError(t, err)
	_, _, err = cache.getOrPrepare(context.Background(), conn, "SELECT 2")
	require.NoError(t, err)
	_, _, err = cache.getOrPrepare(context.Background(), conn, "SELECT 3")
	require.NoError(t, err)

	assert.Len(t, cache.m, 2)
	_, oldest := cache.m["SELECT 1"]
	assert.False(t, oldest, "the least recently used entry is evicted")
}
