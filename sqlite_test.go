package lazysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Pool {
	t.Helper()
	pool, err := NewSQLitePool(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	err = pool.WithConn(context.Background(), func(c *Conn) error {
		_, err := c.Exec(context.Background(),
			"CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)")
		return err
	})
	require.NoError(t, err)
	return pool
}

func countUsers(t *testing.T, src Source) int64 {
	t.Helper()
	n, ok, err := SelectOne(context.Background(), src, "SELECT COUNT(*) AS n FROM users",
		func(r *Row) (int64, error) { return r.Int("n"), r.Err() })
	require.NoError(t, err)
	require.True(t, ok)
	return n
}

func TestSQLite_InsertAndReadBack(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	keys, err := Insert(ctx, pool, "INSERT INTO users(name) VALUES (?)", Value("Alice"))
	require.NoError(t, err)
	ids, err := ToSlice(keys)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	name, ok, err := SelectOne(ctx, pool, "SELECT name FROM users WHERE id = ?",
		func(r *Row) (string, error) { return r.String("name"), r.Err() },
		Value(ids[0]))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", name)
}

func TestSQLite_MultiRowInsertKeys(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	keys, err := Insert(ctx, pool, "INSERT INTO users(name) VALUES (?),(?),(?)",
		Value("a"), Value("b"), Value("c"))
	require.NoError(t, err)
	ids, err := ToSlice(keys)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestSQLite_SelectStreamsLazily(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	_, err := Insert(ctx, pool, "INSERT INTO users(name) VALUES (?),(?),(?),(?),(?)",
		Value("a"), Value("b"), Value("c"), Value("d"), Value("e"))
	require.NoError(t, err)

	mapped := 0
	it, err := Select(ctx, pool, "SELECT id, name FROM users ORDER BY id",
		func(r *Row) (string, error) {
			mapped++
			return r.String("name"), r.Err()
		})
	require.NoError(t, err)
	assert.Equal(t, 0, mapped)

	window, err := Slice(it, 2, 4)
	require.NoError(t, err)
	got, err := ToSlice(window)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, got)
	assert.Equal(t, 2, mapped, "skipped rows are discarded on the cursor, not mapped")

	// the single pooled connection is free again
	assert.Equal(t, int64(0), pool.Stats().Borrowed)
}

func TestSQLite_SelectOneAbsent(t *testing.T) {
	pool := newTestDB(t)

	_, ok, err := SelectOne(context.Background(), pool, "SELECT name FROM users WHERE id = ?",
		func(r *Row) (string, error) { return r.String("name"), r.Err() },
		Value(404))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_InExpansion(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	_, err := Insert(ctx, pool, "INSERT INTO users(name) VALUES (?),(?),(?)",
		Value("a"), Value("b"), Value("c"))
	require.NoError(t, err)

	got, err := SelectAll(ctx, pool, "SELECT name FROM users WHERE id IN (?) ORDER BY id",
		func(r *Row) (string, error) { return r.String("name"), r.Err() },
		In(1, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestSQLite_InsertReturning(t *testing.T) {
	pool := newTestDB(t)

	it, err := InsertReturning(context.Background(), pool,
		"INSERT INTO users(name) VALUES (?),(?)", []string{"id"},
		func(r *Row) (int64, error) { return r.Int("id"), r.Err() },
		Value("x"), Value("y"))
	require.NoError(t, err)
	ids, err := ToSlice(it)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestSQLite_UpdateAndDelete(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	_, err := Insert(ctx, pool, "INSERT INTO users(name) VALUES (?),(?)",
		Value("a"), Value("b"))
	require.NoError(t, err)

	n, err := Update(ctx, pool, "UPDATE users SET name = ? WHERE id = ?",
		Value("z"), Value(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = Delete(ctx, pool, "DELETE FROM users WHERE id IN (?)", In(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(0), countUsers(t, pool))
}

func TestSQLite_Merge(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	_, err := Insert(ctx, pool, "INSERT INTO users(id, name) VALUES (?, ?)",
		Value(1), Value("old"))
	require.NoError(t, err)

	keys, err := Merge(ctx, pool,
		"INSERT INTO users(id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name",
		Value(1), Value("new"))
	require.NoError(t, err)
	_, err = ToSlice(keys)
	require.NoError(t, err)

	name, ok, err := SelectOne(ctx, pool, "SELECT name FROM users WHERE id = ?",
		func(r *Row) (string, error) { return r.String("name"), r.Err() },
		Value(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", name)
	assert.Equal(t, int64(1), countUsers(t, pool))
}

func TestSQLite_WithinTxCommit(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	err := pool.WithinTx(ctx, func(tx *Tx) error {
		_, err := Update(ctx, tx, "INSERT INTO users(name) VALUES (?)", Value("kept"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countUsers(t, pool))
}

func TestSQLite_WithinTxRollbackDiscards(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	err := pool.WithinTx(ctx, func(tx *Tx) error {
		if _, err := Update(ctx, tx, "INSERT INTO users(name) VALUES (?)", Value("lost")); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(0), countUsers(t, pool))
}

func TestSQLite_SavepointPartialRollback(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	err := pool.WithinTx(ctx, func(tx *Tx) error {
		if _, err := Update(ctx, tx, "INSERT INTO users(name) VALUES (?)", Value("kept")); err != nil {
			return err
		}
		if _, err := tx.Save(ctx); err != nil {
			return err
		}
		if _, err := Update(ctx, tx, "INSERT INTO users(name) VALUES (?)", Value("discarded")); err != nil {
			return err
		}
		// pop back to the savepoint; the transaction itself stays live
		return tx.Rollback(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countUsers(t, pool))

	names, err := SelectAll(context.Background(), pool, "SELECT name FROM users",
		func(r *Row) (string, error) { return r.String("name"), r.Err() })
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, names)
}

func TestSQLite_ExecBatch(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	rows := make([][]Param, 0, 7)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rows = append(rows, []Param{Value(name)})
	}
	counts, err := ExecBatch(ctx, pool, 3, "INSERT INTO users(name) VALUES (?)", FromSlice(rows))
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 1, 1}, {1, 1, 1}, {1}}, counts)
	assert.Equal(t, int64(7), countUsers(t, pool))
}

func TestSQLite_NullHandling(t *testing.T) {
	pool, err := NewSQLitePool(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	ctx := context.Background()

	err = pool.WithConn(ctx, func(c *Conn) error {
		_, err := c.Exec(ctx, "CREATE TABLE vals (id INTEGER PRIMARY KEY, v TEXT)")
		return err
	})
	require.NoError(t, err)

	_, err = Update(ctx, pool, "INSERT INTO vals(id, v) VALUES (?, ?)", Value(1), Null())
	require.NoError(t, err)

	type probe struct {
		v       string
		wasNull bool
	}
	got, ok, err := SelectOne(ctx, pool, "SELECT v FROM vals WHERE id = ?",
		func(r *Row) (probe, error) {
			v := r.String("v")
			return probe{v: v, wasNull: r.WasNull()}, r.Err()
		},
		Value(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.wasNull, "WasNull reflects the previous getter")
	assert.Empty(t, got.v)
}

func TestSQLite_OptBinding(t *testing.T) {
	pool := newTestDB(t)
	ctx := context.Background()

	name := "maybe"
	_, err := Update(ctx, pool, "INSERT INTO users(name) VALUES (?)", Opt(&name))
	require.NoError(t, err)

	got, err := SelectAll(ctx, pool, "SELECT name FROM users",
		func(r *Row) (string, error) { return r.String("name"), r.Err() })
	require.NoError(t, err)
	assert.Equal(t, []string{"maybe"}, got)
}

func TestSQLite_SelfCheck(t *testing.T) {
	pool := newTestDB(t)
	require.NoError(t, pool.SelfCheck(context.Background()))
	require.NoError(t, pool.Ping(context.Background()))
}
