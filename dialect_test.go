package lazysql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	lastID   int64
	affected int64
	err      error
}

func (r fakeResult) LastInsertId() (int64, error) { return r.lastID, r.err }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, r.err }

func TestMySQLDialect_GeneratedKeysForward(t *testing.T) {
	// MySQL reports the first id of a multi-row insert
	keys, err := MySQLDialect{}.GeneratedKeys(fakeResult{lastID: 5, affected: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6, 7}, keys)
}

func TestMySQLDialect_SingleKey(t *testing.T) {
	keys, err := MySQLDialect{}.GeneratedKeys(fakeResult{lastID: 42, affected: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, keys)
}

func TestMySQLDialect_NoKeys(t *testing.T) {
	keys, err := MySQLDialect{}.GeneratedKeys(fakeResult{lastID: 0, affected: 2})
	require.NoError(t, err)
	assert.Empty(t, keys, "a keyless statement yields an empty key set by default")
}

func TestMySQLDialect_NoKeysStrict(t *testing.T) {
	d := MySQLDialect{ErrorOnEmptyKeys: true}
	_, err := d.GeneratedKeys(fakeResult{lastID: 0, affected: 2})
	assert.ErrorIs(t, err, ErrNoGeneratedKeys)
}

func TestMySQLDialect_ResultError(t *testing.T) {
	boom := errors.New("driver has no insert id")
	_, err := MySQLDialect{}.GeneratedKeys(fakeResult{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestMySQLDialect_NoReturning(t *testing.T) {
	_, ok := MySQLDialect{}.ReturningClause([]string{"id"})
	assert.False(t, ok)
}

func TestSQLiteDialect_GeneratedKeysBackward(t *testing.T) {
	// SQLite reports the last rowid of a multi-row insert
	keys, err := SQLiteDialect{}.GeneratedKeys(fakeResult{lastID: 7, affected: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6, 7}, keys)
}

func TestSQLiteDialect_NoKeysStrict(t *testing.T) {
	d := SQLiteDialect{ErrorOnEmptyKeys: true}
	_, err := d.GeneratedKeys(fakeResult{lastID: 0, affected: 1})
	assert.ErrorIs(t, err, ErrNoGeneratedKeys)
}

func TestSQLiteDialect_Returning(t *testing.T) {
	clause, ok := SQLiteDialect{}.ReturningClause(nil)
	require.True(t, ok)
	assert.Equal(t, " RETURNING *", clause)

	clause, ok = SQLiteDialect{}.ReturningClause([]string{"id", "name"})
	require.True(t, ok)
	assert.Equal(t, " RETURNING id, name", clause)
}

func TestDialect_Names(t *testing.T) {
	assert.Equal(t, "mysql", MySQLDialect{}.Name())
	assert.Equal(t, "mysql", MySQLDialect{}.DriverName())
	assert.Equal(t, "sqlite", SQLiteDialect{}.Name())
	assert.Equal(t, "sqlite", SQLiteDialect{}.DriverName())
}
