package lazysql

import (
	"database/sql"
	"strings"
	"time"
)

// Dialect captures per-database conventions: how generated keys are derived
// from a statement result, whether the database supports RETURNING, and how
// the driver renders temporal values. The caller wires the desired dialect
// explicitly at pool construction; there is no global registry.
type Dialect interface {
	Name() string
	DriverName() string

	// GeneratedKeys derives the keys produced by an insert or merge from
	// the driver result. An empty slice is a legal outcome when the
	// statement generated nothing and the dialect tolerates that.
	GeneratedKeys(res sql.Result) ([]int64, error)

	// ReturningClause renders a RETURNING list for cols (all columns when
	// cols is empty), or ok=false when the dialect has no RETURNING.
	ReturningClause(cols []string) (clause string, ok bool)

	// TimeLayout is the textual layout drivers of this dialect use for
	// temporal columns scanned as strings.
	TimeLayout() string
}

// MySQLDialect holds MySQL conventions for go-sql-driver/mysql.
type MySQLDialect struct {
	// ErrorOnEmptyKeys makes inserts that generate no keys fail with
	// ErrNoGeneratedKeys instead of yielding an empty iterator.
	ErrorOnEmptyKeys bool
}

func (MySQLDialect) Name() string       { return "mysql" }
func (MySQLDialect) DriverName() string { return "mysql" }

func (d MySQLDialect) GeneratedKeys(res sql.Result) ([]int64, error) {
	first, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if first == 0 || n <= 0 {
		if d.ErrorOnEmptyKeys {
			return nil, ErrNoGeneratedKeys
		}
		return nil, nil
	}
	// MySQL reports the first auto-increment id of a multi-row insert;
	// the allocation for the remaining rows is consecutive from it.
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = first + int64(i)
	}
	return keys, nil
}

func (MySQLDialect) ReturningClause([]string) (string, bool) { return "", false }

func (MySQLDialect) TimeLayout() string { return "2006-01-02 15:04:05" }

// SQLiteDialect holds SQLite conventions for modernc.org/sqlite.
type SQLiteDialect struct {
	// ErrorOnEmptyKeys makes inserts that generate no keys fail with
	// ErrNoGeneratedKeys instead of yielding an empty iterator.
	ErrorOnEmptyKeys bool
}

func (SQLiteDialect) Name() string       { return "sqlite" }
func (SQLiteDialect) DriverName() string { return "sqlite" }

func (d SQLiteDialect) GeneratedKeys(res sql.Result) ([]int64, error) {
	last, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if last == 0 || n <= 0 {
		if d.ErrorOnEmptyKeys {
			return nil, ErrNoGeneratedKeys
		}
		return nil, nil
	}
	// SQLite reports the last rowid; a multi-row insert counts backwards
	// from it.
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = last - n + 1 + int64(i)
	}
	return keys, nil
}

func (SQLiteDialect) ReturningClause(cols []string) (string, bool) {
	if len(cols) == 0 {
		return " RETURNING *", true
	}
	return " RETURNING " + strings.Join(cols, ", "), true
}

func (SQLiteDialect) TimeLayout() string { return time.RFC3339 }
