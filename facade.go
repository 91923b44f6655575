package lazysql

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"time"
)

// executor is the driver surface shared by *sql.Conn and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// connLease is one leased connection-or-transaction: the executor to run
// on, the pool for observability and dialect, and the release that gives
// the connection back. Inside a transaction release is a no-op because the
// transaction owns the connection for its whole span.
type connLease struct {
	exec    executor
	pool    *Pool
	release func() error
	// cached is the stmt-cache-aware prepare, when the lease has one
	cached func(ctx context.Context, query string) (*sql.Stmt, bool, error)
}

// Source is where a query runs: a *Pool, which leases a fresh connection
// per call, or a *Tx, which reuses its single held connection. The method
// is unexported so the set of sources is closed.
type Source interface {
	lease(ctx context.Context) (*connLease, error)
}

func (p *Pool) lease(ctx context.Context) (*connLease, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &connLease{
		exec:    conn.inner,
		pool:    p,
		release: conn.Close,
		cached:  conn.prepare,
	}, nil
}

func (t *Tx) lease(ctx context.Context) (*connLease, error) {
	if t == nil || t.inner == nil || t.done {
		return nil, sql.ErrTxDone
	}
	return &connLease{
		exec:    t.inner,
		pool:    t.p,
		release: func() error { return nil },
	}, nil
}

// prepare returns a statement for the expanded query, via the lease's cache
// when it has one.
func (ls *connLease) prepare(ctx context.Context, query string) (*sql.Stmt, bool, error) {
	if ls.cached != nil {
		return ls.cached(ctx, query)
	}
	stmt, err := ls.exec.PrepareContext(ctx, query)
	return stmt, false, err
}

// Select executes query and returns a lazily-mapped iterator over its rows.
//
// The connection backing the cursor is released when the returned iterator
// closes, not when Select returns: the iterator is the caller's handle to
// the open cursor, so the connection's lifetime is extended to match it.
// Consuming to exhaustion closes automatically; stopping early requires
// Close, or With, which guarantees it.
func Select[T any](ctx context.Context, src Source, query string, mapper RowMapper[T], params ...Param) (Iterator[T], error) {
	return selectOp(ctx, src, "select", query, mapper, params)
}

func selectOp[T any](ctx context.Context, src Source, op, query string, mapper RowMapper[T], params []Param) (Iterator[T], error) {
	ls, err := src.lease(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	expanded, args, err := bindQuery(query, params)
	if err != nil {
		_ = ls.release()
		ls.pool.observe(ctx, op, query, nil, start, err)
		return nil, err
	}
	rows, done, err := ls.query(ctx, expanded, args)
	ls.pool.observe(ctx, op, expanded, args, start, err)
	if err != nil {
		_ = done()
		return nil, err
	}
	return newRowsIterator(rows, ls.pool.dialect, mapper, done)
}

// query runs expanded, preparing a statement when arguments are present.
// done releases everything the call holds: the statement (unless cached)
// and the leased connection.
func (ls *connLease) query(ctx context.Context, expanded string, args []any) (*sql.Rows, func() error, error) {
	if len(args) == 0 {
		rows, err := ls.exec.QueryContext(ctx, expanded)
		return rows, ls.release, err
	}
	stmt, cached, err := ls.prepare(ctx, expanded)
	if err != nil {
		return nil, ls.release, err
	}
	done := ls.release
	if !cached {
		release := ls.release
		done = func() error {
			serr := stmt.Close()
			rerr := release()
			if serr != nil {
				return serr
			}
			return rerr
		}
	}
	rows, err := stmt.QueryContext(ctx, args...)
	return rows, done, err
}

// SelectOne executes query and pulls at most one row, closing before it
// returns. ok reports whether a row existed.
func SelectOne[T any](ctx context.Context, src Source, query string, mapper RowMapper[T], params ...Param) (v T, ok bool, err error) {
	it, err := Select(ctx, src, query, mapper, params...)
	if err != nil {
		return v, false, err
	}
	defer it.Close()
	if !it.HasNext() {
		return v, false, nil
	}
	v, err = it.Next()
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// SelectAll executes query and materializes every row eagerly. The cursor
// and connection are released before SelectAll returns.
func SelectAll[T any](ctx context.Context, src Source, query string, mapper RowMapper[T], params ...Param) ([]T, error) {
	it, err := Select(ctx, src, query, mapper, params...)
	if err != nil {
		return nil, err
	}
	return ToSlice(it)
}

// execStatement is the shared exec path: lease, bind, run, observe, release
// before returning. No lazy handle escapes, so the connection never
// outlives the call.
func execStatement(ctx context.Context, src Source, op, query string, params []Param) (sql.Result, Dialect, error) {
	ls, err := src.lease(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer ls.release()
	start := time.Now()
	expanded, args, err := bindQuery(query, params)
	if err != nil {
		ls.pool.observe(ctx, op, query, nil, start, err)
		return nil, nil, err
	}
	res, err := ls.exec.ExecContext(ctx, expanded, args...)
	ls.pool.observe(ctx, op, expanded, args, start, err)
	return res, ls.pool.dialect, err
}

// Update executes a data-modifying statement and returns the driver's
// affected-row count.
func Update(ctx context.Context, src Source, query string, params ...Param) (int64, error) {
	return updateOp(ctx, src, "update", query, params)
}

// Delete is Update under a delete operation label.
func Delete(ctx context.Context, src Source, query string, params ...Param) (int64, error) {
	return updateOp(ctx, src, "delete", query, params)
}

func updateOp(ctx context.Context, src Source, op, query string, params []Param) (int64, error) {
	res, _, err := execStatement(ctx, src, op, query, params)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert executes an insert and returns an iterator over the generated
// keys, derived per the wired dialect's convention.
func Insert(ctx context.Context, src Source, query string, params ...Param) (Iterator[int64], error) {
	return insertKeys(ctx, src, "insert", query, params)
}

// Merge executes an upsert through the same machinery as Insert. Whether a
// merge generates keys depends on the dialect and the data, so an empty
// iterator is a legal outcome.
func Merge(ctx context.Context, src Source, query string, params ...Param) (Iterator[int64], error) {
	return insertKeys(ctx, src, "merge", query, params)
}

func insertKeys(ctx context.Context, src Source, op, query string, params []Param) (Iterator[int64], error) {
	res, dialect, err := execStatement(ctx, src, op, query, params)
	if err != nil {
		return nil, err
	}
	keys, err := dialect.GeneratedKeys(res)
	if err != nil {
		return nil, err
	}
	return FromSlice(keys), nil
}

// InsertReturning executes an insert with a RETURNING clause for cols (all
// generated columns when cols is empty) and maps each returned row, for
// dialects that support RETURNING. As with Select, the connection is
// released when the iterator closes.
func InsertReturning[T any](ctx context.Context, src Source, query string, cols []string, mapper RowMapper[T], params ...Param) (Iterator[T], error) {
	ls, err := src.lease(ctx)
	if err != nil {
		return nil, err
	}
	clause, ok := ls.pool.dialect.ReturningClause(cols)
	if !ok {
		_ = ls.release()
		return nil, fmt.Errorf("lazysql: %s has no RETURNING: %w", ls.pool.dialect.Name(), ErrUnsupported)
	}
	start := time.Now()
	expanded, args, err := bindQuery(query, params)
	if err != nil {
		_ = ls.release()
		ls.pool.observe(ctx, "insert", query, nil, start, err)
		return nil, err
	}
	expanded += clause
	rows, done, err := ls.query(ctx, expanded, args)
	ls.pool.observe(ctx, "insert", expanded, args, start, err)
	if err != nil {
		_ = done()
		return nil, err
	}
	return newRowsIterator(rows, ls.pool.dialect, mapper, done)
}

// ExecBatch groups rows into chunks of batchSize, executes every row of a
// chunk against one prepared statement, and returns the per-statement
// affected counts grouped by chunk in submission order. The row iterator is
// fully consumed and closed. Collection parameters are rejected: a batch
// reuses one statement, so per-row placeholder expansion cannot apply.
func ExecBatch(ctx context.Context, src Source, batchSize int, query string, rows Iterator[[]Param]) ([][]int64, error) {
	if batchSize <= 0 {
		defer rows.Close()
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidRange, batchSize)
	}
	ls, err := src.lease(ctx)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	defer ls.release()
	defer rows.Close()

	start := time.Now()
	stmt, cached, err := ls.prepare(ctx, query)
	if err != nil {
		ls.pool.observe(ctx, "batch", query, nil, start, err)
		return nil, err
	}
	if !cached {
		defer stmt.Close()
	}

	chunks, err := Grouped(rows, batchSize)
	if err != nil {
		return nil, err
	}
	var counts [][]int64
	for chunks.HasNext() {
		chunk, err := chunks.Next()
		if err != nil {
			ls.pool.observe(ctx, "batch", query, nil, start, err)
			return counts, err
		}
		chunkCounts := make([]int64, 0, len(chunk))
		for _, rowParams := range chunk {
			args, err := flattenBatchRow(rowParams)
			if err != nil {
				ls.pool.observe(ctx, "batch", query, nil, start, err)
				return counts, err
			}
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				ls.pool.observe(ctx, "batch", query, args, start, err)
				return counts, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return counts, err
			}
			chunkCounts = append(chunkCounts, n)
		}
		counts = append(counts, chunkCounts)
	}
	ls.pool.observe(ctx, "batch", query, nil, start, nil)
	return counts, nil
}

func flattenBatchRow(params []Param) ([]any, error) {
	for _, p := range params {
		if _, ok := p.(listParam); ok {
			return nil, fmt.Errorf("lazysql: collection parameter in batch row: %w", ErrUnsupported)
		}
	}
	return flattenArgs(params)
}

// Proc calls a result-set-returning stored procedure. It behaves exactly as
// Select, including the iterator-bound connection lifetime.
func Proc[T any](ctx context.Context, src Source, call string, mapper RowMapper[T], params ...Param) (Iterator[T], error) {
	return selectOp(ctx, src, "proc", call, mapper, params)
}

// OutValues exposes a procedure's OUT-parameter results by the names they
// were registered with.
type OutValues struct {
	dests map[string]any
}

// Value returns the OUT parameter registered under name, dereferenced; nil
// when the name is unknown or the destination was left nil.
func (o *OutValues) Value(name string) any {
	d, ok := o.dests[name]
	if !ok || d == nil {
		return nil
	}
	rv := reflect.ValueOf(d)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return d
	}
	return rv.Elem().Interface()
}

// Int returns the OUT parameter under name as an int64, 0 when absent.
func (o *OutValues) Int(name string) int64 {
	switch v := o.Value(name).(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// String returns the OUT parameter under name as a string, "" when absent.
func (o *OutValues) String(name string) string {
	switch v := o.Value(name).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ProcOut executes a stored procedure whose results come back through
// registered OutArg parameters, then hands the populated values to fn.
func ProcOut[T any](ctx context.Context, src Source, call string, fn func(*OutValues) (T, error), params ...Param) (T, error) {
	var zero T
	dests := make(map[string]any)
	for _, p := range params {
		if o, ok := p.(outParam); ok {
			dests[o.name] = o.dest
		}
	}
	if _, _, err := execStatement(ctx, src, "proc", call, params); err != nil {
		return zero, err
	}
	return fn(&OutValues{dests: dests})
}
