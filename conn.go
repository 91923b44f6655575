package lazysql

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"
)

// BorrowLeak carries info about a connection held past the leak threshold.
type BorrowLeak struct {
	HeldFor time.Duration
}

// Conn wraps a single connection borrowed from the pool. It is a
// single-consumer handle and must be closed to return the connection.
type Conn struct {
	inner *sql.Conn
	p     *Pool
	cache *stmtCache
	acqNS int64 // monotonic acquisition time (ns)
}

func (c *Conn) markAcquired() {
	if c == nil || c.p == nil {
		return
	}
	atomic.StoreInt64(&c.acqNS, time.Now().UnixNano())
	c.p.onBorrow()
}

// Exec executes a statement on this connection, binding params positionally
// after collection expansion.
func (c *Conn) Exec(ctx context.Context, query string, params ...Param) (sql.Result, error) {
	if c == nil || c.inner == nil {
		return nil, sql.ErrConnDone
	}
	start := time.Now()
	expanded, args, err := bindQuery(query, params)
	if err != nil {
		c.p.observe(ctx, "exec", query, nil, start, err)
		return nil, err
	}
	res, err := c.inner.ExecContext(ctx, expanded, args...)
	c.p.observe(ctx, "exec", expanded, args, start, err)
	return res, err
}

// Query runs a query on this connection and returns the raw rows. Most
// callers want Select, which wraps the rows in a resource-safe iterator.
func (c *Conn) Query(ctx context.Context, query string, params ...Param) (*sql.Rows, error) {
	if c == nil || c.inner == nil {
		return nil, sql.ErrConnDone
	}
	start := time.Now()
	expanded, args, err := bindQuery(query, params)
	if err != nil {
		c.p.observe(ctx, "query", query, nil, start, err)
		return nil, err
	}
	rows, err := c.inner.QueryContext(ctx, expanded, args...)
	c.p.observe(ctx, "query", expanded, args, start, err)
	return rows, err
}

// QueryRow runs a query expected to return at most one row.
func (c *Conn) QueryRow(ctx context.Context, query string, params ...Param) *sql.Row {
	if c == nil || c.inner == nil {
		return &sql.Row{}
	}
	expanded, args, err := bindQuery(query, params)
	if err != nil {
		// sql.Row carries no error slot we can set; fall through with the
		// unexpanded text so the driver reports the mismatch
		return c.inner.QueryRowContext(ctx, query)
	}
	return c.inner.QueryRowContext(ctx, expanded, args...)
}

// EnableStmtCache attaches an LRU prepared-statement cache of the given
// capacity to this connection.
func (c *Conn) EnableStmtCache(capacity int) {
	if c == nil {
		return
	}
	c.cache = newStmtCache(capacity)
}

// prepare returns a statement for query, from the cache when one is
// attached. cached=true means the cache owns the statement and the caller
// must not close it.
func (c *Conn) prepare(ctx context.Context, query string) (stmt *sql.Stmt, cached bool, err error) {
	if c == nil || c.inner == nil {
		return nil, false, sql.ErrConnDone
	}
	if c.cache != nil {
		return c.cache.getOrPrepare(ctx, c.inner, query)
	}
	stmt, err = c.inner.PrepareContext(ctx, query)
	return stmt, false, err
}

// Close returns the connection to the pool, closing any cached statements
// first.
func (c *Conn) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	if c.cache != nil {
		c.cache.closeAll()
	}
	held := time.Duration(time.Now().UnixNano() - atomic.LoadInt64(&c.acqNS))
	c.p.onReturn(context.Background(), held)
	return c.inner.Close()
}
