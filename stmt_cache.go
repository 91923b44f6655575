package lazysql

import (
	"container/list"
	"context"
	"database/sql"
)

// stmtCache is a per-connection LRU cache of prepared statements, keyed by
// the expanded query text. A Conn is a single-consumer handle, so the cache
// needs no locking.
type stmtCache struct {
	cap    int
	ll     *list.List // front = most recently used
	m      map[string]*list.Element
	hits   uint64
	misses uint64
}

type stmtEntry struct {
	key  string
	stmt *sql.Stmt
}

func newStmtCache(capacity int) *stmtCache {
	if capacity < 0 {
		capacity = 0
	}
	return &stmtCache{cap: capacity, ll: list.New(), m: make(map[string]*list.Element)}
}

// getOrPrepare returns a statement for query, preparing and caching it on a
// miss. cached=true means the cache owns the statement's lifetime.
func (c *stmtCache) getOrPrepare(ctx context.Context, conn *sql.Conn, query string) (*sql.Stmt, bool, error) {
	if c == nil || c.cap == 0 {
		st, err := conn.PrepareContext(ctx, query)
		return st, false, err
	}
	if ele, ok := c.m[query]; ok {
		c.ll.MoveToFront(ele)
		c.hits++
		return ele.Value.(*stmtEntry).stmt, true, nil
	}
	st, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	c.misses++
	ele := c.ll.PushFront(&stmtEntry{key: query, stmt: st})
	c.m[query] = ele
	if c.ll.Len() > c.cap {
		c.evictLRU()
	}
	return st, true, nil
}

func (c *stmtCache) evictLRU() {
	back := c.ll.Back()
	if back == nil {
		return
	}
	c.ll.Remove(back)
	e := back.Value.(*stmtEntry)
	delete(c.m, e.key)
	_ = e.stmt.Close()
}

// closeAll releases every cached statement; called when the owning
// connection is returned to the pool.
func (c *stmtCache) closeAll() {
	for e := c.ll.Front(); e != nil; e = e.Next() {
		_ = e.Value.(*stmtEntry).stmt.Close()
	}
	c.ll.Init()
	c.m = make(map[string]*list.Element)
}

// Stats reports cache hits and misses.
func (c *stmtCache) stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	return c.hits, c.misses
}
