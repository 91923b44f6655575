package lazysql

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/metric"
)

// Pool wraps a *sql.DB together with the dialect strategy, observability
// toggles and borrow accounting. It is the only long-lived, goroutine-safe
// object in the package; everything handed out by it is a single-consumer
// handle.
type Pool struct {
	db      *sql.DB
	dialect Dialect

	logger             *slog.Logger
	loggingEnabled     bool
	slowQueryThreshold time.Duration

	telemetryEnabled bool
	metricsEnabled   bool
	metrics          *Metrics
	meterProvider    metric.MeterProvider

	leakThreshold time.Duration
	stmtCacheCap  int

	borrowedNow int64
	borrowTotal int64
	longHeld    int64
}

// PoolStats is a point-in-time snapshot of the pool.
type PoolStats struct {
	sql.DBStats
	Borrowed    int64 // connections currently borrowed through Acquire
	BorrowTotal int64 // borrows since the pool was created
	LongHeld    int64 // returns that exceeded the leak threshold
}

// NewPool opens a database handle per cfg, applies the pool settings,
// probes connectivity, and returns the wrapped pool. When cfg.ConnectTimeout
// is set the probe pings with exponential backoff until it succeeds or the
// budget is spent; otherwise a single ping decides.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	dialect := cfg.Dialect
	if dialect == nil {
		dialect = MySQLDialect{}
	}
	driver := cfg.Driver
	if driver == "" {
		driver = dialect.DriverName()
	}
	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	pc := cfg.Pool
	if pc == (PoolConfig{}) {
		pc = DefaultPoolConfig()
	}
	if err := ValidatePoolConfig(pc); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(pc.MaxOpen)
	db.SetMaxIdleConns(pc.MaxIdle)
	db.SetConnMaxLifetime(pc.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pc.ConnMaxIdleTime)

	if err := probe(ctx, db, cfg.ConnectTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Pool{
		db:                 db,
		dialect:            dialect,
		slowQueryThreshold: cfg.SlowQueryThreshold,
		leakThreshold:      cfg.LeakThreshold,
	}, nil
}

// NewPoolEnv builds a pool from LAZYSQL_* environment variables.
func NewPoolEnv(ctx context.Context) (*Pool, error) {
	return NewPool(ctx, configFromEnv())
}

// NewPoolDB wraps an already-open *sql.DB, typically a test double. The
// caller keeps responsibility for the handle's pool settings.
func NewPoolDB(db *sql.DB, dialect Dialect) *Pool {
	if dialect == nil {
		dialect = MySQLDialect{}
	}
	return &Pool{db: db, dialect: dialect}
}

// probe verifies connectivity at startup. This is the only backoff in the
// package; queries and transactions are never retried.
func probe(ctx context.Context, db *sql.DB, budget time.Duration) error {
	if budget <= 0 {
		return db.PingContext(ctx)
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = budget
	return backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx))
}

// Dialect returns the strategy object the pool was wired with.
func (p *Pool) Dialect() Dialect {
	if p == nil {
		return nil
	}
	return p.dialect
}

// Acquire takes a connection from the underlying pool, honoring ctx. A nil
// connection from the pool is reported as ErrNilConn, a distinct and logged
// failure mode.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p == nil || p.db == nil {
		return nil, ErrNilPool
	}
	start := time.Now()
	c, err := p.db.Conn(ctx)
	if err != nil {
		p.logConnection(ctx, "acquire", time.Since(start), err)
		return nil, err
	}
	if c == nil {
		p.logConnection(ctx, "acquire_nil", time.Since(start), ErrNilConn)
		return nil, ErrNilConn
	}
	p.logConnection(ctx, "acquire", time.Since(start), nil)
	conn := &Conn{inner: c, p: p}
	if p.stmtCacheCap > 0 {
		conn.cache = newStmtCache(p.stmtCacheCap)
	}
	conn.markAcquired()
	return conn, nil
}

// WithConn acquires a connection, calls fn, and always returns it.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// EnableStmtCache gives every subsequently acquired connection an LRU
// prepared-statement cache of the given capacity.
func (p *Pool) EnableStmtCache(capacity int) {
	if p == nil {
		return
	}
	p.stmtCacheCap = capacity
}

// Ping checks connectivity.
func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.db == nil {
		return ErrNilPool
	}
	return p.db.PingContext(ctx)
}

// SelfCheck round-trips a trivial query through a pooled connection.
func (p *Pool) SelfCheck(ctx context.Context) error {
	return p.WithConn(ctx, func(c *Conn) error {
		var one int
		return c.QueryRow(ctx, "SELECT 1").Scan(&one)
	})
}

// Stats snapshots pool and borrow counters.
func (p *Pool) Stats() PoolStats {
	if p == nil || p.db == nil {
		return PoolStats{}
	}
	return PoolStats{
		DBStats:     p.db.Stats(),
		Borrowed:    atomic.LoadInt64(&p.borrowedNow),
		BorrowTotal: atomic.LoadInt64(&p.borrowTotal),
		LongHeld:    atomic.LoadInt64(&p.longHeld),
	}
}

// Close closes the underlying database handle.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Pool) onBorrow() {
	atomic.AddInt64(&p.borrowedNow, 1)
	atomic.AddInt64(&p.borrowTotal, 1)
	p.recordBorrow(1)
}

func (p *Pool) onReturn(ctx context.Context, heldFor time.Duration) {
	atomic.AddInt64(&p.borrowedNow, -1)
	p.recordBorrow(-1)
	if p.leakThreshold > 0 && heldFor > p.leakThreshold {
		atomic.AddInt64(&p.longHeld, 1)
		p.logBorrowLeak(ctx, BorrowLeak{HeldFor: heldFor})
	}
}
