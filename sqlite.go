package lazysql

import (
	"context"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file; ":memory:" selects an in-memory database.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	BusyTimeout time.Duration
	JournalMode string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	Synchronous string // FULL, NORMAL, OFF

	// ErrorOnEmptyKeys is forwarded to the SQLiteDialect.
	ErrorOnEmptyKeys bool
}

// DefaultSQLiteConfig returns an in-memory configuration suitable for tests
// and embedded use.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:            ":memory:",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "NORMAL",
	}
}

// NewSQLitePool creates a pool backed by modernc.org/sqlite and wired with
// the SQLite dialect. An in-memory database is pinned to a single
// connection so every acquisition sees the same data.
func NewSQLitePool(ctx context.Context, configs ...SQLiteConfig) (*Pool, error) {
	config := DefaultSQLiteConfig()
	if len(configs) > 0 {
		config = configs[0]
	}
	if config.Path == "" {
		config.Path = ":memory:"
	}
	memory := config.Path == ":memory:"
	if memory {
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
	}

	dsn := config.Path
	if !memory {
		params := url.Values{}
		if config.BusyTimeout > 0 {
			params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", config.BusyTimeout.Milliseconds()))
		}
		if config.JournalMode != "" {
			params.Add("_pragma", "journal_mode("+config.JournalMode+")")
		}
		if config.Synchronous != "" {
			params.Add("_pragma", "synchronous("+config.Synchronous+")")
		}
		if enc := params.Encode(); enc != "" {
			dsn = "file:" + dsn + "?" + enc
		}
	}

	return NewPool(ctx, Config{
		DSN:     dsn,
		Dialect: SQLiteDialect{ErrorOnEmptyKeys: config.ErrorOnEmptyKeys},
		Pool: PoolConfig{
			MaxOpen:         config.MaxOpenConns,
			MaxIdle:         config.MaxIdleConns,
			ConnMaxLifetime: config.ConnMaxLifetime,
			ConnMaxIdleTime: config.ConnMaxIdleTime,
		},
	})
}
