package lazysql

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DockerTestHelper runs a disposable MySQL container and exposes a pool
// wired to it. Integration tests build on it; unit tests use sqlmock or
// NewSQLitePool instead.
type DockerTestHelper struct {
	container testcontainers.Container
	pool      *Pool
	config    Config
	dsn       string
}

// DockerTestConfig holds container settings for integration tests.
type DockerTestConfig struct {
	MySQLVersion string
	Database     string
	Username     string
	Password     string
	RootPassword string
	StartTimeout time.Duration
}

// DefaultDockerTestConfig returns the settings used by the test suite.
func DefaultDockerTestConfig() DockerTestConfig {
	return DockerTestConfig{
		MySQLVersion: "8.0",
		Database:     "testdb",
		Username:     "testuser",
		Password:     "testpass",
		RootPassword: "rootpass",
		StartTimeout: 60 * time.Second,
	}
}

// NewDockerTestHelper starts a MySQL container with default settings.
func NewDockerTestHelper(ctx context.Context) (*DockerTestHelper, error) {
	return NewDockerTestHelperWithConfig(ctx, DefaultDockerTestConfig())
}

// NewDockerTestHelperWithConfig starts a MySQL container and connects a
// pool to it, terminating the container on any setup failure.
func NewDockerTestHelperWithConfig(ctx context.Context, config DockerTestConfig) (*DockerTestHelper, error) {
	container, err := mysql.Run(ctx,
		"mysql:"+config.MySQLVersion,
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
		testcontainers.WithEnv(map[string]string{
			"MYSQL_ROOT_PASSWORD": config.RootPassword,
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithOccurrence(1).
				WithStartupTimeout(config.StartTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("lazysql: start mysql container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("lazysql: container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, "3306")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("lazysql: container port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("lazysql: parse container port: %w", err)
	}

	poolConfig := Config{
		Host:     host,
		Port:     port,
		Database: config.Database,
		Username: config.Username,
		Password: config.Password,
		Params:   map[string]string{"parseTime": "true", "multiStatements": "true"},
	}
	pool, err := NewPool(ctx, poolConfig)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("lazysql: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("lazysql: ping container database: %w", err)
	}
	dsn, _ := dsnFromConfig(poolConfig)

	return &DockerTestHelper{
		container: container,
		pool:      pool,
		config:    poolConfig,
		dsn:       dsn,
	}, nil
}

// Pool returns the pool connected to the container.
func (h *DockerTestHelper) Pool() *Pool { return h.pool }

// Config returns the pool configuration.
func (h *DockerTestHelper) Config() Config { return h.config }

// DSN returns the connection string in use.
func (h *DockerTestHelper) DSN() string { return h.dsn }

// Close shuts down the pool and terminates the container.
func (h *DockerTestHelper) Close() error {
	var err error
	if h.pool != nil {
		if perr := h.pool.Close(); perr != nil {
			err = fmt.Errorf("lazysql: close pool: %w", perr)
		}
	}
	if h.container != nil {
		if terr := h.container.Terminate(context.Background()); terr != nil {
			if err != nil {
				err = fmt.Errorf("%w; terminate container: %w", err, terr)
			} else {
				err = fmt.Errorf("lazysql: terminate container: %w", terr)
			}
		}
	}
	return err
}

// Reset drops every table in the test database.
func (h *DockerTestHelper) Reset(ctx context.Context) error {
	if h.pool == nil {
		return ErrNilPool
	}
	tables, err := SelectAll(ctx, h.pool, "SHOW TABLES", func(r *Row) (string, error) {
		return r.String(r.Columns()[0]), r.Err()
	})
	if err != nil {
		return fmt.Errorf("lazysql: list tables: %w", err)
	}
	return h.pool.WithConn(ctx, func(conn *Conn) error {
		if _, err := conn.Exec(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return err
		}
		for _, table := range tables {
			if _, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
				return fmt.Errorf("lazysql: drop table %s: %w", table, err)
			}
		}
		_, err := conn.Exec(ctx, "SET FOREIGN_KEY_CHECKS = 1")
		return err
	})
}

// ExecSQL executes arbitrary SQL against the container database.
func (h *DockerTestHelper) ExecSQL(ctx context.Context, query string, params ...Param) error {
	if h.pool == nil {
		return ErrNilPool
	}
	return h.pool.WithConn(ctx, func(conn *Conn) error {
		_, err := conn.Exec(ctx, query, params...)
		return err
	})
}
