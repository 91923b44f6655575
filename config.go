package lazysql

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PoolConfig holds the settings forwarded to the database/sql pool.
type PoolConfig struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are supplied.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:         25,
		MaxIdle:         10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// ValidatePoolConfig rejects settings database/sql would misbehave on.
func ValidatePoolConfig(config PoolConfig) error {
	if config.MaxOpen <= 0 {
		return fmt.Errorf("lazysql: MaxOpen must be positive, got %d", config.MaxOpen)
	}
	if config.MaxIdle < 0 {
		return fmt.Errorf("lazysql: MaxIdle must be non-negative, got %d", config.MaxIdle)
	}
	if config.MaxIdle > config.MaxOpen {
		return fmt.Errorf("lazysql: MaxIdle (%d) cannot exceed MaxOpen (%d)", config.MaxIdle, config.MaxOpen)
	}
	if config.ConnMaxLifetime < 0 {
		return fmt.Errorf("lazysql: ConnMaxLifetime must be non-negative, got %v", config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime < 0 {
		return fmt.Errorf("lazysql: ConnMaxIdleTime must be non-negative, got %v", config.ConnMaxIdleTime)
	}
	return nil
}

// Config holds library configuration.
type Config struct {
	// Driver overrides the sql driver name (e.g. "mysql" in prod,
	// "sqlmock" in tests). Empty defaults to the dialect's driver.
	Driver string
	// DSN, when non-empty, is used verbatim and wins over the field-based
	// settings below.
	DSN string

	Host     string
	Port     int
	Username string
	Password string
	Database string
	Params   map[string]string

	Pool PoolConfig

	// Dialect is the per-database strategy object. Defaults to
	// MySQLDialect when unset.
	Dialect Dialect

	// ConnectTimeout bounds the startup connectivity probe. Zero means a
	// single ping attempt with no backoff.
	ConnectTimeout time.Duration

	// SlowQueryThreshold promotes query log records above it to WARN.
	SlowQueryThreshold time.Duration

	// LeakThreshold flags connections held longer than it when returned.
	LeakThreshold time.Duration
}

// dsnFromConfig returns a DSN string. An explicit Config.DSN wins;
// otherwise one is assembled from the field-based settings.
func dsnFromConfig(c Config) (string, error) {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN, nil
	}
	addr := c.Host
	if c.Port > 0 {
		addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	dbEscaped := url.PathEscape(c.Database)
	// stable param order for test determinism
	var q string
	if len(c.Params) > 0 {
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, url.QueryEscape(c.Params[k])))
		}
		q = strings.Join(parts, "&")
	}
	// the mysql driver expects the raw password, not URL-encoded
	auth := ""
	if c.Username != "" {
		if c.Password != "" {
			auth = fmt.Sprintf("%s:%s@", c.Username, c.Password)
		} else {
			auth = c.Username + "@"
		}
	}
	dsn := fmt.Sprintf("%stcp(%s)/%s", auth, addr, dbEscaped)
	if q != "" {
		dsn += "?" + q
	}
	return dsn, nil
}

// configFromEnv assembles a Config from LAZYSQL_* environment variables:
// DRIVER, DSN, HOST, PORT, USERNAME, PASSWORD, DATABASE, PARAMS
// (query-string form), SLOW_QUERY_THRESHOLD and LEAK_THRESHOLD (durations).
func configFromEnv() Config {
	cfg := Config{
		Driver:   os.Getenv("LAZYSQL_DRIVER"),
		DSN:      os.Getenv("LAZYSQL_DSN"),
		Host:     os.Getenv("LAZYSQL_HOST"),
		Username: os.Getenv("LAZYSQL_USERNAME"),
		Password: os.Getenv("LAZYSQL_PASSWORD"),
		Database: os.Getenv("LAZYSQL_DATABASE"),
	}
	if port := os.Getenv("LAZYSQL_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Port = n
		}
	}
	if raw := os.Getenv("LAZYSQL_PARAMS"); raw != "" {
		params := map[string]string{}
		for _, kv := range strings.Split(raw, "&") {
			if k, v, ok := strings.Cut(kv, "="); ok {
				params[k] = v
			}
		}
		cfg.Params = params
	}
	if d := os.Getenv("LAZYSQL_SLOW_QUERY_THRESHOLD"); d != "" {
		if dur, err := time.ParseDuration(d); err == nil {
			cfg.SlowQueryThreshold = dur
		}
	}
	if d := os.Getenv("LAZYSQL_LEAK_THRESHOLD"); d != "" {
		if dur, err := time.ParseDuration(d); err == nil {
			cfg.LeakThreshold = dur
		}
	}
	return cfg
}
