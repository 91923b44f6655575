package lazysql

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DSNBuilder assembles MySQL DSN strings fluently. The zero-value defaults
// follow go-sql-driver/mysql conventions.
type DSNBuilder struct {
	host     string
	port     int
	username string
	password string
	database string

	charset   string
	parseTime bool
	location  string
	timeout   time.Duration

	params map[string]string
}

// NewDSNBuilder creates a builder with the default MySQL port.
func NewDSNBuilder() *DSNBuilder {
	return &DSNBuilder{port: 3306, params: make(map[string]string)}
}

// Host sets the database host.
func (b *DSNBuilder) Host(host string) *DSNBuilder {
	b.host = host
	return b
}

// Port sets the database port.
func (b *DSNBuilder) Port(port int) *DSNBuilder {
	b.port = port
	return b
}

// Username sets the database username.
func (b *DSNBuilder) Username(username string) *DSNBuilder {
	b.username = username
	return b
}

// Password sets the database password.
func (b *DSNBuilder) Password(password string) *DSNBuilder {
	b.password = password
	return b
}

// Database sets the database name.
func (b *DSNBuilder) Database(database string) *DSNBuilder {
	b.database = database
	return b
}

// Charset sets the connection character set.
func (b *DSNBuilder) Charset(charset string) *DSNBuilder {
	b.charset = charset
	return b
}

// ParseTime makes the driver scan temporal columns as time.Time.
func (b *DSNBuilder) ParseTime(enabled bool) *DSNBuilder {
	b.parseTime = enabled
	return b
}

// Location sets the time zone used with ParseTime.
func (b *DSNBuilder) Location(loc string) *DSNBuilder {
	b.location = loc
	return b
}

// Timeout sets the connection establishment timeout.
func (b *DSNBuilder) Timeout(d time.Duration) *DSNBuilder {
	b.timeout = d
	return b
}

// Param sets an arbitrary driver parameter.
func (b *DSNBuilder) Param(key, value string) *DSNBuilder {
	b.params[key] = value
	return b
}

// Build renders the DSN.
func (b *DSNBuilder) Build() string {
	var sb strings.Builder
	if b.username != "" {
		sb.WriteString(b.username)
		if b.password != "" {
			sb.WriteByte(':')
			sb.WriteString(b.password)
		}
		sb.WriteByte('@')
	}
	sb.WriteString(fmt.Sprintf("tcp(%s:%d)/%s", b.host, b.port, b.database))

	params := make(map[string]string, len(b.params)+4)
	for k, v := range b.params {
		params[k] = v
	}
	if b.charset != "" {
		params["charset"] = b.charset
	}
	if b.parseTime {
		params["parseTime"] = "true"
	}
	if b.location != "" {
		params["loc"] = b.location
	}
	if b.timeout > 0 {
		params["timeout"] = b.timeout.String()
	}
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(params[k]))
		}
	}
	return sb.String()
}
