package lazysql

import (
	"context"
	"log/slog"
	"os"
	"time"

	mysql "github.com/go-sql-driver/mysql"
)

var defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// EnableLogging enables or disables structured logging for this pool.
func (p *Pool) EnableLogging(enabled bool) {
	if p == nil {
		return
	}
	p.loggingEnabled = enabled
	if enabled && p.logger == nil {
		p.logger = defaultLogger
	}
}

// SetLogger sets a custom logger for this pool.
func (p *Pool) SetLogger(logger *slog.Logger) {
	if p == nil {
		return
	}
	p.logger = logger
}

// SetSlowQueryThreshold promotes query records slower than d to WARN.
func (p *Pool) SetSlowQueryThreshold(d time.Duration) {
	if p == nil {
		return
	}
	p.slowQueryThreshold = d
}

// observe is the single timing funnel every call path runs through: one
// wall-clock measurement feeding the structured log record, the metric
// instruments, and the trace span for the operation.
func (p *Pool) observe(ctx context.Context, operation, query string, args []any, start time.Time, err error) {
	if p == nil {
		return
	}
	duration := time.Since(start)
	p.logQuery(ctx, operation, query, args, duration, err)
	p.recordQuery(ctx, operation, duration, err)
	p.traceQuery(ctx, operation, query, start, duration, err)
}

// logQuery records one query execution with structured fields.
func (p *Pool) logQuery(ctx context.Context, operation, query string, args []any, duration time.Duration, err error) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("query", query),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if len(args) > 0 {
		attrs = append(attrs,
			slog.Int("arg_count", len(args)),
			slog.Any("args", args),
		)
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
			slog.String("error_class", Classify(err).String()),
		)
		if mysqlErr, ok := err.(*mysql.MySQLError); ok {
			attrs = append(attrs, slog.Int("error_code", int(mysqlErr.Number)))
		}
	} else {
		attrs = append(attrs, slog.String("status", "success"))
	}

	if p.slowQueryThreshold > 0 && duration > p.slowQueryThreshold {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
		return
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	p.logger.LogAttrs(ctx, level, "database query executed", attrs...)
}

// logConnection records connection lifecycle events. The acquire_nil event
// marks the distinguished nil-connection-from-pool failure mode.
func (p *Pool) logConnection(ctx context.Context, event string, duration time.Duration, err error) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		p.logger.LogAttrs(ctx, slog.LevelError, "database connection event", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "success"))
	p.logger.LogAttrs(ctx, slog.LevelDebug, "database connection event", attrs...)
}

// logTransaction records transaction begin/commit/rollback events.
func (p *Pool) logTransaction(ctx context.Context, event string, duration time.Duration, err error) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		p.logger.LogAttrs(ctx, slog.LevelError, "database transaction event", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "success"))
	p.logger.LogAttrs(ctx, slog.LevelDebug, "database transaction event", attrs...)
}

// logBorrowLeak flags a connection returned after the leak threshold.
func (p *Pool) logBorrowLeak(ctx context.Context, leak BorrowLeak) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	p.logger.LogAttrs(ctx, slog.LevelWarn, "connection held past leak threshold",
		slog.Float64("held_ms", float64(leak.HeldFor.Nanoseconds())/1e6),
	)
}
