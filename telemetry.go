package lazysql

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/ormkit/lazysql"
	instrumentationVersion = "v0.1.0"
)

var tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))

// EnableTelemetry enables or disables OpenTelemetry tracing for this pool.
func (p *Pool) EnableTelemetry(enabled bool) {
	if p == nil {
		return
	}
	p.telemetryEnabled = enabled
}

// traceQuery emits one span per operation, stamped with the measured call
// window so the span matches the logged duration exactly.
func (p *Pool) traceQuery(ctx context.Context, operation, query string, start time.Time, duration time.Duration, err error) {
	if p == nil || !p.telemetryEnabled {
		return
	}
	_, span := tracer.Start(ctx, "lazysql."+operation, trace.WithTimestamp(start))
	span.SetAttributes(
		attribute.String("db.system", p.dialect.Name()),
		attribute.String("db.operation", operation),
	)
	if query != "" {
		span.SetAttributes(attribute.String("db.statement", query))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(start.Add(duration)))
}
