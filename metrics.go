package lazysql

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pool's metric instruments.
type Metrics struct {
	connectionsActive metric.Int64UpDownCounter
	queriesTotal      metric.Int64Counter
	queryDuration     metric.Float64Histogram

	transactionsTotal   metric.Int64Counter
	transactionDuration metric.Float64Histogram
}

var defaultMeter = otel.Meter(instrumentationName)

// EnableMetrics enables or disables metrics collection for this pool.
func (p *Pool) EnableMetrics(enabled bool) {
	if p == nil {
		return
	}
	p.metricsEnabled = enabled
	if enabled && p.metrics == nil {
		p.initMetrics()
	}
}

// SetMeterProvider sets a custom meter provider for this pool's metrics.
func (p *Pool) SetMeterProvider(provider metric.MeterProvider) {
	if p == nil {
		return
	}
	p.meterProvider = provider
	if p.metricsEnabled {
		p.initMetrics()
	}
}

func (p *Pool) initMetrics() {
	meter := defaultMeter
	if p.meterProvider != nil {
		meter = p.meterProvider.Meter(instrumentationName)
	}
	m := &Metrics{}
	m.connectionsActive, _ = meter.Int64UpDownCounter("db.connections.active",
		metric.WithDescription("Connections currently borrowed from the pool"))
	m.queriesTotal, _ = meter.Int64Counter("db.queries.total",
		metric.WithDescription("Queries executed, by operation and status"))
	m.queryDuration, _ = meter.Float64Histogram("db.query.duration",
		metric.WithDescription("Query duration in milliseconds"),
		metric.WithUnit("ms"))
	m.transactionsTotal, _ = meter.Int64Counter("db.transactions.total",
		metric.WithDescription("Transactions completed, by outcome"))
	m.transactionDuration, _ = meter.Float64Histogram("db.transaction.duration",
		metric.WithDescription("Transaction duration in milliseconds"),
		metric.WithUnit("ms"))
	p.metrics = m
}

func (p *Pool) recordQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	p.metrics.queriesTotal.Add(ctx, 1, attrs)
	p.metrics.queryDuration.Record(ctx, float64(duration.Nanoseconds())/1e6, attrs)
}

func (p *Pool) recordTransaction(ctx context.Context, outcome string, duration time.Duration) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	p.metrics.transactionsTotal.Add(ctx, 1, attrs)
	p.metrics.transactionDuration.Record(ctx, float64(duration.Nanoseconds())/1e6, attrs)
}

func (p *Pool) recordBorrow(delta int64) {
	if p == nil || !p.metricsEnabled || p.metrics == nil {
		return
	}
	p.metrics.connectionsActive.Add(context.Background(), delta)
}
