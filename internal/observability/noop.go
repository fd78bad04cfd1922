package observability

import (
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{
		tracer:      tracenoop.NewTracerProvider().Tracer(""),
		serviceName: "",
	}
}

// NewNoopMetrics creates metrics that do nothing.
func NewNoopMetrics() *Metrics {
	meter := noop.NewMeterProvider().Meter("")
	m := &Metrics{}

	// Note: noop meter never returns errors, but we must check them to satisfy the linter.
	m.searchesCreated, _ = meter.Int64Counter("searchcache.searches.created")     //nolint:errcheck
	m.cacheHits, _ = meter.Int64Counter("searchcache.cache.hits")                 //nolint:errcheck
	m.claimAttempts, _ = meter.Int64Counter("searchcache.claim.attempts")         //nolint:errcheck
	m.appendedResults, _ = meter.Int64Histogram("searchcache.append.batch_size")  //nolint:errcheck
	m.pageDuration, _ = meter.Float64Histogram("searchcache.page.duration")       //nolint:errcheck
	m.pageEntries, _ = meter.Int64Histogram("searchcache.page.entries")           //nolint:errcheck
	m.sweptRecords, _ = meter.Int64Counter("searchcache.sweep.records")           //nolint:errcheck
	m.sweptResultRows, _ = meter.Int64Histogram("searchcache.sweep.result_rows")  //nolint:errcheck
	m.dbQueryDuration, _ = meter.Float64Histogram("searchcache.db.query.duration") //nolint:errcheck
	m.errorCount, _ = meter.Int64Counter("searchcache.error.count")               //nolint:errcheck

	return m
}
