package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the search-cache-specific metric instruments.
type Metrics struct {
	searchesCreated metric.Int64Counter
	cacheHits       metric.Int64Counter
	claimAttempts   metric.Int64Counter
	appendedResults metric.Int64Histogram
	pageDuration    metric.Float64Histogram
	pageEntries     metric.Int64Histogram
	sweptRecords    metric.Int64Counter
	sweptResultRows metric.Int64Histogram
	dbQueryDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Note: errors from meter instrument creation are unlikely in practice
	// and would only occur with invalid parameters. We use explicit checks
	// to satisfy the linter while continuing with partial metrics on error.
	var err error

	m.searchesCreated, err = meter.Int64Counter(
		"searchcache.searches.created",
		metric.WithDescription("Total number of search records created"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		m.searchesCreated, _ = meter.Int64Counter("searchcache.searches.created")
	}

	m.cacheHits, err = meter.Int64Counter(
		"searchcache.cache.hits",
		metric.WithDescription("Total number of reuse-candidate matches"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		m.cacheHits, _ = meter.Int64Counter("searchcache.cache.hits")
	}

	m.claimAttempts, err = meter.Int64Counter(
		"searchcache.claim.attempts",
		metric.WithDescription("Total number of execution-claim attempts, by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		m.claimAttempts, _ = meter.Int64Counter("searchcache.claim.attempts")
	}

	m.appendedResults, err = meter.Int64Histogram(
		"searchcache.append.batch_size",
		metric.WithDescription("Number of result identifiers per append batch"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.appendedResults, _ = meter.Int64Histogram("searchcache.append.batch_size")
	}

	m.pageDuration, err = meter.Float64Histogram(
		"searchcache.page.duration",
		metric.WithDescription("Duration of page fetches in milliseconds, including sync-mode waits"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.pageDuration, _ = meter.Float64Histogram("searchcache.page.duration")
	}

	m.pageEntries, err = meter.Int64Histogram(
		"searchcache.page.entries",
		metric.WithDescription("Number of entries returned per page"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.pageEntries, _ = meter.Int64Histogram("searchcache.page.entries")
	}

	m.sweptRecords, err = meter.Int64Counter(
		"searchcache.sweep.records",
		metric.WithDescription("Total number of search records marked or purged by the sweeper"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		m.sweptRecords, _ = meter.Int64Counter("searchcache.sweep.records")
	}

	m.sweptResultRows, err = meter.Int64Histogram(
		"searchcache.sweep.result_rows",
		metric.WithDescription("Result rows deleted per eviction pass"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		m.sweptResultRows, _ = meter.Int64Histogram("searchcache.sweep.result_rows")
	}

	m.dbQueryDuration, err = meter.Float64Histogram(
		"searchcache.db.query.duration",
		metric.WithDescription("Duration of database queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.dbQueryDuration, _ = meter.Float64Histogram("searchcache.db.query.duration")
	}

	m.errorCount, err = meter.Int64Counter(
		"searchcache.error.count",
		metric.WithDescription("Total number of search cache errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("searchcache.error.count")
	}

	return m
}

// RecordSearchCreated records the creation of a new search record.
func (m *Metrics) RecordSearchCreated(ctx context.Context, resourceType string) {
	m.searchesCreated.Add(ctx, 1, metric.WithAttributes(ResourceTypeAttr(resourceType)))
}

// RecordCacheLookup records a candidate-match outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, resourceType string, hit bool) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(
		ResourceTypeAttr(resourceType),
		CacheHitAttr(hit),
	))
}

// RecordClaim records a claim attempt and its outcome.
func (m *Metrics) RecordClaim(ctx context.Context, won bool) {
	m.claimAttempts.Add(ctx, 1, metric.WithAttributes(ClaimWonAttr(won)))
}

// RecordAppend records the size of an append batch.
func (m *Metrics) RecordAppend(ctx context.Context, batchSize int) {
	m.appendedResults.Record(ctx, int64(batchSize))
}

// RecordPage records metrics for a served page.
func (m *Metrics) RecordPage(ctx context.Context, entries int, stillLoading bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool(AttrStillLoading, stillLoading))
	m.pageDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.pageEntries.Record(ctx, int64(entries), attrs)
}

// RecordSweep records the outcome of one eviction pass.
func (m *Metrics) RecordSweep(ctx context.Context, marked, purged, partial int, resultRows int64) {
	m.sweptRecords.Add(ctx, int64(marked), metric.WithAttributes(attribute.String(AttrOperation, "mark")))
	m.sweptRecords.Add(ctx, int64(purged), metric.WithAttributes(attribute.String(AttrOperation, "purge")))
	if partial > 0 {
		m.sweptRecords.Add(ctx, int64(partial), metric.WithAttributes(attribute.String(AttrOperation, "partial_purge")))
	}
	m.sweptResultRows.Record(ctx, resultRows)
}

// RecordDBQuery records metrics for a database query.
func (m *Metrics) RecordDBQuery(ctx context.Context, operation string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("db.operation", operation))
	m.dbQueryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(ctx context.Context, operation, errorType string) {
	attrs := metric.WithAttributes(
		OperationAttr(operation),
		attribute.String("error.type", errorType),
	)
	m.errorCount.Add(ctx, 1, attrs)
}
