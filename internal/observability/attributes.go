// Package observability provides OpenTelemetry-based instrumentation for the
// search cache.
//
// It supports distributed tracing, metrics collection, and enhanced
// structured logging.
//
// All observability features are opt-in. When not configured, no-op
// implementations are used with zero performance overhead.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/nlstn/go-searchcache"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/nlstn/go-searchcache"
)

// Search cache semantic attribute keys following OpenTelemetry conventions.
const (
	// Search attributes
	AttrSearchID     = "searchcache.search_id"
	AttrResourceType = "searchcache.resource_type"
	AttrStatus       = "searchcache.status"
	AttrOperation    = "searchcache.operation"
	AttrCacheHit     = "searchcache.cache_hit"
	AttrClaimWon     = "searchcache.claim_won"

	// Page attributes
	AttrPageOffset   = "searchcache.page.offset"
	AttrPageCount    = "searchcache.page.count"
	AttrPageEntries  = "searchcache.page.entries"
	AttrStillLoading = "searchcache.page.still_loading"

	// Append attributes
	AttrBatchSize = "searchcache.batch.size"

	// Sweeper attributes
	AttrSweepMarked     = "searchcache.sweep.marked"
	AttrSweepPurged     = "searchcache.sweep.purged"
	AttrSweepResultRows = "searchcache.sweep.result_rows"
	AttrSweepPartial    = "searchcache.sweep.partial"

	// Error attributes
	AttrErrorMessage = "searchcache.error.message"
)

// Operation types for the searchcache.operation attribute.
const (
	OpFindOrCreate = "find_or_create"
	OpClaim        = "claim"
	OpAppend       = "append_results"
	OpComplete     = "complete"
	OpFail         = "fail"
	OpFetchPage    = "fetch_page"
	OpEvictionPass = "eviction_pass"
)

// Log field keys for structured logging with trace context.
const (
	LogFieldTraceID = "trace_id"
	LogFieldSpanID  = "span_id"
)

// SearchIDAttr creates an attribute for the search ID.
func SearchIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrSearchID, id)
}

// ResourceTypeAttr creates an attribute for the resource type.
func ResourceTypeAttr(resourceType string) attribute.KeyValue {
	return attribute.String(AttrResourceType, resourceType)
}

// StatusAttr creates an attribute for the search status.
func StatusAttr(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// OperationAttr creates an attribute for the operation type.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// CacheHitAttr creates an attribute for the candidate-match outcome.
func CacheHitAttr(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// ClaimWonAttr creates an attribute for the claim outcome.
func ClaimWonAttr(won bool) attribute.KeyValue {
	return attribute.Bool(AttrClaimWon, won)
}

// BatchSizeAttr creates an attribute for the append batch size.
func BatchSizeAttr(size int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, size)
}
