// Package store persists search records and their accumulated results.
//
// The narrow RecordStore/ResultStore/IncludeStore interfaces keep the cache
// logic dialect-agnostic; DB is the single GORM-backed implementation. All
// coordination between concurrent workers happens through conditional
// single-row updates on search_records, so no method here takes an
// in-process lock.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the referenced search record does not exist.
var ErrNotFound = errors.New("store: search record not found")

// RecordStore is the durable table of search executions.
type RecordStore interface {
	// Create inserts a new record. The caller assigns ID, CreatedAt and
	// fingerprint fields.
	Create(ctx context.Context, record *SearchRecord) error

	// Get loads a record by ID, returning ErrNotFound when absent.
	Get(ctx context.Context, id string) (*SearchRecord, error)

	// FindCandidates returns live records matching the resource type and
	// fingerprint hash created strictly after createdAfter, ordered by
	// CreatedAt ascending. Hash matches are candidates only; the caller
	// must verify full fingerprint equality.
	FindCandidates(ctx context.Context, resourceType string, hash int64, createdAfter time.Time, limit int) ([]SearchRecord, error)

	// MarkLoading attempts the pending->loading transition as a single
	// conditional update. It reports whether this caller won; losing is a
	// normal outcome, not an error.
	MarkLoading(ctx context.Context, id string) (bool, error)

	// Finish attempts the loading->terminal transition, storing the final
	// count (complete) or failure message (failed). It reports whether the
	// transition applied.
	Finish(ctx context.Context, id string, status Status, totalCount *int64, failureMessage string) (bool, error)

	// FindExpired returns IDs of live records created before cutoff, up to
	// limit, ordered oldest first.
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// MarkDeleted sets DeletedAt, logically removing the record from
	// candidate matching.
	MarkDeleted(ctx context.Context, id string, now time.Time) error

	// FindDeleted returns IDs of logically deleted records awaiting
	// physical purge, up to limit.
	FindDeleted(ctx context.Context, limit int) ([]string, error)

	// Delete physically removes the record row. The caller is responsible
	// for purging result rows first.
	Delete(ctx context.Context, id string) error

	// Count returns the total number of record rows, deleted or not.
	Count(ctx context.Context) (int64, error)
}

// ResultStore is the append-only ordered store of result identifiers.
type ResultStore interface {
	// Append durably adds identifiers at the end of the search's result
	// sequence, preserving order. Only the record's current owner may call
	// this, and never concurrently for the same search.
	Append(ctx context.Context, searchID string, identifiers []string) error

	// ReadRange returns up to limit identifiers starting at offset in
	// sequence order. Safe to call concurrently with Append; only
	// committed rows are visible.
	ReadRange(ctx context.Context, searchID string, offset, limit int) ([]string, error)

	// Count returns the number of committed result rows for the search.
	Count(ctx context.Context, searchID string) (int64, error)

	// DeleteBatch removes up to batchSize result rows for the search and
	// returns how many were removed, so the sweeper can bound transaction
	// size and resume on a later pass.
	DeleteBatch(ctx context.Context, searchID string, batchSize int) (int64, error)
}

// IncludeStore holds side-results attached to a search.
type IncludeStore interface {
	// Append durably adds include identifiers for the search. Owner-only,
	// like ResultStore.Append.
	Append(ctx context.Context, searchID string, identifiers []string) error

	// Read returns all include identifiers for the search.
	Read(ctx context.Context, searchID string) ([]string, error)

	// DeleteForSearch removes every include row for the search.
	DeleteForSearch(ctx context.Context, searchID string) error
}
