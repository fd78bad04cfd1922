// Package fingerprint derives the stable cache key under which search
// executions are matched for reuse.
//
// The fingerprint is the canonical combination of partition key, resource
// type and normalized query string. A 64-bit hash of the canonical string is
// stored alongside it so that candidate lookups can use an indexed integer
// column; hash collisions are resolved by comparing the full canonical
// string.
package fingerprint

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Inputs are the request-layer values a fingerprint is derived from. All
// three are treated as opaque; in particular QueryString is expected to be
// already normalized by the query-parsing layer.
type Inputs struct {
	// ResourceType scopes the search to one resource collection.
	ResourceType string
	// QueryString is the normalized query, without the resource type.
	QueryString string
	// PartitionKey is the opaque tenant/partition identifier, empty for the
	// default partition.
	PartitionKey string
}

// Canonical returns the full fingerprint string for storage and equality
// comparison. The separator characters cannot occur in a normalized query's
// resource type segment, so the mapping is injective.
func Canonical(in Inputs) string {
	var b strings.Builder
	b.Grow(len(in.PartitionKey) + len(in.ResourceType) + len(in.QueryString) + 2)
	b.WriteString(in.PartitionKey)
	b.WriteByte('|')
	b.WriteString(in.ResourceType)
	b.WriteByte('?')
	b.WriteString(in.QueryString)
	return b.String()
}

// Hash returns the indexable 64-bit hash of a canonical fingerprint string.
// The value is reinterpreted as int64 so it fits a signed BIGINT column.
func Hash(canonical string) int64 {
	return int64(xxhash.Sum64String(canonical))
}
