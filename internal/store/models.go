package store

import "time"

// Status is the lifecycle state of a search execution.
type Status string

const (
	// StatusPending indicates the record exists but no worker owns it yet.
	StatusPending Status = "pending"
	// StatusLoading indicates a worker has claimed the record and is
	// streaming results into it.
	StatusLoading Status = "loading"
	// StatusComplete indicates execution finished and the result set is
	// final.
	StatusComplete Status = "complete"
	// StatusFailed indicates execution hit an unrecoverable error.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further result rows can appear for a record in
// this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// SearchRecord persists one search execution using GORM.
//
// FingerprintHash is an indexable digest of Fingerprint; candidate lookups
// filter on (ResourceType, FingerprintHash) and must verify Fingerprint
// string equality before trusting a match.
type SearchRecord struct {
	ID              string `gorm:"primaryKey;size:64"`
	ResourceType    string `gorm:"size:128;index:idx_search_records_candidate,priority:1"`
	FingerprintHash int64  `gorm:"index:idx_search_records_candidate,priority:2"`
	Fingerprint     string
	Status          Status    `gorm:"size:32"`
	CreatedAt       time.Time `gorm:"not null;index"`
	DeletedAt       *time.Time
	TotalCount      *int64
	FailureMessage  string
}

// TableName isolates search cache persistence from application tables.
func (SearchRecord) TableName() string {
	return "search_records"
}

// ResultEntry is one matched identifier in a search's ordered result set.
// Entries are append-only; SequenceIndex values are dense from 0 upward.
type ResultEntry struct {
	SearchID           string `gorm:"primaryKey;size:64"`
	SequenceIndex      int64  `gorm:"primaryKey;autoIncrement:false"`
	ResourceIdentifier string `gorm:"size:512"`
}

// TableName isolates search cache persistence from application tables.
func (ResultEntry) TableName() string {
	return "search_results"
}

// IncludeEntry is a side-result attached to a search (related resources
// pulled in alongside the primary matches). Includes are unordered relative
// to results and are purged wholesale before result rows.
type IncludeEntry struct {
	SearchID           string `gorm:"primaryKey;size:64"`
	SequenceIndex      int64  `gorm:"primaryKey;autoIncrement:false"`
	ResourceIdentifier string `gorm:"size:512"`
}

// TableName isolates search cache persistence from application tables.
func (IncludeEntry) TableName() string {
	return "search_includes"
}
