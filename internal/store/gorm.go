package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DB bundles the GORM-backed implementations of the three store interfaces.
// Every method runs in its own short transaction (or a single auto-committed
// statement), independent of any transaction the caller may hold, so state
// transitions commit in isolation.
type DB struct {
	Records  RecordStore
	Results  ResultStore
	Includes IncludeStore
}

// NewDB migrates the search cache tables and returns stores bound to db.
func NewDB(db *gorm.DB) (*DB, error) {
	if db == nil {
		return nil, errors.New("store: database handle is required")
	}
	if err := db.AutoMigrate(&SearchRecord{}, &ResultEntry{}, &IncludeEntry{}); err != nil {
		return nil, fmt.Errorf("store: migrating search cache tables: %w", err)
	}
	return &DB{
		Records:  &recordDB{db: db},
		Results:  &resultDB{db: db},
		Includes: &includeDB{db: db},
	}, nil
}

type recordDB struct {
	db *gorm.DB
}

// Create implements RecordStore.
func (s *recordDB) Create(ctx context.Context, record *SearchRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("store: creating search record: %w", err)
	}
	return nil
}

// Get implements RecordStore.
func (s *recordDB) Get(ctx context.Context, id string) (*SearchRecord, error) {
	var record SearchRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading search record %s: %w", id, err)
	}
	return &record, nil
}

// FindCandidates implements RecordStore.
func (s *recordDB) FindCandidates(ctx context.Context, resourceType string, hash int64, createdAfter time.Time, limit int) ([]SearchRecord, error) {
	var candidates []SearchRecord
	err := s.db.WithContext(ctx).
		Where("resource_type = ? AND fingerprint_hash = ? AND created_at > ? AND deleted_at IS NULL",
			resourceType, hash, createdAfter).
		Order("created_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("store: finding reuse candidates: %w", err)
	}
	return candidates, nil
}

// MarkLoading implements RecordStore. The conditional update is the claim
// protocol's compare-and-swap: exactly one of any number of concurrent
// callers observes RowsAffected == 1.
func (s *recordDB) MarkLoading(ctx context.Context, id string) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&SearchRecord{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusLoading)
	if tx.Error != nil {
		return false, fmt.Errorf("store: claiming search %s: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// Finish implements RecordStore.
func (s *recordDB) Finish(ctx context.Context, id string, status Status, totalCount *int64, failureMessage string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("store: %q is not a terminal status", status)
	}
	tx := s.db.WithContext(ctx).Model(&SearchRecord{}).
		Where("id = ? AND status = ?", id, StatusLoading).
		Updates(map[string]interface{}{
			"status":          status,
			"total_count":     totalCount,
			"failure_message": failureMessage,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("store: finishing search %s: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// FindExpired implements RecordStore.
func (s *recordDB) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&SearchRecord{}).
		Where("created_at < ? AND deleted_at IS NULL", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("store: finding expired searches: %w", err)
	}
	return ids, nil
}

// MarkDeleted implements RecordStore.
func (s *recordDB) MarkDeleted(ctx context.Context, id string, now time.Time) error {
	err := s.db.WithContext(ctx).Model(&SearchRecord{}).
		Where("id = ?", id).
		Update("deleted_at", now).Error
	if err != nil {
		return fmt.Errorf("store: marking search %s deleted: %w", id, err)
	}
	return nil
}

// FindDeleted implements RecordStore.
func (s *recordDB) FindDeleted(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&SearchRecord{}).
		Where("deleted_at IS NOT NULL").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("store: finding deleted searches: %w", err)
	}
	return ids, nil
}

// Delete implements RecordStore.
func (s *recordDB) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&SearchRecord{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("store: deleting search %s: %w", id, err)
	}
	return nil
}

// Count implements RecordStore.
func (s *recordDB) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&SearchRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: counting search records: %w", err)
	}
	return count, nil
}

type resultDB struct {
	db *gorm.DB
}

// Append implements ResultStore. The batch is committed atomically so a
// concurrent reader sees either none or all of it, and sequence indexes
// stay dense because the claim protocol guarantees a single writer.
func (s *resultDB) Append(ctx context.Context, searchID string, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&ResultEntry{}).Where("search_id = ?", searchID).Count(&existing).Error; err != nil {
			return err
		}
		entries := make([]ResultEntry, len(identifiers))
		for i, identifier := range identifiers {
			entries[i] = ResultEntry{
				SearchID:           searchID,
				SequenceIndex:      existing + int64(i),
				ResourceIdentifier: identifier,
			}
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return fmt.Errorf("store: appending %d results to search %s: %w", len(identifiers), searchID, err)
	}
	return nil
}

// ReadRange implements ResultStore.
func (s *resultDB) ReadRange(ctx context.Context, searchID string, offset, limit int) ([]string, error) {
	var entries []ResultEntry
	err := s.db.WithContext(ctx).
		Where("search_id = ?", searchID).
		Order("sequence_index ASC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: reading results for search %s: %w", searchID, err)
	}
	identifiers := make([]string, len(entries))
	for i, entry := range entries {
		identifiers[i] = entry.ResourceIdentifier
	}
	return identifiers, nil
}

// Count implements ResultStore.
func (s *resultDB) Count(ctx context.Context, searchID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ResultEntry{}).
		Where("search_id = ?", searchID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: counting results for search %s: %w", searchID, err)
	}
	return count, nil
}

// DeleteBatch implements ResultStore. A bounded set of sequence indexes is
// selected first and deleted by key, never one unbounded DELETE, to keep
// lock duration small on large result sets.
func (s *resultDB) DeleteBatch(ctx context.Context, searchID string, batchSize int) (int64, error) {
	var indexes []int64
	err := s.db.WithContext(ctx).Model(&ResultEntry{}).
		Where("search_id = ?", searchID).
		Order("sequence_index ASC").
		Limit(batchSize).
		Pluck("sequence_index", &indexes).Error
	if err != nil {
		return 0, fmt.Errorf("store: selecting results to purge for search %s: %w", searchID, err)
	}
	if len(indexes) == 0 {
		return 0, nil
	}
	tx := s.db.WithContext(ctx).
		Where("search_id = ? AND sequence_index IN ?", searchID, indexes).
		Delete(&ResultEntry{})
	if tx.Error != nil {
		return 0, fmt.Errorf("store: purging results for search %s: %w", searchID, tx.Error)
	}
	return tx.RowsAffected, nil
}

type includeDB struct {
	db *gorm.DB
}

// Append implements IncludeStore.
func (s *includeDB) Append(ctx context.Context, searchID string, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&IncludeEntry{}).Where("search_id = ?", searchID).Count(&existing).Error; err != nil {
			return err
		}
		entries := make([]IncludeEntry, len(identifiers))
		for i, identifier := range identifiers {
			entries[i] = IncludeEntry{
				SearchID:           searchID,
				SequenceIndex:      existing + int64(i),
				ResourceIdentifier: identifier,
			}
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return fmt.Errorf("store: appending %d includes to search %s: %w", len(identifiers), searchID, err)
	}
	return nil
}

// Read implements IncludeStore.
func (s *includeDB) Read(ctx context.Context, searchID string) ([]string, error) {
	var identifiers []string
	err := s.db.WithContext(ctx).Model(&IncludeEntry{}).
		Where("search_id = ?", searchID).
		Order("sequence_index ASC").
		Pluck("resource_identifier", &identifiers).Error
	if err != nil {
		return nil, fmt.Errorf("store: reading includes for search %s: %w", searchID, err)
	}
	return identifiers, nil
}

// DeleteForSearch implements IncludeStore.
func (s *includeDB) DeleteForSearch(ctx context.Context, searchID string) error {
	err := s.db.WithContext(ctx).
		Where("search_id = ?", searchID).
		Delete(&IncludeEntry{}).Error
	if err != nil {
		return fmt.Errorf("store: purging includes for search %s: %w", searchID, err)
	}
	return nil
}
