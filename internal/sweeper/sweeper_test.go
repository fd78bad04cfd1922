package sweeper

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nlstn/go-searchcache/internal/clock"
	"github.com/nlstn/go-searchcache/internal/store"
)

func newTestStores(t *testing.T) *store.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	stores, err := store.NewDB(db)
	if err != nil {
		t.Fatalf("failed to create stores: %v", err)
	}
	return stores
}

func seedSearch(t *testing.T, stores *store.DB, id string, createdAt time.Time, results int) {
	t.Helper()
	ctx := context.Background()
	record := &store.SearchRecord{
		ID:              id,
		ResourceType:    "Patient",
		FingerprintHash: 1,
		Fingerprint:     "|Patient?_id=" + id,
		Status:          store.StatusComplete,
		CreatedAt:       createdAt,
	}
	if err := stores.Records.Create(ctx, record); err != nil {
		t.Fatalf("seeding record %s: %v", id, err)
	}
	if results > 0 {
		identifiers := make([]string, results)
		for i := range identifiers {
			identifiers[i] = fmt.Sprintf("%s/res-%d", id, i)
		}
		if err := stores.Results.Append(ctx, id, identifiers); err != nil {
			t.Fatalf("seeding results for %s: %v", id, err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{ReuseWindow: time.Hour, ExpiryWindow: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when expiry < reuse")
	}

	cfg = Config{ReuseWindow: time.Minute, ExpiryWindow: time.Hour}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if cfg.DeleteBatchSize != DefaultDeleteBatchSize {
		t.Fatalf("expected defaulted batch size, got %d", cfg.DeleteBatchSize)
	}
	if cfg.MaxCandidatesPerPass != DefaultMaxCandidatesPerPass {
		t.Fatalf("expected defaulted candidate limit, got %d", cfg.MaxCandidatesPerPass)
	}
	if cfg.CutoffSlack != DefaultCutoffSlack {
		t.Fatalf("expected defaulted slack, got %v", cfg.CutoffSlack)
	}

	cfg = Config{ReuseWindow: time.Minute, ExpiryWindow: time.Hour, DeleteBatchSize: 100, MaxResultsPerPass: 10}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if cfg.DeleteBatchSize != 10 {
		t.Fatalf("expected batch size clamped to per-pass budget, got %d", cfg.DeleteBatchSize)
	}
}

func TestPassMarksAndPurgesExpired(t *testing.T) {
	stores := newTestStores(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)

	seedSearch(t, stores, "expired", base.Add(-3*time.Hour), 4)
	seedSearch(t, stores, "live", base.Add(-10*time.Minute), 2)

	ctx := context.Background()
	if err := stores.Includes.Append(ctx, "expired", []string{"inc-1"}); err != nil {
		t.Fatalf("seeding includes: %v", err)
	}

	sw, err := New(stores, Config{
		ReuseWindow:  30 * time.Minute,
		ExpiryWindow: time.Hour,
		CutoffSlack:  -1, // disabled for a precise boundary
	}, clk, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	stats, err := sw.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass error: %v", err)
	}
	if stats.Marked != 1 {
		t.Fatalf("expected 1 marked, got %d", stats.Marked)
	}
	if stats.Purged != 1 {
		t.Fatalf("expected 1 purged, got %d", stats.Purged)
	}
	if stats.ResultRowsDeleted != 4 {
		t.Fatalf("expected 4 result rows deleted, got %d", stats.ResultRowsDeleted)
	}

	if _, err := stores.Records.Get(ctx, "expired"); err != store.ErrNotFound {
		t.Fatalf("expected expired record purged, got %v", err)
	}
	includes, err := stores.Includes.Read(ctx, "expired")
	if err != nil {
		t.Fatalf("Read includes error: %v", err)
	}
	if len(includes) != 0 {
		t.Fatalf("expected includes purged, got %v", includes)
	}

	// The live record is untouched and still serves reads.
	if _, err := stores.Records.Get(ctx, "live"); err != nil {
		t.Fatalf("live record should survive the pass: %v", err)
	}
	live, err := stores.Results.Count(ctx, "live")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if live != 2 {
		t.Fatalf("expected live results intact, got %d", live)
	}
}

func TestCutoffSlackProtectsBoundaryRecords(t *testing.T) {
	stores := newTestStores(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)

	// Just past reuse+expiry, but inside the slack.
	seedSearch(t, stores, "boundary", base.Add(-(90*time.Minute + 10*time.Second)), 1)

	sw, err := New(stores, Config{
		ReuseWindow:  30 * time.Minute,
		ExpiryWindow: time.Hour,
		CutoffSlack:  time.Minute,
	}, clk, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	stats, err := sw.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass error: %v", err)
	}
	if stats.Marked != 0 {
		t.Fatalf("slack should protect the boundary record, marked %d", stats.Marked)
	}

	// Once the clock moves past the slack, the record is fair game.
	clk.Advance(2 * time.Minute)
	stats, err = sw.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass error: %v", err)
	}
	if stats.Marked != 1 {
		t.Fatalf("expected boundary record marked after slack, got %d", stats.Marked)
	}
}

func TestBoundedPurgeResumesAcrossPasses(t *testing.T) {
	stores := newTestStores(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)
	ctx := context.Background()

	seedSearch(t, stores, "big", base.Add(-24*time.Hour), 12)

	sw, err := New(stores, Config{
		ReuseWindow:       time.Minute,
		ExpiryWindow:      time.Hour,
		CutoffSlack:       -1,
		MaxResultsPerPass: 5,
		DeleteBatchSize:   2,
	}, clk, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	// Pass 1: marks the record and drains the first budget's worth.
	stats, err := sw.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass error: %v", err)
	}
	if stats.Marked != 1 || stats.Purged != 0 || stats.PartiallyPurged != 1 {
		t.Fatalf("unexpected pass 1 stats %+v", stats)
	}
	if stats.ResultRowsDeleted != 5 {
		t.Fatalf("expected 5 rows deleted in pass 1, got %d", stats.ResultRowsDeleted)
	}

	// The record stays hidden from reuse while partially purged.
	record, err := stores.Records.Get(ctx, "big")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if record.DeletedAt == nil {
		t.Fatal("expected record to remain logically deleted")
	}

	// Pass 2: another budget's worth.
	stats, err = sw.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass error: %v", err)
	}
	if stats.ResultRowsDeleted != 5 || stats.Purged != 0 {
		t.Fatalf("unexpected pass 2 stats %+v", stats)
	}

	// Pass 3: remaining rows fit under the budget, record goes away.
	stats, err = sw.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass error: %v", err)
	}
	if stats.ResultRowsDeleted != 2 || stats.Purged != 1 {
		t.Fatalf("unexpected pass 3 stats %+v", stats)
	}
	if _, err := stores.Records.Get(ctx, "big"); err != store.ErrNotFound {
		t.Fatalf("expected record fully purged, got %v", err)
	}

	remaining, err := stores.Results.Count(ctx, "big")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected all result rows purged, got %d", remaining)
	}
}

func TestPassHonorsCandidateLimit(t *testing.T) {
	stores := newTestStores(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedSearch(t, stores, fmt.Sprintf("old-%d", i), base.Add(-24*time.Hour), 0)
	}

	sw, err := New(stores, Config{
		ReuseWindow:          time.Minute,
		ExpiryWindow:         time.Hour,
		CutoffSlack:          -1,
		MaxCandidatesPerPass: 2,
	}, clk, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	stats, err := sw.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass error: %v", err)
	}
	if stats.Marked != 2 || stats.Purged != 2 {
		t.Fatalf("expected the pass bounded to 2 records, got %+v", stats)
	}

	// Repeated passes drain the backlog.
	for i := 0; i < 2; i++ {
		if _, err := sw.RunPass(ctx); err != nil {
			t.Fatalf("RunPass error: %v", err)
		}
	}
	count, err := stores.Records.Count(ctx)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected all expired records gone, got %d", count)
	}
}
