// Package sweeper retires expired search executions from the backing store.
//
// A pass runs in two phases. Phase A marks expired records as logically
// deleted, one short transaction per record, which immediately hides them
// from candidate matching. Phase B physically purges marked records: include
// rows first, then result rows in bounded batches, and the record row itself
// only once no result rows remain. A record whose result set is larger than
// the per-pass budget stays logically deleted and is drained further on the
// next pass, so no single pass issues an unbounded delete.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nlstn/go-searchcache/internal/clock"
	"github.com/nlstn/go-searchcache/internal/store"
)

// Defaults for the batching knobs.
//
// Be careful raising DefaultDeleteBatchSize: purge deletes use a
// WHERE ... IN (...) list of this many keys per statement.
const (
	DefaultDeleteBatchSize      = 500
	DefaultMaxResultsPerPass    = 20000
	DefaultMaxCandidatesPerPass = 2000
	DefaultCutoffSlack          = time.Minute
)

// Config carries the expiry and batching knobs for a Sweeper. All values are
// fixed at construction; there is no global mutable state.
type Config struct {
	// ReuseWindow is how long a record remains a valid cache hit.
	ReuseWindow time.Duration
	// ExpiryWindow is how long past the reuse window a record is kept
	// before becoming eligible for eviction. Must be >= ReuseWindow... see
	// Validate.
	ExpiryWindow time.Duration
	// CutoffSlack is extra leeway subtracted from the expiry boundary to
	// avoid racing a client that is reusing a record just inside it. Zero
	// applies DefaultCutoffSlack; negative disables the slack.
	CutoffSlack time.Duration
	// MaxCandidatesPerPass bounds how many records one pass marks, and
	// separately how many marked records one pass purges.
	MaxCandidatesPerPass int
	// MaxResultsPerPass bounds how many result rows one pass deletes for a
	// single search.
	MaxResultsPerPass int
	// DeleteBatchSize bounds how many result rows a single delete
	// statement touches.
	DeleteBatchSize int
}

// Validate checks the window invariant and fills in defaulted knobs.
func (c *Config) Validate() error {
	if c.ReuseWindow < 0 || c.ExpiryWindow < 0 {
		return errors.New("sweeper: windows must not be negative")
	}
	if c.ExpiryWindow < c.ReuseWindow {
		return fmt.Errorf("sweeper: expiry window %v must be at least the reuse window %v", c.ExpiryWindow, c.ReuseWindow)
	}
	if c.CutoffSlack == 0 {
		c.CutoffSlack = DefaultCutoffSlack
	} else if c.CutoffSlack < 0 {
		c.CutoffSlack = 0
	}
	if c.MaxCandidatesPerPass <= 0 {
		c.MaxCandidatesPerPass = DefaultMaxCandidatesPerPass
	}
	if c.MaxResultsPerPass <= 0 {
		c.MaxResultsPerPass = DefaultMaxResultsPerPass
	}
	if c.DeleteBatchSize <= 0 {
		c.DeleteBatchSize = DefaultDeleteBatchSize
	}
	if c.DeleteBatchSize > c.MaxResultsPerPass {
		c.DeleteBatchSize = c.MaxResultsPerPass
	}
	return nil
}

// Stats summarises one eviction pass.
type Stats struct {
	// Marked is the number of records transitioned to logically deleted.
	Marked int
	// Purged is the number of record rows physically removed.
	Purged int
	// PartiallyPurged is the number of records whose result sets hit the
	// per-pass budget and remain for the next pass.
	PartiallyPurged int
	// ResultRowsDeleted is the total number of result rows removed.
	ResultRowsDeleted int64
}

// Sweeper runs eviction passes against the search cache stores.
type Sweeper struct {
	records  store.RecordStore
	results  store.ResultStore
	includes store.IncludeStore
	clk      clock.Clock
	logger   *slog.Logger
	cfg      Config
}

// New constructs a Sweeper. The config is validated and defaulted once here.
func New(stores *store.DB, cfg Config, clk clock.Clock, logger *slog.Logger) (*Sweeper, error) {
	if stores == nil {
		return nil, errors.New("sweeper: stores are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.System
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		records:  stores.Records,
		results:  stores.Results,
		includes: stores.Includes,
		clk:      clk,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// RunPass executes one bounded mark-and-purge pass. It must never run inside
// a foreground request's transaction. A pass that hits its batch limits
// simply stops; the next pass resumes where it left off.
func (s *Sweeper) RunPass(ctx context.Context) (Stats, error) {
	var stats Stats

	now := s.clk.Now()
	cutoff := now.Add(-(s.cfg.ReuseWindow + s.cfg.ExpiryWindow + s.cfg.CutoffSlack))
	s.logger.Debug("searching for searches which are before cutoff", "cutoff", cutoff)

	// Phase A: mark expired records deleted, each in its own transaction.
	toMark, err := s.records.FindExpired(ctx, cutoff, s.cfg.MaxCandidatesPerPass)
	if err != nil {
		return stats, err
	}
	for _, id := range toMark {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.records.MarkDeleted(ctx, id, now); err != nil {
			return stats, err
		}
		s.logger.Debug("marked search deleted", "searchID", id)
		stats.Marked++
	}

	// Phase B: physically purge records already marked deleted.
	toPurge, err := s.records.FindDeleted(ctx, s.cfg.MaxCandidatesPerPass)
	if err != nil {
		return stats, err
	}
	for _, id := range toPurge {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.purge(ctx, id, &stats); err != nil {
			return stats, err
		}
	}

	if stats.Purged > 0 {
		remaining, err := s.records.Count(ctx)
		if err == nil {
			s.logger.Debug("eviction pass deleted searches",
				"deleted", stats.Purged,
				"remaining", remaining,
				"resultRows", stats.ResultRowsDeleted)
		}
	}
	return stats, nil
}

// purge drains one marked record. Include rows go first so a retried pass
// never sees includes for a record whose results are already gone.
func (s *Sweeper) purge(ctx context.Context, id string, stats *Stats) error {
	if err := s.includes.DeleteForSearch(ctx, id); err != nil {
		return err
	}

	var deletedForSearch int64
	for deletedForSearch < int64(s.cfg.MaxResultsPerPass) {
		batch := s.cfg.DeleteBatchSize
		if remaining := int64(s.cfg.MaxResultsPerPass) - deletedForSearch; remaining < int64(batch) {
			batch = int(remaining)
		}
		deleted, err := s.results.DeleteBatch(ctx, id, batch)
		if err != nil {
			return err
		}
		deletedForSearch += deleted
		if deleted < int64(batch) {
			break
		}
	}
	stats.ResultRowsDeleted += deletedForSearch

	// Only remove the record once its result set is fully drained. Hitting
	// the per-pass budget leaves the record logically deleted for the next
	// pass instead of forcing an unbounded delete.
	if deletedForSearch < int64(s.cfg.MaxResultsPerPass) {
		if err := s.records.Delete(ctx, id); err != nil {
			return err
		}
		s.logger.Debug("purged search", "searchID", id, "resultRows", deletedForSearch)
		stats.Purged++
		return nil
	}

	s.logger.Debug("partially purged search, resuming next pass",
		"searchID", id,
		"resultRows", deletedForSearch)
	stats.PartiallyPurged++
	return nil
}
