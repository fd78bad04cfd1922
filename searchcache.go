package searchcache

// Package searchcache provides an asynchronous search execution and result
// cache backed by a relational store. Identical queries issued by concurrent
// clients are deduplicated onto a single execution; any number of readers can
// page through a search's results while its owner is still streaming them in,
// and a background sweeper retires stale executions in bounded batches.
//
// All cross-process coordination happens through conditional updates against
// the search record table, so the service can run as multiple replicas with
// no in-memory coordination authority.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nlstn/go-searchcache/internal/clock"
	"github.com/nlstn/go-searchcache/internal/fingerprint"
	"github.com/nlstn/go-searchcache/internal/observability"
	"github.com/nlstn/go-searchcache/internal/store"
	"github.com/nlstn/go-searchcache/internal/sweeper"
)

// Defaults for fetch behaviour.
const (
	// DefaultSyncPollInterval is how often a blocking FetchPage re-checks
	// the store for newly committed rows.
	DefaultSyncPollInterval = 100 * time.Millisecond
	// DefaultSyncWaitTimeout bounds how long a blocking FetchPage waits
	// for an in-progress execution to produce the requested range.
	DefaultSyncWaitTimeout = 30 * time.Second
	// DefaultReuseWindow is how long a search remains a valid cache hit.
	DefaultReuseWindow = time.Minute
	// DefaultExpiryWindow is how long past the reuse window a search is
	// retained before eviction.
	DefaultExpiryWindow = time.Hour

	// candidateScanLimit bounds how many hash-equal candidates one reuse
	// lookup inspects for full fingerprint equality.
	candidateScanLimit = 50
)

// Status represents the lifecycle state of a search execution.
type Status = store.Status

// Re-exported status values.
const (
	StatusPending  = store.StatusPending
	StatusLoading  = store.StatusLoading
	StatusComplete = store.StatusComplete
	StatusFailed   = store.StatusFailed
)

// FingerprintInputs are the values a search's cache key is derived from.
type FingerprintInputs = fingerprint.Inputs

// FetchMode selects how FetchPage behaves while a search is still loading.
type FetchMode string

const (
	// FetchSync blocks until the requested range is available, the search
	// reaches a terminal state, or the wait bound elapses.
	FetchSync FetchMode = "sync"
	// FetchAsync returns whatever rows are committed now together with a
	// still-loading indicator.
	FetchAsync FetchMode = "async"
)

// Handle identifies a search execution returned by FindOrCreateSearch.
type Handle struct {
	// ID is the search's opaque identifier.
	ID string
	// Status is the search's status at lookup time.
	Status Status
	// Reused reports whether an existing execution was matched instead of
	// a new record being created.
	Reused bool
}

// Page is one bounded slice of a search's results.
type Page struct {
	// Entries are the result identifiers in sequence order.
	Entries []string
	// StillLoading reports whether the owning execution may still produce
	// more rows. Always false once the search is terminal.
	StillLoading bool
	// IsLastPage reports whether no further rows exist past this page.
	// Only meaningful once StillLoading is false.
	IsLastPage bool
	// TotalCount is the final result count when known.
	TotalCount *int64
	// FailureMessage carries the execution error for failed searches.
	FailureMessage string
}

// Config controls a Service. The zero value applies the documented defaults.
type Config struct {
	// ReuseWindow is how long a search remains a valid cache hit. Used by
	// the eviction sweeper; the reuse cutoff itself is supplied per call
	// to FindOrCreateSearch.
	ReuseWindow time.Duration
	// ExpiryWindow is how long past the reuse window a search is retained.
	// Must be at least ReuseWindow.
	ExpiryWindow time.Duration
	// CutoffSlack is extra leeway before the sweeper touches a record near
	// the expiry boundary. Zero applies the sweeper default.
	CutoffSlack time.Duration
	// MaxCandidatesPerPass bounds how many records one eviction pass marks
	// or purges.
	MaxCandidatesPerPass int
	// MaxResultsPerPass bounds how many result rows one eviction pass
	// deletes for a single search.
	MaxResultsPerPass int
	// DeleteBatchSize bounds how many result rows a single delete
	// statement touches.
	DeleteBatchSize int
	// SyncPollInterval is how often a blocking FetchPage re-checks the
	// store.
	SyncPollInterval time.Duration
	// SyncWaitTimeout bounds how long a blocking FetchPage waits.
	SyncWaitTimeout time.Duration
	// Clock supplies the current time; nil uses the system clock. Tests
	// inject a fake.
	Clock clock.Clock
}

// Service is the search cache facade. All methods are safe for concurrent
// use; coordination between replicas happens through the backing store.
type Service struct {
	db      *gorm.DB
	stores  *store.DB
	sweep   *sweeper.Sweeper
	clk     clock.Clock
	logger  *slog.Logger
	obs     *observability.Config
	cfg     Config
	sweepMu sync.Mutex
	// stopSweep is non-nil while the background sweeper loop runs.
	stopSweep chan struct{}
}

// New creates a search cache service on the given database handle, migrating
// its tables if needed.
func New(db *gorm.DB, cfg Config) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle is required", ErrConfig)
	}

	if cfg.ReuseWindow == 0 && cfg.ExpiryWindow == 0 {
		cfg.ReuseWindow = DefaultReuseWindow
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.SyncPollInterval <= 0 {
		cfg.SyncPollInterval = DefaultSyncPollInterval
	}
	if cfg.SyncWaitTimeout <= 0 {
		cfg.SyncWaitTimeout = DefaultSyncWaitTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System
	}

	stores, err := store.NewDB(db)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	sweep, err := sweeper.New(stores, sweeper.Config{
		ReuseWindow:          cfg.ReuseWindow,
		ExpiryWindow:         cfg.ExpiryWindow,
		CutoffSlack:          cfg.CutoffSlack,
		MaxCandidatesPerPass: cfg.MaxCandidatesPerPass,
		MaxResultsPerPass:    cfg.MaxResultsPerPass,
		DeleteBatchSize:      cfg.DeleteBatchSize,
	}, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	obs := observability.NewConfig()
	if err := obs.Initialize(); err != nil {
		return nil, err
	}

	return &Service{
		db:     db,
		stores: stores,
		sweep:  sweep,
		clk:    clk,
		logger: logger,
		obs:    obs,
		cfg:    cfg,
	}, nil
}

// SetLogger sets a custom logger for the service.
// If not called, slog.Default() is used.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// EnableObservability configures OpenTelemetry tracing and metrics for the
// service. Without providers, no-op instrumentation is used.
func (s *Service) EnableObservability(opts ...observability.Option) error {
	cfg := observability.NewConfig(opts...)
	if err := cfg.Initialize(); err != nil {
		return err
	}
	if err := observability.RegisterGORMCallbacks(s.db, cfg); err != nil {
		return fmt.Errorf("searchcache: registering database tracing: %w", err)
	}
	if cfg.ServerTimingEnabled() {
		if err := observability.RegisterServerTimingCallbacks(s.db); err != nil {
			return fmt.Errorf("searchcache: registering server timing: %w", err)
		}
	}
	s.obs = cfg
	return nil
}

// FindOrCreateSearch locates a reusable execution for the given fingerprint
// inputs created strictly after reuseCutoff, or creates a new pending record
// when none qualifies. Finding no match is the common case, not an error.
func (s *Service) FindOrCreateSearch(ctx context.Context, in FingerprintInputs, reuseCutoff time.Time) (Handle, error) {
	if in.ResourceType == "" {
		return Handle{}, fmt.Errorf("%w: resource type is required", ErrInvalidArgument)
	}

	ctx, span := s.obs.Tracer().StartFindOrCreate(ctx, in.ResourceType)
	defer span.End()
	logger := observability.LoggerWithTrace(ctx, s.logger)

	canonical := fingerprint.Canonical(in)
	hash := fingerprint.Hash(canonical)

	candidates, err := s.stores.Records.FindCandidates(ctx, in.ResourceType, hash, reuseCutoff, candidateScanLimit)
	if err != nil {
		s.obs.Tracer().RecordError(span, err)
		return Handle{}, err
	}

	for _, candidate := range candidates {
		// Hash equality is only a hint; reuse requires full fingerprint
		// equality and a creation time strictly inside the window.
		if candidate.Fingerprint == canonical && candidate.CreatedAt.After(reuseCutoff) {
			logger.Debug("reusing cached search",
				"searchID", candidate.ID,
				"resourceType", in.ResourceType,
				"status", candidate.Status)
			span.SetAttributes(observability.CacheHitAttr(true), observability.SearchIDAttr(candidate.ID))
			s.obs.Metrics().RecordCacheLookup(ctx, in.ResourceType, true)
			return Handle{ID: candidate.ID, Status: candidate.Status, Reused: true}, nil
		}
	}
	s.obs.Metrics().RecordCacheLookup(ctx, in.ResourceType, false)

	record := &store.SearchRecord{
		ID:              uuid.NewString(),
		ResourceType:    in.ResourceType,
		FingerprintHash: hash,
		Fingerprint:     canonical,
		Status:          store.StatusPending,
		CreatedAt:       s.clk.Now(),
	}
	if err := s.stores.Records.Create(ctx, record); err != nil {
		s.obs.Tracer().RecordError(span, err)
		return Handle{}, err
	}

	logger.Debug("created search", "searchID", record.ID, "resourceType", in.ResourceType)
	span.SetAttributes(observability.CacheHitAttr(false), observability.SearchIDAttr(record.ID))
	s.obs.Metrics().RecordSearchCreated(ctx, in.ResourceType)
	return Handle{ID: record.ID, Status: record.Status, Reused: false}, nil
}

// ClaimForExecution attempts to take ownership of a pending search. Exactly
// one concurrent caller wins; the rest receive false and should attach as
// readers or poll. Losing is a normal outcome and is never reported as an
// error.
func (s *Service) ClaimForExecution(ctx context.Context, searchID string) (bool, error) {
	ctx, span := s.obs.Tracer().StartClaim(ctx, searchID)
	defer span.End()

	won, err := s.stores.Records.MarkLoading(ctx, searchID)
	if err != nil {
		s.obs.Tracer().RecordError(span, err)
		return false, err
	}
	if !won {
		// Distinguish "someone else owns it" from "no such search".
		if _, getErr := s.stores.Records.Get(ctx, searchID); errors.Is(getErr, store.ErrNotFound) {
			return false, ErrSearchNotFound
		} else if getErr != nil {
			return false, getErr
		}
	}

	span.SetAttributes(observability.ClaimWonAttr(won))
	s.obs.Metrics().RecordClaim(ctx, won)
	observability.LoggerWithTrace(ctx, s.logger).Debug("claim attempt",
		"searchID", searchID,
		"won", won)
	return won, nil
}

// AppendResults durably appends a batch of result identifiers to the search,
// preserving order. Only the search's current owner may call this; the
// single-writer invariant is established by ClaimForExecution and is not
// re-checked here.
func (s *Service) AppendResults(ctx context.Context, searchID string, identifiers []string) error {
	ctx, span := s.obs.Tracer().StartAppend(ctx, searchID, len(identifiers))
	defer span.End()

	if err := s.ensureExists(ctx, searchID); err != nil {
		s.obs.Tracer().RecordError(span, err)
		return err
	}
	if err := s.stores.Results.Append(ctx, searchID, identifiers); err != nil {
		s.obs.Tracer().RecordError(span, err)
		return err
	}
	s.obs.Metrics().RecordAppend(ctx, len(identifiers))
	return nil
}

// AppendIncludes durably adds side-result identifiers to the search.
// Owner-only, like AppendResults.
func (s *Service) AppendIncludes(ctx context.Context, searchID string, identifiers []string) error {
	if err := s.ensureExists(ctx, searchID); err != nil {
		return err
	}
	return s.stores.Includes.Append(ctx, searchID, identifiers)
}

// Includes returns the search's side-result identifiers.
func (s *Service) Includes(ctx context.Context, searchID string) ([]string, error) {
	if err := s.ensureExists(ctx, searchID); err != nil {
		return nil, err
	}
	return s.stores.Includes.Read(ctx, searchID)
}

// CompleteSearch transitions a claimed search to complete. A nil totalCount
// leaves the final size unknown, which is valid for unbounded executions.
func (s *Service) CompleteSearch(ctx context.Context, searchID string, totalCount *int64) error {
	return s.finish(ctx, searchID, store.StatusComplete, totalCount, "")
}

// FailSearch transitions a claimed search to failed. The message is surfaced
// to every reader through FetchPage, so late-attaching readers receive a
// consistent answer.
func (s *Service) FailSearch(ctx context.Context, searchID string, message string) error {
	return s.finish(ctx, searchID, store.StatusFailed, nil, message)
}

func (s *Service) finish(ctx context.Context, searchID string, status store.Status, totalCount *int64, message string) error {
	applied, err := s.stores.Records.Finish(ctx, searchID, status, totalCount, message)
	if err != nil {
		return err
	}
	if !applied {
		record, getErr := s.stores.Records.Get(ctx, searchID)
		if errors.Is(getErr, store.ErrNotFound) {
			return ErrSearchNotFound
		}
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: cannot move search %s from %q to %q", ErrInvalidTransition, searchID, record.Status, status)
	}
	s.logger.Debug("search finished", "searchID", searchID, "status", status)
	return nil
}

// FetchPage returns up to count result identifiers starting at offset.
//
// For terminal searches the committed rows are served directly; an offset
// past the end yields an empty page, the normal "no next page" signal. For
// in-progress searches the behaviour depends on mode: FetchAsync returns the
// rows committed now with StillLoading set, while FetchSync waits - bounded
// by the configured timeout and the caller's context - for the range to fill
// or the execution to end. FetchPage never mutates search state.
func (s *Service) FetchPage(ctx context.Context, searchID string, offset, count int, mode FetchMode) (Page, error) {
	start := time.Now()
	ctx, span := s.obs.Tracer().StartFetchPage(ctx, searchID, offset, count)
	defer span.End()

	if offset < 0 || count < 0 {
		err := fmt.Errorf("%w: offset %d and count %d must not be negative", ErrInvalidArgument, offset, count)
		s.obs.Tracer().RecordError(span, err)
		return Page{}, err
	}
	if mode != FetchSync && mode != FetchAsync {
		err := fmt.Errorf("%w: unknown fetch mode %q", ErrInvalidArgument, mode)
		s.obs.Tracer().RecordError(span, err)
		return Page{}, err
	}

	record, err := s.stores.Records.Get(ctx, searchID)
	if errors.Is(err, store.ErrNotFound) {
		s.obs.Tracer().RecordError(span, ErrSearchNotFound)
		return Page{}, ErrSearchNotFound
	}
	if err != nil {
		s.obs.Tracer().RecordError(span, err)
		return Page{}, err
	}

	var page Page
	if record.Status.Terminal() {
		page, err = s.terminalPage(ctx, record, offset, count)
	} else if mode == FetchAsync {
		page, err = s.partialPage(ctx, searchID, offset, count)
	} else {
		page, err = s.waitForPage(ctx, searchID, offset, count)
	}
	if err != nil {
		s.obs.Tracer().RecordError(span, err)
		return Page{}, err
	}

	s.obs.Metrics().RecordPage(ctx, len(page.Entries), page.StillLoading, time.Since(start))
	return page, nil
}

// terminalPage serves a page from a completed or failed search.
func (s *Service) terminalPage(ctx context.Context, record *store.SearchRecord, offset, count int) (Page, error) {
	entries, err := s.stores.Results.ReadRange(ctx, record.ID, offset, count)
	if err != nil {
		return Page{}, err
	}
	available, err := s.stores.Results.Count(ctx, record.ID)
	if err != nil {
		return Page{}, err
	}
	page := Page{
		Entries:    entries,
		IsLastPage: int64(offset+len(entries)) >= available,
		TotalCount: record.TotalCount,
	}
	if record.Status == store.StatusFailed {
		page.FailureMessage = record.FailureMessage
	}
	return page, nil
}

// partialPage serves whatever is committed now for an in-progress search.
func (s *Service) partialPage(ctx context.Context, searchID string, offset, count int) (Page, error) {
	entries, err := s.stores.Results.ReadRange(ctx, searchID, offset, count)
	if err != nil {
		return Page{}, err
	}
	return Page{Entries: entries, StillLoading: true}, nil
}

// waitForPage polls until the requested range is committed, the search turns
// terminal, the wait bound elapses, or the caller cancels. An abandoned wait
// never cancels the underlying execution; other readers may depend on it.
func (s *Service) waitForPage(ctx context.Context, searchID string, offset, count int) (Page, error) {
	deadline := time.Now().Add(s.cfg.SyncWaitTimeout)
	ticker := time.NewTicker(s.cfg.SyncPollInterval)
	defer ticker.Stop()

	for {
		record, err := s.stores.Records.Get(ctx, searchID)
		if errors.Is(err, store.ErrNotFound) {
			// The sweeper purged the search mid-wait.
			return Page{}, ErrSearchNotFound
		}
		if err != nil {
			return Page{}, err
		}
		if record.Status.Terminal() {
			return s.terminalPage(ctx, record, offset, count)
		}

		available, err := s.stores.Results.Count(ctx, searchID)
		if err != nil {
			return Page{}, err
		}
		if available >= int64(offset+count) {
			return s.partialPage(ctx, searchID, offset, count)
		}
		if time.Now().After(deadline) {
			return s.partialPage(ctx, searchID, offset, count)
		}

		select {
		case <-ctx.Done():
			return Page{}, fmt.Errorf("searchcache: waiting for search %s: %w", searchID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// RunEvictionPass executes one bounded mark-and-purge sweep. It is intended
// to be invoked on a timer, never inside a foreground request's transaction.
func (s *Service) RunEvictionPass(ctx context.Context) (sweeper.Stats, error) {
	ctx, span := s.obs.Tracer().StartEvictionPass(ctx)
	defer span.End()

	stats, err := s.sweep.RunPass(ctx)
	if err != nil {
		s.obs.Tracer().RecordError(span, err)
		return stats, err
	}
	s.obs.Metrics().RecordSweep(ctx, stats.Marked, stats.Purged, stats.PartiallyPurged, stats.ResultRowsDeleted)
	return stats, nil
}

// StartSweeper launches a background goroutine running an eviction pass on
// the given interval. It is a no-op if the sweeper loop is already running.
func (s *Service) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	if s.stopSweep != nil {
		return
	}

	stop := make(chan struct{})
	s.stopSweep = stop
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if _, err := s.RunEvictionPass(context.Background()); err != nil {
					s.logger.Warn("eviction pass failed", "error", err)
				}
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
}

// Close stops the background sweeper, if running.
// It is safe to call multiple times; subsequent calls have no effect.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	if s.stopSweep != nil {
		close(s.stopSweep)
		s.stopSweep = nil
	}
	return nil
}

func (s *Service) ensureExists(ctx context.Context, searchID string) error {
	_, err := s.stores.Records.Get(ctx, searchID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSearchNotFound
	}
	return err
}
