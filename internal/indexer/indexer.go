package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/knowledge-rag/internal/chunker"
	"github.com/dshills/knowledge-rag/internal/detector"
	"github.com/dshills/knowledge-rag/internal/embedder"
	"github.com/dshills/knowledge-rag/internal/reconciler"
	"github.com/dshills/knowledge-rag/internal/state"
	"github.com/dshills/knowledge-rag/internal/storage"
	"github.com/dshills/knowledge-rag/internal/submitter"
	"github.com/dshills/knowledge-rag/pkg/types"
)

var (
	// ErrSyncInProgress is returned when another pass holds the index lock
	ErrSyncInProgress = errors.New("synchronization already in progress")
	// ErrInvalidConfig is returned by New for missing collaborators
	ErrInvalidConfig = errors.New("invalid indexer config")
)

// Store meta keys recording the parameters the index was built with
const (
	MetaChunking  = "index_chunking"
	MetaEmbedding = "index_embedding"
)

// Pass modes
const (
	ModeSync    = "sync"
	ModeRebuild = "rebuild"
)

// Indexer runs synchronization passes between a document root and a vector store
type Indexer struct {
	root       string
	detector   *detector.Detector
	reconciler *reconciler.Reconciler
	submitter  *submitter.Submitter
	chunker    *chunker.Chunker
	embedder   embedder.Embedder
	store      storage.Store
	state      state.Store
	workers    int
	lockPath   string
	logger     *slog.Logger

	lock IndexLock
}

// Config contains configuration for the indexer
type Config struct {
	Root      string            // Document root
	Detector  detector.Options  // File selection
	Chunker   *chunker.Chunker  // nil = chunker.Default()
	Embedder  embedder.Embedder // Required
	Store     storage.Store     // Required
	State     state.Store       // Required
	Workers   int               // Concurrent workers (default: runtime.NumCPU())
	BatchSize int               // Chunks per embedding batch (default: 1000)
	LockPath  string            // Cross-process lock file; empty disables it
	Logger    *slog.Logger      // nil = slog.Default()
}

// Statistics contains statistics about one synchronization pass
type Statistics struct {
	PassID         string
	Mode           string
	RebuildReason  string // Why a sync was turned into a rebuild
	FilesProcessed int    // New or modified files fully indexed
	FilesRemoved   int    // Deleted files whose chunks were removed
	FilesUnchanged int
	FilesFailed    int // Files deferred to the next pass
	ChunksCreated  int
	ChunksFailed   int
	RecordsDeleted int
	BatchesFailed  int
	Expected       int
	FinalCount     int
	Shortfall      int
	Reset          *storage.ResetResult // Set by rebuilds
	StateSaved     bool
	Duration       time.Duration
	ErrorMessages  []string
	Warnings       []string
}

// NoOp reports whether the pass performed no vector store mutations
func (s *Statistics) NoOp() bool {
	return s.RecordsDeleted == 0 && s.ChunksCreated == 0 && s.FilesProcessed == 0 &&
		s.FilesRemoved == 0 && s.Reset == nil
}

func (s *Statistics) warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

func (s *Statistics) fail(msg string) {
	s.ErrorMessages = append(s.ErrorMessages, msg)
}

// New creates a new Indexer
func New(cfg Config) (*Indexer, error) {
	if cfg.Embedder == nil || cfg.Store == nil || cfg.State == nil {
		return nil, fmt.Errorf("%w: embedder, store and state are required", ErrInvalidConfig)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: root is required", ErrInvalidConfig)
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunker.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Detector.Logger == nil {
		cfg.Detector.Logger = cfg.Logger
	}

	return &Indexer{
		root:     cfg.Root,
		detector: detector.New(cfg.Detector),
		reconciler: reconciler.New(reconciler.Config{
			Root:    cfg.Root,
			Chunker: cfg.Chunker,
			Workers: cfg.Workers,
			Logger:  cfg.Logger,
		}),
		submitter: submitter.New(submitter.Config{
			Embedder:  cfg.Embedder,
			Store:     cfg.Store,
			BatchSize: cfg.BatchSize,
			Workers:   cfg.Workers,
			Logger:    cfg.Logger,
		}),
		chunker:  cfg.Chunker,
		embedder: cfg.Embedder,
		store:    cfg.Store,
		state:    cfg.State,
		workers:  cfg.Workers,
		lockPath: cfg.LockPath,
		logger:   cfg.Logger,
	}, nil
}

// Root returns the document root
func (idx *Indexer) Root() string {
	return idx.root
}

// Sync brings the vector store in line with the document root, touching only
// files that changed since the last pass. It turns into a Rebuild when the
// index parameters changed or the saved state is unreadable.
func (idx *Indexer) Sync(ctx context.Context) (*Statistics, error) {
	release, err := idx.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	stats := idx.newStatistics(ModeSync)
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	prev, err := idx.state.Load(ctx)
	if err != nil {
		if !errors.Is(err, state.ErrCorruptState) && !errors.Is(err, state.ErrUnsupportedVersion) {
			return nil, fmt.Errorf("failed to load index state: %w", err)
		}
		stats.warn(err.Error())
		return idx.rebuild(ctx, stats, "index state unreadable", nil)
	}

	reason, err := idx.staleReason(ctx, prev)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return idx.rebuild(ctx, stats, reason, prev)
	}

	return stats, idx.pass(ctx, stats, prev, prev)
}

// Rebuild empties the vector store and indexes every file from scratch
func (idx *Indexer) Rebuild(ctx context.Context) (*Statistics, error) {
	release, err := idx.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	stats := idx.newStatistics(ModeRebuild)
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	saved, err := idx.state.Load(ctx)
	if err != nil {
		stats.warn(err.Error())
		saved = nil
	}
	return idx.rebuild(ctx, stats, "requested", saved)
}

func (idx *Indexer) newStatistics(mode string) *Statistics {
	return &Statistics{
		PassID:        uuid.NewString(),
		Mode:          mode,
		ErrorMessages: make([]string, 0),
	}
}

// rebuild resets the store and runs a pass against an empty previous state.
// saved is the state currently on disk, used to decide whether to persist.
func (idx *Indexer) rebuild(ctx context.Context, stats *Statistics, reason string, saved state.State) (*Statistics, error) {
	stats.Mode = ModeRebuild
	stats.RebuildReason = reason
	idx.logger.Info("rebuilding index", "pass_id", stats.PassID, "reason", reason)

	res, err := idx.store.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reset vector store: %w", err)
	}
	stats.Reset = res
	stats.RecordsDeleted = res.Deleted
	if res.FellBack {
		stats.warn(fmt.Sprintf("reset failed (%v); using fresh collection %s", res.Cause, res.Collection))
	}

	return stats, idx.pass(ctx, stats, state.State{}, saved)
}

// staleReason reports why the stored index cannot be updated incrementally
func (idx *Indexer) staleReason(ctx context.Context, prev state.State) (string, error) {
	count, err := idx.store.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count records: %w", err)
	}

	checks := []struct {
		key, want string
	}{
		{MetaChunking, idx.chunker.Signature()},
		{MetaEmbedding, embedder.Signature(idx.embedder)},
	}
	recorded := true
	for _, c := range checks {
		got, err := idx.store.GetMeta(ctx, c.key)
		if errors.Is(err, storage.ErrNotFound) {
			if count > 0 {
				return c.key + " not recorded", nil
			}
			recorded = false
			continue
		}
		if err != nil {
			return "", err
		}
		if got != c.want {
			return fmt.Sprintf("%s changed from %s to %s", c.key, got, c.want), nil
		}
	}

	// Files without chunks leave state entries in an empty store, so an empty
	// store only means lost records when no pass has ever been recorded in it
	if count == 0 && len(prev) > 0 && !recorded {
		return "vector store is empty but index state is not", nil
	}
	return "", nil
}

// recordParams stores the parameters the index is now built with
func (idx *Indexer) recordParams(ctx context.Context) error {
	params := map[string]string{
		MetaChunking:  idx.chunker.Signature(),
		MetaEmbedding: embedder.Signature(idx.embedder),
	}
	for key, want := range params {
		if got, err := idx.store.GetMeta(ctx, key); err == nil && got == want {
			continue
		}
		if err := idx.store.SetMeta(ctx, key, want); err != nil {
			return err
		}
	}
	return nil
}

// pass runs detect, reconcile, delete, submit and commit. prev drives change
// detection; saved is what is on disk and decides whether state is written.
func (idx *Indexer) pass(ctx context.Context, stats *Statistics, prev, saved state.State) error {
	logger := idx.logger.With("pass_id", stats.PassID, "mode", stats.Mode)

	if err := detector.EnsureRoot(idx.root); err != nil {
		return err
	}

	cs, err := idx.detector.Detect(idx.root, prev)
	if err != nil {
		return fmt.Errorf("failed to detect changes: %w", err)
	}
	for _, w := range cs.Warnings {
		stats.warn(w.String())
	}
	stats.FilesUnchanged = len(cs.Unchanged)

	plan, err := idx.reconciler.Reconcile(ctx, cs)
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}

	failed := make(map[string]struct{})
	for _, f := range plan.Failed {
		failed[f.Source] = struct{}{}
		stats.fail(f.Error())
	}
	retryRemoval := make(map[string]struct{})

	if !plan.Empty() {
		logger.Info("applying changes",
			"to_process", len(cs.ToProcess),
			"to_remove", len(cs.ToRemove),
			"inserts", len(plan.Inserts))

		deleteErrs := idx.applyDeletes(ctx, plan.Units, stats)

		inserts := make([]reconciler.Unit, 0, len(plan.Units))
		for i, u := range plan.Units {
			if err := deleteErrs[i]; err != nil {
				stats.fail(fmt.Sprintf("%s: delete: %v", u.Source, err))
				if u.Removal {
					retryRemoval[u.Source] = struct{}{}
				} else {
					failed[u.Source] = struct{}{}
				}
				continue
			}
			if u.Removal {
				stats.FilesRemoved++
				continue
			}
			inserts = append(inserts, u)
		}

		report := idx.submitter.Submit(ctx, chunksOf(inserts))
		for _, fb := range report.FailedBatches {
			stats.BatchesFailed++
			stats.ChunksFailed += len(fb.IDs)
			stats.fail(fmt.Sprintf("batch %d (%s): %v", fb.Index+1, fb.Stage, fb.Err))
		}
		for _, src := range report.FailedSources() {
			failed[src] = struct{}{}
		}
		for _, u := range inserts {
			if _, bad := failed[u.Source]; bad {
				continue
			}
			stats.FilesProcessed++
		}
		stats.ChunksCreated = len(report.SucceededIDs)
		stats.Expected = report.Expected
		stats.FinalCount = report.FinalCount
		stats.Shortfall = report.Shortfall
		if report.CountErr != nil {
			stats.warn(report.CountErr.Error())
		}
		if report.Shortfall > 0 {
			stats.warn(fmt.Sprintf("expected %d records, found %d (shortfall %d)",
				report.Expected, report.FinalCount, report.Shortfall))
		}
	}
	stats.FilesFailed = len(failed)

	if err := ctx.Err(); err != nil {
		logger.Warn("pass cancelled, index state not saved", "error", err)
		return err
	}

	if err := idx.recordParams(ctx); err != nil {
		stats.warn(fmt.Sprintf("failed to record index parameters: %v", err))
	}

	next := commitState(cs.Next, prev, failed, retryRemoval)
	if saved != nil && next.Equal(saved) {
		logger.Debug("index state unchanged")
		return nil
	}
	if err := idx.state.Save(ctx, next); err != nil {
		// Safe: the next pass redetects whatever this one did
		logger.Warn("failed to save index state", "error", err)
		stats.warn(fmt.Sprintf("failed to save index state: %v", err))
		return nil
	}
	stats.StateSaved = true

	logger.Info("pass complete",
		"processed", stats.FilesProcessed,
		"removed", stats.FilesRemoved,
		"failed", stats.FilesFailed,
		"chunks", stats.ChunksCreated)
	return nil
}

// applyDeletes removes existing chunks for every unit. Units run concurrently,
// bounded by the worker count, and all deletes finish before this returns.
func (idx *Indexer) applyDeletes(ctx context.Context, units []reconciler.Unit, stats *Statistics) []error {
	errs := make([]error, len(units))
	var deleted atomic.Int64

	var g errgroup.Group
	g.SetLimit(idx.workers)
	for i, u := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			n, err := idx.store.DeleteByFilter(ctx, storage.SourceFilter(u.Source))
			if err != nil {
				errs[i] = err
				return nil
			}
			deleted.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	stats.RecordsDeleted += int(deleted.Load())
	return errs
}

// chunksOf flattens the chunks of units in order
func chunksOf(units []reconciler.Unit) []types.Chunk {
	var out []types.Chunk
	for _, u := range units {
		out = append(out, u.Chunks...)
	}
	return out
}

// commitState derives the state to persist from the scan. Failed sources keep
// an entry without a fingerprint: the next pass reprocesses them, and a file
// deleted meanwhile is still removed from the store. Removals whose delete
// failed keep their previous entry so the removal is retried.
func commitState(scanned, prev state.State, failed, retryRemoval map[string]struct{}) state.State {
	out := scanned.Clone()
	for key := range failed {
		e, ok := scanned[key]
		if !ok {
			e, ok = prev[key]
		}
		if !ok {
			continue
		}
		e.Fingerprint = ""
		out[key] = e
	}
	for key := range retryRemoval {
		if e, ok := prev[key]; ok {
			out[key] = e
		}
	}
	return out
}
